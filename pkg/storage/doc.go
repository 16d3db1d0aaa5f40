// Package storage defines the credential store consulted by the
// authentication backends, together with its records and sentinel errors.
//
// Adapters live in sub-packages: memory (seeded from configuration) and
// postgres.
package storage
