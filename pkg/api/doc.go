// Package api defines the JSON bodies dbgate writes itself.
//
// Every rejection produced by the authorizer or its backends uses
// [ErrorResponse], serialized as {"Error": "<message>"} with
// Content-Type application/json. Successful bodies of the built-in
// endpoints are written with [WriteJSON].
package api
