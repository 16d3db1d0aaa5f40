package auth

// Principal is the identity contract consumed by the authorizer and by
// downstream handlers.
type Principal interface {
	Name() string
	AuthenticationType() string
	IsAuthenticated() bool
	IsInRole(role string) bool
}

// SnapshotAuthenticationType is reported by principals restored from a
// single-use token.
const SnapshotAuthenticationType = "one-time-token"

// Snapshot is a minimal, immutable capture of a principal's name and the
// scheme that authenticated it. It holds no reference to the principal it
// was taken from and carries no roles.
type Snapshot struct {
	name     string
	issuedBy string
}

// SnapshotOf copies the name and authentication type out of p. It returns
// nil when p is nil.
func SnapshotOf(p Principal) *Snapshot {
	if isNil(p) {
		return nil
	}
	return &Snapshot{name: p.Name(), issuedBy: p.AuthenticationType()}
}

// Name implements Principal.
func (s *Snapshot) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// IssuedBy returns the authentication type of the principal the snapshot
// was taken from.
func (s *Snapshot) IssuedBy() string {
	if s == nil {
		return ""
	}
	return s.issuedBy
}

// AuthenticationType implements Principal.
func (s *Snapshot) AuthenticationType() string { return SnapshotAuthenticationType }

// IsAuthenticated implements Principal.
func (s *Snapshot) IsAuthenticated() bool { return s != nil }

// IsInRole implements Principal. Snapshots never carry roles.
func (s *Snapshot) IsInRole(string) bool { return false }

// isNil reports whether p is nil or a typed nil pointer of a known principal type.
func isNil(p Principal) bool {
	switch v := p.(type) {
	case nil:
		return true
	case *Identity:
		return v == nil
	case *Snapshot:
		return v == nil
	}
	return false
}
