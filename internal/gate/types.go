package gate

import "time"

// Subject is an opaque identifier for a caller: a record creator, a
// grantee, or a role holder. The core assumes no internal structure;
// whatever authentication layer fronts the service is responsible for
// binding requests to subject identifiers.
type Subject string

// Role is a named capability held by a subject.
type Role string

const (
	// RoleAdmin may administer role membership. Admin alone does NOT
	// grant read access to records.
	RoleAdmin Role = "admin"

	// RoleProvider may read every record regardless of ownership or
	// per-record grants.
	RoleProvider Role = "provider"
)

// KnownRole reports whether r is one of the roles the core understands.
func KnownRole(r Role) bool {
	return r == RoleAdmin || r == RoleProvider
}

// Record is an immutable entry referencing externally stored content by
// hash. Records are created once and never updated or deleted; ids are
// sequential from zero and never reused.
type Record struct {
	ID        uint64
	DataHash  string
	Owner     Subject
	CreatedAt time.Time
}

// AccessEntry is one line of the append-only audit trail: a successful
// read of a record. Seq is assigned by the ledger in append order.
type AccessEntry struct {
	Seq        uint64
	RecordID   uint64
	AccessedBy Subject
	AccessedAt time.Time
}
