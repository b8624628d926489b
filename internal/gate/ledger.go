package gate

import "time"

// Ledger provides an interface for the persisted ledger state: records,
// grants, roles, and the access log. Implementations must make each
// method atomic; the service provides the single-writer discipline on
// top.
//
// Lookup methods return (nil, nil) or (false, nil) when the requested
// row does not exist; errors are reserved for infrastructure faults.
type Ledger interface {
	// Record operations

	// CreateRecord stores a new record for owner, allocating the next
	// sequential id (starting at 0, strictly increasing, never reused).
	CreateRecord(owner Subject, dataHash string, createdAt time.Time) (*Record, error)

	// GetRecord returns the record with the given id, or nil if no such
	// record was ever created.
	GetRecord(id uint64) (*Record, error)

	// RecordIDsByOwner returns the ids of all records created by owner,
	// in creation order. Returns an empty slice for unknown owners.
	RecordIDsByOwner(owner Subject) ([]uint64, error)

	// Grant operations

	// SetGrant sets the grant state for (recordID, grantee). Idempotent:
	// re-asserting the current state is a no-op.
	SetGrant(recordID uint64, grantee Subject, allowed bool, updatedAt time.Time) error

	// IsGranted reports the grant state for (recordID, grantee).
	// Defaults to false for any pair never explicitly granted.
	IsGranted(recordID uint64, grantee Subject) (bool, error)

	// Access log operations

	// AppendAccess appends an entry to the access log and returns its
	// assigned sequence number. Prior entries are never modified.
	AppendAccess(recordID uint64, accessedBy Subject, accessedAt time.Time) (*AccessEntry, error)

	// AccessEntriesByRecord returns the log entries for one record in
	// append order.
	AccessEntriesByRecord(recordID uint64) ([]*AccessEntry, error)

	// AccessEntries returns the full access log in append order.
	AccessEntries() ([]*AccessEntry, error)

	// LastAccess returns the most recent access-log entry, or nil when
	// the log is empty.
	LastAccess() (*AccessEntry, error)

	// Role operations

	// GrantRole adds role to subject's role set. Idempotent.
	GrantRole(subject Subject, role Role, grantedAt time.Time) error

	// RevokeRole removes role from subject's role set. Idempotent.
	RevokeRole(subject Subject, role Role) error

	// HasRole reports whether subject holds role.
	HasRole(subject Subject, role Role) (bool, error)

	// Close closes the underlying storage.
	Close() error
}
