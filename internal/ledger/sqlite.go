package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recgate/internal/gate"
	"recgate/internal/ledger/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteLedger implements the gate.Ledger interface using SQLite.
// Each method is a single statement or a single transaction, so every
// ledger mutation is atomic: a failed call leaves no partial state.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger creates a new SQLite-backed ledger.
// path can be a file path or ":memory:" for an in-memory ledger.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteLedger{db: db, path: path}, nil
}

// NewSQLiteLedgerFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteLedgerFromDB(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

// OpenConnection opens and configures a SQLite connection with the
// PRAGMAs the ledger relies on. Exported for tests and tools that need a
// properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	// Every pooled connection to ":memory:" gets a distinct database, so
	// the pool must be pinned to one connection or migrations and queries
	// would see different schemas.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the latest version.
func (l *SQLiteLedger) CheckMigrations() error {
	return migrations.CheckStatus(l.db)
}

// MigrateUp brings the schema to the latest version.
func (l *SQLiteLedger) MigrateUp() error {
	return migrations.MigrateUp(l.db)
}

// Record operations

func (l *SQLiteLedger) CreateRecord(owner gate.Subject, dataHash string, createdAt time.Time) (*gate.Record, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Ids are handed out sequentially from 0 and never reused, so
	// historical references in the access log stay unambiguous even if
	// deletion were ever added.
	var id int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(id) + 1, 0) FROM records").Scan(&id); err != nil {
		return nil, fmt.Errorf("allocating record id: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO records (id, data_hash, owner, created_at) VALUES (?, ?, ?, ?)",
		id, dataHash, string(owner), createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing record: %w", err)
	}

	return &gate.Record{
		ID:        uint64(id),
		DataHash:  dataHash,
		Owner:     owner,
		CreatedAt: createdAt,
	}, nil
}

func (l *SQLiteLedger) GetRecord(id uint64) (*gate.Record, error) {
	var (
		dataHash  string
		owner     string
		createdAt time.Time
	)
	err := l.db.QueryRow(
		"SELECT data_hash, owner, created_at FROM records WHERE id = ?", int64(id),
	).Scan(&dataHash, &owner, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("querying record: %w", err)
	}

	return &gate.Record{
		ID:        id,
		DataHash:  dataHash,
		Owner:     gate.Subject(owner),
		CreatedAt: createdAt,
	}, nil
}

func (l *SQLiteLedger) RecordIDsByOwner(owner gate.Subject) ([]uint64, error) {
	rows, err := l.db.Query(
		"SELECT id FROM records WHERE owner = ? ORDER BY id", string(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("querying owner index: %w", err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owner index: %w", err)
	}

	return ids, nil
}

// Grant operations

func (l *SQLiteLedger) SetGrant(recordID uint64, grantee gate.Subject, allowed bool, updatedAt time.Time) error {
	_, err := l.db.Exec(
		`INSERT INTO grants (record_id, grantee, allowed, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (record_id, grantee)
		 DO UPDATE SET allowed = excluded.allowed, updated_at = excluded.updated_at`,
		int64(recordID), string(grantee), allowed, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting grant: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) IsGranted(recordID uint64, grantee gate.Subject) (bool, error) {
	var allowed bool
	err := l.db.QueryRow(
		"SELECT allowed FROM grants WHERE record_id = ? AND grantee = ?",
		int64(recordID), string(grantee),
	).Scan(&allowed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil // Deny-by-default
		}
		return false, fmt.Errorf("querying grant: %w", err)
	}
	return allowed, nil
}

// Access log operations

func (l *SQLiteLedger) AppendAccess(recordID uint64, accessedBy gate.Subject, accessedAt time.Time) (*gate.AccessEntry, error) {
	res, err := l.db.Exec(
		"INSERT INTO access_log (record_id, accessed_by, accessed_at) VALUES (?, ?, ?)",
		int64(recordID), string(accessedBy), accessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting access entry: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading access entry seq: %w", err)
	}

	return &gate.AccessEntry{
		Seq:        uint64(seq),
		RecordID:   recordID,
		AccessedBy: accessedBy,
		AccessedAt: accessedAt,
	}, nil
}

func (l *SQLiteLedger) AccessEntriesByRecord(recordID uint64) ([]*gate.AccessEntry, error) {
	return l.queryAccessEntries(
		"SELECT seq, record_id, accessed_by, accessed_at FROM access_log WHERE record_id = ? ORDER BY seq",
		int64(recordID),
	)
}

func (l *SQLiteLedger) AccessEntries() ([]*gate.AccessEntry, error) {
	return l.queryAccessEntries(
		"SELECT seq, record_id, accessed_by, accessed_at FROM access_log ORDER BY seq",
	)
}

func (l *SQLiteLedger) LastAccess() (*gate.AccessEntry, error) {
	entries, err := l.queryAccessEntries(
		"SELECT seq, record_id, accessed_by, accessed_at FROM access_log ORDER BY seq DESC LIMIT 1",
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (l *SQLiteLedger) queryAccessEntries(query string, args ...any) ([]*gate.AccessEntry, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access log: %w", err)
	}
	defer rows.Close()

	entries := []*gate.AccessEntry{}
	for rows.Next() {
		var (
			seq        int64
			recordID   int64
			accessedBy string
			accessedAt time.Time
		)
		if err := rows.Scan(&seq, &recordID, &accessedBy, &accessedAt); err != nil {
			return nil, fmt.Errorf("scanning access entry: %w", err)
		}
		entries = append(entries, &gate.AccessEntry{
			Seq:        uint64(seq),
			RecordID:   uint64(recordID),
			AccessedBy: gate.Subject(accessedBy),
			AccessedAt: accessedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access log: %w", err)
	}

	return entries, nil
}

// Role operations

func (l *SQLiteLedger) GrantRole(subject gate.Subject, role gate.Role, grantedAt time.Time) error {
	// INSERT OR IGNORE makes re-granting a held role a no-op.
	_, err := l.db.Exec(
		"INSERT OR IGNORE INTO roles (subject, role, granted_at) VALUES (?, ?, ?)",
		string(subject), string(role), grantedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting role: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) RevokeRole(subject gate.Subject, role gate.Role) error {
	_, err := l.db.Exec(
		"DELETE FROM roles WHERE subject = ? AND role = ?",
		string(subject), string(role),
	)
	if err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) HasRole(subject gate.Subject, role gate.Role) (bool, error) {
	var one int
	err := l.db.QueryRow(
		"SELECT 1 FROM roles WHERE subject = ? AND role = ?",
		string(subject), string(role),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("querying role: %w", err)
	}
	return true, nil
}

// Close closes the underlying database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Compile-time check that SQLiteLedger implements gate.Ledger.
var _ gate.Ledger = (*SQLiteLedger)(nil)
