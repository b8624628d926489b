package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"recgate/internal/config"
)

// NewLedgerFromConfig creates a ledger based on the database config type.
// The "memory" type is an in-memory SQLite database and loses all state
// on close; it exists for tests and throwaway environments.
func NewLedgerFromConfig(cfg config.DatabaseConfig, instanceID string) (*SQLiteLedger, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dbPath := filepath.Join(cfg.DataDir, instanceID+".db")
		return NewSQLiteLedger(dbPath)
	case "memory":
		return NewSQLiteLedger(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
