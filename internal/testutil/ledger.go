package testutil

import (
	"testing"

	"recgate/internal/ledger"
)

// NewTestLedger creates an in-memory SQLite ledger with all migrations
// applied. The ledger is automatically closed when the test completes.
func NewTestLedger(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()

	led, err := ledger.NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}

	if err := led.MigrateUp(); err != nil {
		led.Close()
		t.Fatalf("failed to migrate ledger: %v", err)
	}

	t.Cleanup(func() {
		led.Close()
	})

	return led
}
