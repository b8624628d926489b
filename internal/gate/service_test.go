package gate_test

import (
	"errors"
	"testing"
	"time"

	"recgate/internal/gate"
	"recgate/internal/testutil"
)

const admin = gate.Subject("admin-1")

// newTestService builds a service over an in-memory ledger with the
// admin subject bootstrapped.
func newTestService(t *testing.T) (*gate.Service, *testutil.EventRecorder, *testutil.StubClock) {
	t.Helper()

	led := testutil.NewTestLedger(t)
	clock := testutil.FixedClock()
	events := testutil.NewEventRecorder()

	svc := gate.NewService(led, gate.NewNopLogger(), clock, events)
	if err := svc.Bootstrap(admin); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return svc, events, clock
}

func TestService_CreateRecord(t *testing.T) {
	t.Run("assigns sequential ids from zero", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		for want := uint64(0); want < 3; want++ {
			id, err := svc.CreateRecord("u1", "hash")
			if err != nil {
				t.Fatalf("CreateRecord() error = %v", err)
			}
			if id != want {
				t.Errorf("CreateRecord() id = %d, want %d", id, want)
			}
		}
	})

	t.Run("rejects empty data hash", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.CreateRecord("u1", "")
		if !errors.Is(err, gate.ErrInvalidInput) {
			t.Errorf("CreateRecord() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("rejects empty caller", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.CreateRecord("", "hash")
		if !errors.Is(err, gate.ErrInvalidInput) {
			t.Errorf("CreateRecord() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("records owner immutably", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		id, err := svc.CreateRecord("u1", "hash")
		if err != nil {
			t.Fatalf("CreateRecord() error = %v", err)
		}

		rec, err := svc.GetRecord(id)
		if err != nil {
			t.Fatalf("GetRecord() error = %v", err)
		}
		if rec.Owner != "u1" {
			t.Errorf("Owner = %s, want u1", rec.Owner)
		}
	})

	t.Run("emits RecordCreated", func(t *testing.T) {
		svc, events, _ := newTestService(t)

		id, err := svc.CreateRecord("u1", "hash")
		if err != nil {
			t.Fatalf("CreateRecord() error = %v", err)
		}

		got := events.Events()
		if len(got) != 1 {
			t.Fatalf("got %d events, want 1", len(got))
		}
		if got[0].Name != gate.EventRecordCreated || got[0].RecordID != id || got[0].Subject != "u1" {
			t.Errorf("event = %+v, want RecordCreated for record %d by u1", got[0], id)
		}
	})
}

func TestService_GetRecord(t *testing.T) {
	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.GetRecord(42)
		if !errors.Is(err, gate.ErrNotFound) {
			t.Errorf("GetRecord() error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_ListOwnedRecords(t *testing.T) {
	t.Run("returns ids in creation order", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		svc.CreateRecord("u1", "a") // id 0
		svc.CreateRecord("u2", "b") // id 1
		svc.CreateRecord("u1", "c") // id 2

		ids, err := svc.ListOwnedRecords("u1")
		if err != nil {
			t.Fatalf("ListOwnedRecords() error = %v", err)
		}
		if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
			t.Errorf("ListOwnedRecords() = %v, want [0 2]", ids)
		}
	})

	t.Run("returns empty slice for unknown owner", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		ids, err := svc.ListOwnedRecords("nobody")
		if err != nil {
			t.Fatalf("ListOwnedRecords() error = %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("ListOwnedRecords() = %v, want empty", ids)
		}
	})
}

func TestService_GrantRevoke(t *testing.T) {
	t.Run("grant then revoke round trip", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash")

		if err := svc.GrantAccess("u1", id, "u2"); err != nil {
			t.Fatalf("GrantAccess() error = %v", err)
		}
		if granted, _ := svc.IsGranted(id, "u2"); !granted {
			t.Error("IsGranted() = false after grant, want true")
		}

		if err := svc.RevokeAccess("u1", id, "u2"); err != nil {
			t.Fatalf("RevokeAccess() error = %v", err)
		}
		if granted, _ := svc.IsGranted(id, "u2"); granted {
			t.Error("IsGranted() = true after revoke, want false")
		}
	})

	t.Run("grant and revoke are idempotent", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash")

		for i := 0; i < 2; i++ {
			if err := svc.GrantAccess("u1", id, "u2"); err != nil {
				t.Fatalf("GrantAccess() #%d error = %v", i+1, err)
			}
		}
		if granted, _ := svc.IsGranted(id, "u2"); !granted {
			t.Error("IsGranted() = false, want true")
		}

		// Revoking a never-granted pair is a no-op, not an error.
		if err := svc.RevokeAccess("u1", id, "u3"); err != nil {
			t.Errorf("RevokeAccess() on ungranted pair error = %v", err)
		}
	})

	t.Run("only the owner may grant", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash")
		svc.GrantAccess("u1", id, "u2")

		// Not another subject, not the admin/provider, not a grantee.
		for _, caller := range []gate.Subject{"u3", admin, "u2"} {
			err := svc.GrantAccess(caller, id, "u4")
			if !errors.Is(err, gate.ErrUnauthorized) {
				t.Errorf("GrantAccess() as %s error = %v, want ErrUnauthorized", caller, err)
			}
			if granted, _ := svc.IsGranted(id, "u4"); granted {
				t.Errorf("grant table changed by unauthorized caller %s", caller)
			}
		}
	})

	t.Run("grant on missing record fails with NotFound", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		err := svc.GrantAccess("u1", 99, "u2")
		if !errors.Is(err, gate.ErrNotFound) {
			t.Errorf("GrantAccess() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("emits AccessGranted and AccessRevoked", func(t *testing.T) {
		svc, events, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash")

		svc.GrantAccess("u1", id, "u2")
		svc.RevokeAccess("u1", id, "u2")

		names := events.Names()
		want := []gate.EventName{gate.EventRecordCreated, gate.EventAccessGranted, gate.EventAccessRevoked}
		if len(names) != len(want) {
			t.Fatalf("got %d events, want %d", len(names), len(want))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("event[%d] = %s, want %s", i, names[i], want[i])
			}
		}
	})
}

func TestService_ReadRecord(t *testing.T) {
	t.Run("owner reads own record", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		dataHash, err := svc.ReadRecord("u1", id)
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		if dataHash != "hash1" {
			t.Errorf("ReadRecord() = %q, want hash1", dataHash)
		}
	})

	t.Run("deny by default", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		_, err := svc.ReadRecord("u2", id)
		if !errors.Is(err, gate.ErrUnauthorized) {
			t.Errorf("ReadRecord() error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("grantee may read until revoked", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		svc.GrantAccess("u1", id, "u2")
		if _, err := svc.ReadRecord("u2", id); err != nil {
			t.Fatalf("ReadRecord() after grant error = %v", err)
		}

		svc.RevokeAccess("u1", id, "u2")
		if _, err := svc.ReadRecord("u2", id); !errors.Is(err, gate.ErrUnauthorized) {
			t.Errorf("ReadRecord() after revoke error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("provider role overrides on every record", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		if err := svc.GrantRole(admin, "doc-1", gate.RoleProvider); err != nil {
			t.Fatalf("GrantRole() error = %v", err)
		}

		if _, err := svc.ReadRecord("doc-1", id); err != nil {
			t.Errorf("ReadRecord() as provider error = %v", err)
		}
	})

	t.Run("admin role alone does not bypass ownership", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		// A subject holding only admin, unlike the bootstrap admin who
		// also holds provider.
		if err := svc.GrantRole(admin, "ops-1", gate.RoleAdmin); err != nil {
			t.Fatalf("GrantRole() error = %v", err)
		}

		_, err := svc.ReadRecord("ops-1", id)
		if !errors.Is(err, gate.ErrUnauthorized) {
			t.Errorf("ReadRecord() as admin-only error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("missing record fails with NotFound and no log entry", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.ReadRecord("u1", 7)
		if !errors.Is(err, gate.ErrNotFound) {
			t.Errorf("ReadRecord() error = %v, want ErrNotFound", err)
		}

		entries, err := svc.FullAccessLog()
		if err != nil {
			t.Fatalf("FullAccessLog() error = %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("log has %d entries after failed read, want 0", len(entries))
		}
	})

	t.Run("every successful read appends exactly one entry", func(t *testing.T) {
		svc, _, clock := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		for i := 1; i <= 3; i++ {
			clock.Advance(time.Minute)
			if _, err := svc.ReadRecord("u1", id); err != nil {
				t.Fatalf("ReadRecord() #%d error = %v", i, err)
			}

			entries, err := svc.ListAccessLog(id)
			if err != nil {
				t.Fatalf("ListAccessLog() error = %v", err)
			}
			if len(entries) != i {
				t.Fatalf("log length = %d after %d reads", len(entries), i)
			}
			last := entries[len(entries)-1]
			if last.RecordID != id || last.AccessedBy != "u1" {
				t.Errorf("entry = %+v, want record %d accessed by u1", last, id)
			}
		}

		// A denied read leaves the log unchanged.
		svc.ReadRecord("u9", id)
		entries, _ := svc.ListAccessLog(id)
		if len(entries) != 3 {
			t.Errorf("log length = %d after denied read, want 3", len(entries))
		}
	})

	t.Run("emits RecordAccessed on success only", func(t *testing.T) {
		svc, events, _ := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		svc.ReadRecord("u1", id)
		svc.ReadRecord("u2", id) // denied

		names := events.Names()
		want := []gate.EventName{gate.EventRecordCreated, gate.EventRecordAccessed}
		if len(names) != len(want) {
			t.Fatalf("events = %v, want %v", names, want)
		}
	})
}

func TestService_AccessLogTimestamps(t *testing.T) {
	t.Run("never decrease even when the clock steps back", func(t *testing.T) {
		svc, _, clock := newTestService(t)
		id, _ := svc.CreateRecord("u1", "hash1")

		svc.ReadRecord("u1", id)
		clock.Rewind(time.Hour)
		svc.ReadRecord("u1", id)
		clock.Advance(2 * time.Hour)
		svc.ReadRecord("u1", id)

		entries, err := svc.ListAccessLog(id)
		if err != nil {
			t.Fatalf("ListAccessLog() error = %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("log length = %d, want 3", len(entries))
		}
		for i := 1; i < len(entries); i++ {
			if entries[i].AccessedAt.Before(entries[i-1].AccessedAt) {
				t.Errorf("timestamps decreased: entry %d at %v before entry %d at %v",
					i, entries[i].AccessedAt, i-1, entries[i-1].AccessedAt)
			}
		}
	})

	t.Run("clamp survives a restart with a stepped-back clock", func(t *testing.T) {
		led := testutil.NewTestLedger(t)
		clock := testutil.FixedClock()

		svc := gate.NewService(led, gate.NewNopLogger(), clock, gate.NopPublisher{})
		if err := svc.Bootstrap(admin); err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		id, _ := svc.CreateRecord("u1", "hash1")
		if _, err := svc.ReadRecord("u1", id); err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}

		// New service over the same ledger, wall clock an hour behind.
		clock.Rewind(time.Hour)
		restarted := gate.NewService(led, gate.NewNopLogger(), clock, gate.NopPublisher{})
		if err := restarted.Bootstrap(admin); err != nil {
			t.Fatalf("Bootstrap() after restart error = %v", err)
		}
		if _, err := restarted.ReadRecord("u1", id); err != nil {
			t.Fatalf("ReadRecord() after restart error = %v", err)
		}

		entries, err := restarted.ListAccessLog(id)
		if err != nil {
			t.Fatalf("ListAccessLog() error = %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("log length = %d, want 2", len(entries))
		}
		if entries[1].AccessedAt.Before(entries[0].AccessedAt) {
			t.Errorf("audit trail decreased across restart: %v before %v",
				entries[1].AccessedAt, entries[0].AccessedAt)
		}
	})
}

func TestService_Authorize(t *testing.T) {
	svc, _, _ := newTestService(t)
	id, _ := svc.CreateRecord("u1", "hash1")
	svc.GrantAccess("u1", id, "u2")

	if err := svc.Authorize("u1", id); err != nil {
		t.Errorf("Authorize(owner) error = %v", err)
	}
	if err := svc.Authorize("u2", id); err != nil {
		t.Errorf("Authorize(grantee) error = %v", err)
	}
	if err := svc.Authorize("u3", id); !errors.Is(err, gate.ErrUnauthorized) {
		t.Errorf("Authorize(stranger) error = %v, want ErrUnauthorized", err)
	}
	if err := svc.Authorize("u1", 99); !errors.Is(err, gate.ErrNotFound) {
		t.Errorf("Authorize(missing record) error = %v, want ErrNotFound", err)
	}

	// Authorize never touches the audit log.
	entries, _ := svc.FullAccessLog()
	if len(entries) != 0 {
		t.Errorf("log has %d entries after Authorize calls, want 0", len(entries))
	}
}

func TestService_Roles(t *testing.T) {
	t.Run("bootstrap seeds admin with both roles", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		for _, role := range []gate.Role{gate.RoleAdmin, gate.RoleProvider} {
			held, err := svc.HasRole(admin, role)
			if err != nil {
				t.Fatalf("HasRole() error = %v", err)
			}
			if !held {
				t.Errorf("bootstrap admin does not hold %s", role)
			}
		}
	})

	t.Run("bootstrap is idempotent", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		if err := svc.Bootstrap(admin); err != nil {
			t.Errorf("second Bootstrap() error = %v", err)
		}
	})

	t.Run("only admins administer roles", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		err := svc.GrantRole("u1", "u2", gate.RoleProvider)
		if !errors.Is(err, gate.ErrUnauthorized) {
			t.Errorf("GrantRole() as non-admin error = %v, want ErrUnauthorized", err)
		}
		if held, _ := svc.HasRole("u2", gate.RoleProvider); held {
			t.Error("role granted by unauthorized caller")
		}
	})

	t.Run("grant and revoke round trip", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		if err := svc.GrantRole(admin, "u2", gate.RoleProvider); err != nil {
			t.Fatalf("GrantRole() error = %v", err)
		}
		// Re-granting a held role is a no-op.
		if err := svc.GrantRole(admin, "u2", gate.RoleProvider); err != nil {
			t.Fatalf("second GrantRole() error = %v", err)
		}
		if held, _ := svc.HasRole("u2", gate.RoleProvider); !held {
			t.Error("HasRole() = false after grant")
		}

		if err := svc.RevokeRole(admin, "u2", gate.RoleProvider); err != nil {
			t.Fatalf("RevokeRole() error = %v", err)
		}
		if held, _ := svc.HasRole("u2", gate.RoleProvider); held {
			t.Error("HasRole() = true after revoke")
		}
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		err := svc.GrantRole(admin, "u2", "superuser")
		if !errors.Is(err, gate.ErrInvalidInput) {
			t.Errorf("GrantRole() error = %v, want ErrInvalidInput", err)
		}
	})
}

// TestService_Scenario walks the end-to-end flow: create, grant, read,
// denied read, revoke, denied read again.
func TestService_Scenario(t *testing.T) {
	svc, _, _ := newTestService(t)

	id, err := svc.CreateRecord("U1", "hash1")
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if id != 0 {
		t.Fatalf("first record id = %d, want 0", id)
	}

	if err := svc.GrantAccess("U1", id, "U2"); err != nil {
		t.Fatalf("GrantAccess() error = %v", err)
	}

	dataHash, err := svc.ReadRecord("U2", id)
	if err != nil {
		t.Fatalf("ReadRecord() as U2 error = %v", err)
	}
	if dataHash != "hash1" {
		t.Errorf("ReadRecord() = %q, want hash1", dataHash)
	}
	if entries, _ := svc.ListAccessLog(id); len(entries) != 1 {
		t.Errorf("log length = %d, want 1", len(entries))
	}

	if _, err := svc.ReadRecord("U3", id); !errors.Is(err, gate.ErrUnauthorized) {
		t.Errorf("ReadRecord() as U3 error = %v, want ErrUnauthorized", err)
	}
	if entries, _ := svc.ListAccessLog(id); len(entries) != 1 {
		t.Errorf("log length = %d after denied read, want 1", len(entries))
	}

	if err := svc.RevokeAccess("U1", id, "U2"); err != nil {
		t.Fatalf("RevokeAccess() error = %v", err)
	}
	if _, err := svc.ReadRecord("U2", id); !errors.Is(err, gate.ErrUnauthorized) {
		t.Errorf("ReadRecord() after revoke error = %v, want ErrUnauthorized", err)
	}
}
