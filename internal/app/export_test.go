package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"

	"recgate/internal/config"
	"recgate/internal/seal"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	base := t.TempDir()
	cfg := config.NewConfig("test-instance", "admin-1", base)
	cfg.Database = config.DatabaseConfig{Type: "memory"}

	a, err := NewApp(cfg, "Test")
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
	})
	return a
}

// seedAuditTrail creates two records and performs three audited reads.
func seedAuditTrail(t *testing.T, a *App) {
	t.Helper()

	for _, hash := range []string{"hash-a", "hash-b"} {
		if _, err := a.CreateRecord("u1", hash); err != nil {
			t.Fatalf("creating record: %v", err)
		}
	}
	if err := a.GrantAccess("u1", 1, "u2"); err != nil {
		t.Fatalf("granting access: %v", err)
	}

	reads := []struct {
		caller string
		record uint64
	}{
		{"u1", 0},
		{"u1", 1},
		{"u2", 1},
	}
	for _, r := range reads {
		if _, err := a.ReadRecord(r.caller, r.record); err != nil {
			t.Fatalf("reading record %d as %s: %v", r.record, r.caller, err)
		}
	}
}

func TestApp_ExportAudit(t *testing.T) {
	a := newTestApp(t)
	seedAuditTrail(t, a)

	var buf bytes.Buffer
	count, err := a.ExportAudit(&buf, nil, nil)
	if err != nil {
		t.Fatalf("ExportAudit() error = %v", err)
	}
	if count != 3 {
		t.Errorf("ExportAudit() count = %d, want 3", count)
	}

	var lines []exportEntry
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var e exportEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("decoding line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 3 {
		t.Fatalf("export has %d lines, want 3", len(lines))
	}
	if lines[0].AccessedBy != "u1" || lines[0].RecordID != 0 {
		t.Errorf("first line = %+v, want read of record 0 by u1", lines[0])
	}
	if lines[2].AccessedBy != "u2" || lines[2].RecordID != 1 {
		t.Errorf("last line = %+v, want read of record 1 by u2", lines[2])
	}
	for i := 1; i < len(lines); i++ {
		if lines[i].Seq <= lines[i-1].Seq {
			t.Errorf("seq not increasing: %d then %d", lines[i-1].Seq, lines[i].Seq)
		}
	}
}

func TestApp_ExportAudit_SingleRecord(t *testing.T) {
	a := newTestApp(t)
	seedAuditTrail(t, a)

	var buf bytes.Buffer
	record := uint64(1)
	count, err := a.ExportAudit(&buf, &record, nil)
	if err != nil {
		t.Fatalf("ExportAudit() error = %v", err)
	}
	if count != 2 {
		t.Errorf("ExportAudit() count = %d, want 2", count)
	}
	if strings.Contains(buf.String(), `"record_id":0`) {
		t.Error("single-record export contains entries for another record")
	}
}

func TestApp_ExportAudit_Sealed(t *testing.T) {
	a := newTestApp(t)
	seedAuditTrail(t, a)

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	sealer, err := seal.NewRecipientSealer(identity.Recipient().String())
	if err != nil {
		t.Fatalf("creating sealer: %v", err)
	}

	var sealed bytes.Buffer
	if _, err := a.ExportAudit(&sealed, nil, sealer); err != nil {
		t.Fatalf("ExportAudit() error = %v", err)
	}
	if strings.Contains(sealed.String(), "accessed_by") {
		t.Error("sealed export leaks plaintext")
	}

	var plain bytes.Buffer
	if err := seal.Unseal(bytes.NewReader(sealed.Bytes()), &plain, identity); err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	if got := strings.Count(plain.String(), "\n"); got != 3 {
		t.Errorf("unsealed export has %d lines, want 3", got)
	}
}

func TestApp_ArchiveAudit(t *testing.T) {
	a := newTestApp(t)
	seedAuditTrail(t, a)

	name, err := a.ArchiveAudit(nil, nil)
	if err != nil {
		t.Fatalf("ArchiveAudit() error = %v", err)
	}
	if !strings.HasPrefix(name, "audit/test-instance/") {
		t.Errorf("segment name = %q, want audit/test-instance/ prefix", name)
	}
	if !strings.HasSuffix(name, ".jsonl") {
		t.Errorf("segment name = %q, want .jsonl suffix", name)
	}

	// The default archive sink is the filesystem under base_dir/archive.
	path := filepath.Join(a.Config().Archive.FSRoot, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archived segment: %v", err)
	}
	if got := bytes.Count(data, []byte("\n")); got != 3 {
		t.Errorf("archived segment has %d lines, want 3", got)
	}
}

func TestApp_ArchiveAudit_Sealed(t *testing.T) {
	a := newTestApp(t)
	seedAuditTrail(t, a)

	sealer, err := seal.NewPassphraseSealer("test-passphrase")
	if err != nil {
		t.Fatalf("creating sealer: %v", err)
	}

	name, err := a.ArchiveAudit(nil, sealer)
	if err != nil {
		t.Fatalf("ArchiveAudit() error = %v", err)
	}
	if !strings.HasSuffix(name, ".jsonl.age") {
		t.Errorf("segment name = %q, want .jsonl.age suffix", name)
	}
}
