package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"recgate/internal/gate"
	"recgate/internal/seal"
)

// exportEntry is the JSON-lines wire form of one audit entry.
type exportEntry struct {
	Seq        uint64 `json:"seq"`
	RecordID   uint64 `json:"record_id"`
	AccessedBy string `json:"accessed_by"`
	AccessedAt string `json:"accessed_at"`
}

// ExportAudit writes the audit trail to w as JSON lines, one entry per
// line in append order. When recordID is non-nil only that record's
// entries are exported. When sealer is non-nil the stream is encrypted
// before it reaches w. Returns the number of entries written.
func (a *App) ExportAudit(w io.Writer, recordID *uint64, sealer seal.Sealer) (int, error) {
	entries, err := a.auditEntries(recordID)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		line := exportEntry{
			Seq:        e.Seq,
			RecordID:   e.RecordID,
			AccessedBy: string(e.AccessedBy),
			AccessedAt: e.AccessedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := enc.Encode(line); err != nil {
			return 0, fmt.Errorf("encoding audit entry %d: %w", e.Seq, err)
		}
	}

	if sealer != nil {
		if err := sealer.Seal(&buf, w); err != nil {
			return 0, fmt.Errorf("sealing export: %w", err)
		}
	} else {
		if _, err := io.Copy(w, &buf); err != nil {
			return 0, fmt.Errorf("writing export: %w", err)
		}
	}

	a.logger.Info("audit log exported", "entries", len(entries), "sealed", sealer != nil)
	return len(entries), nil
}

// ArchiveAudit exports the audit trail and pushes it to the configured
// archive sink under a uuid-stamped segment name. Returns the segment
// name.
func (a *App) ArchiveAudit(recordID *uint64, sealer seal.Sealer) (string, error) {
	sink, err := a.ArchiveSink()
	if err != nil {
		return "", fmt.Errorf("creating archive sink: %w", err)
	}
	if err := sink.Validate(); err != nil {
		return "", fmt.Errorf("validating archive sink: %w", err)
	}

	var buf bytes.Buffer
	count, err := a.ExportAudit(&buf, recordID, sealer)
	if err != nil {
		return "", err
	}

	name := a.segmentName(sealer != nil)
	if err := sink.Put(name, &buf, int64(buf.Len())); err != nil {
		return "", fmt.Errorf("storing audit segment: %w", err)
	}

	a.logger.Info("audit log archived", "segment", name, "entries", count)
	return name, nil
}

func (a *App) auditEntries(recordID *uint64) ([]*gate.AccessEntry, error) {
	if recordID != nil {
		return a.service.ListAccessLog(*recordID)
	}
	return a.service.FullAccessLog()
}

// segmentName builds a unique archive key. Segment names sort by export
// time within an instance.
func (a *App) segmentName(sealed bool) string {
	ext := "jsonl"
	if sealed {
		ext = "jsonl.age"
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("audit/%s/%s-%s.%s", a.cfg.InstanceID, ts, uuid.New().String(), ext)
}
