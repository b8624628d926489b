package gate

import (
	"fmt"
	"sync"
	"time"
)

// Service is the enforcement core: it owns the grant/revoke state
// machine, the role checks, and the append-only audit trail, all over a
// Ledger. Every mutating operation (create, grant, revoke, and read,
// which appends to the log) is serialized by a single writer lock, which
// matches the one-authoritative-ledger semantics and keeps id allocation,
// grant state, and log order consistent under concurrent callers.
type Service struct {
	mu        sync.Mutex
	ledger    Ledger
	logger    Logger
	clock     Clock
	publisher Publisher

	// lastLogTime is the timestamp of the most recent audit entry.
	// Appends clamp to it so the log stays non-decreasing even if the
	// wall clock steps backwards. Bootstrap seeds it from the persisted
	// trail so the guarantee holds across restarts too.
	lastLogTime time.Time
}

// NewService creates a Service over the given ledger. logger, clock and
// publisher may not be nil; pass NopLogger/NopPublisher where output is
// unwanted.
func NewService(ledger Ledger, logger Logger, clock Clock, publisher Publisher) *Service {
	return &Service{
		ledger:    ledger,
		logger:    logger,
		clock:     clock,
		publisher: publisher,
	}
}

// Bootstrap seeds the role registry with the initial administrator and
// recovers the audit-timestamp clamp from the persisted trail. The
// admin subject receives both the admin and provider roles. Idempotent,
// so it is safe to call on every startup.
func (s *Service) Bootstrap(admin Subject) error {
	if admin == "" {
		return fmt.Errorf("%w: empty admin subject", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if err := s.ledger.GrantRole(admin, RoleAdmin, now); err != nil {
		return fmt.Errorf("seeding admin role: %w", err)
	}
	if err := s.ledger.GrantRole(admin, RoleProvider, now); err != nil {
		return fmt.Errorf("seeding provider role: %w", err)
	}

	last, err := s.ledger.LastAccess()
	if err != nil {
		return fmt.Errorf("reading last access entry: %w", err)
	}
	if last != nil && last.AccessedAt.After(s.lastLogTime) {
		s.lastLogTime = last.AccessedAt
	}

	s.logger.Debug("role registry bootstrapped", "admin", admin)
	return nil
}

// CreateRecord registers a new record owned by caller and returns its
// id. The data hash references externally stored content; the core does
// not validate its format or existence, only that it is non-empty.
func (s *Service) CreateRecord(caller Subject, dataHash string) (uint64, error) {
	if caller == "" {
		return 0, fmt.Errorf("%w: empty caller subject", ErrInvalidInput)
	}
	if dataHash == "" {
		return 0, fmt.Errorf("%w: empty data hash", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ledger.CreateRecord(caller, dataHash, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("creating record: %w", err)
	}

	s.logger.Info("record created", "id", rec.ID, "owner", rec.Owner)
	s.publisher.Publish(Event{Name: EventRecordCreated, RecordID: rec.ID, Subject: rec.Owner, Time: rec.CreatedAt})
	return rec.ID, nil
}

// GetRecord returns the record metadata for id. The data hash is not
// part of the returned metadata path used by delivery layers; disclosing
// it goes through ReadRecord, which is audited.
func (s *Service) GetRecord(id uint64) (*Record, error) {
	rec, err := s.ledger.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("loading record %d: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

// ListOwnedRecords returns the ids of all records created by caller, in
// creation order.
func (s *Service) ListOwnedRecords(caller Subject) ([]uint64, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: empty caller subject", ErrInvalidInput)
	}
	ids, err := s.ledger.RecordIDsByOwner(caller)
	if err != nil {
		return nil, fmt.Errorf("listing records for %s: %w", caller, err)
	}
	return ids, nil
}

// GrantAccess lets the record's owner give grantee read access. Only the
// owner may grant: not admins, not providers, not prior grantees.
// Idempotent.
func (s *Service) GrantAccess(caller Subject, recordID uint64, grantee Subject) error {
	return s.setGrant(caller, recordID, grantee, true)
}

// RevokeAccess withdraws a grant previously given to grantee. Revoking a
// pair that was never granted is a no-op, not an error.
func (s *Service) RevokeAccess(caller Subject, recordID uint64, grantee Subject) error {
	return s.setGrant(caller, recordID, grantee, false)
}

func (s *Service) setGrant(caller Subject, recordID uint64, grantee Subject, allowed bool) error {
	if caller == "" || grantee == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ledger.GetRecord(recordID)
	if err != nil {
		return fmt.Errorf("loading record %d: %w", recordID, err)
	}
	if rec == nil {
		return fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	if rec.Owner != caller {
		s.logger.Warn("grant change denied", "record", recordID, "caller", caller, "grantee", grantee)
		return fmt.Errorf("only the owner may change access to record %d: %w", recordID, ErrUnauthorized)
	}

	now := s.clock.Now()
	if err := s.ledger.SetGrant(recordID, grantee, allowed, now); err != nil {
		return fmt.Errorf("updating grant: %w", err)
	}

	name := EventAccessGranted
	if !allowed {
		name = EventAccessRevoked
	}
	s.logger.Info("grant updated", "record", recordID, "grantee", grantee, "allowed", allowed)
	s.publisher.Publish(Event{Name: name, RecordID: recordID, Subject: grantee, Time: now})
	return nil
}

// IsGranted reports whether grantee holds an explicit grant for
// recordID. Ownership and provider role are not reflected here; this is
// the raw permission-matrix state.
func (s *Service) IsGranted(recordID uint64, grantee Subject) (bool, error) {
	allowed, err := s.ledger.IsGranted(recordID, grantee)
	if err != nil {
		return false, fmt.Errorf("checking grant: %w", err)
	}
	return allowed, nil
}

// Authorize decides read eligibility for caller on recordID without
// performing the read. A caller is eligible iff they own the record, hold
// the provider role, or hold an explicit grant for it. Eligibility is
// evaluated fresh on every call; nothing is cached.
//
// Returns nil when eligible, ErrNotFound when the record does not exist,
// ErrUnauthorized otherwise.
func (s *Service) Authorize(caller Subject, recordID uint64) error {
	rec, err := s.ledger.GetRecord(recordID)
	if err != nil {
		return fmt.Errorf("loading record %d: %w", recordID, err)
	}
	if rec == nil {
		return fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}
	return s.authorize(caller, rec)
}

// authorize applies the eligibility rule against an already-loaded
// record. The owner check, the provider-role check, and the explicit
// grant check are independent; any one suffices. Admin is deliberately
// absent: holding admin alone does not bypass ownership.
func (s *Service) authorize(caller Subject, rec *Record) error {
	if caller == rec.Owner {
		return nil
	}

	provider, err := s.ledger.HasRole(caller, RoleProvider)
	if err != nil {
		return fmt.Errorf("checking provider role: %w", err)
	}
	if provider {
		return nil
	}

	granted, err := s.ledger.IsGranted(rec.ID, caller)
	if err != nil {
		return fmt.Errorf("checking grant: %w", err)
	}
	if granted {
		return nil
	}

	return fmt.Errorf("subject %s may not read record %d: %w", caller, rec.ID, ErrUnauthorized)
}

// ReadRecord performs an audited read: if caller is eligible it appends
// exactly one access-log entry, emits RecordAccessed, and returns the
// record's data hash. Failed reads leave no trace in the audit log.
func (s *Service) ReadRecord(caller Subject, recordID uint64) (string, error) {
	if caller == "" {
		return "", fmt.Errorf("%w: empty caller subject", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ledger.GetRecord(recordID)
	if err != nil {
		return "", fmt.Errorf("loading record %d: %w", recordID, err)
	}
	if rec == nil {
		return "", fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}

	if err := s.authorize(caller, rec); err != nil {
		s.logger.Warn("read denied", "record", recordID, "caller", caller)
		return "", err
	}

	now := s.clock.Now()
	if now.Before(s.lastLogTime) {
		now = s.lastLogTime
	}

	entry, err := s.ledger.AppendAccess(recordID, caller, now)
	if err != nil {
		return "", fmt.Errorf("appending access entry: %w", err)
	}
	s.lastLogTime = now

	s.logger.Info("record read", "record", recordID, "caller", caller, "seq", entry.Seq)
	s.publisher.Publish(Event{Name: EventRecordAccessed, RecordID: recordID, Subject: caller, Time: now})
	return rec.DataHash, nil
}

// ListAccessLog returns the audit trail for one record, oldest first.
// Eligibility gating for this view is a delivery-layer policy: the HTTP
// layer applies Authorize before calling it, the operator CLI does not.
func (s *Service) ListAccessLog(recordID uint64) ([]*AccessEntry, error) {
	rec, err := s.ledger.GetRecord(recordID)
	if err != nil {
		return nil, fmt.Errorf("loading record %d: %w", recordID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record %d: %w", recordID, ErrNotFound)
	}

	entries, err := s.ledger.AccessEntriesByRecord(recordID)
	if err != nil {
		return nil, fmt.Errorf("listing access log: %w", err)
	}
	return entries, nil
}

// FullAccessLog returns the entire audit trail in append order, for
// export and archival.
func (s *Service) FullAccessLog() ([]*AccessEntry, error) {
	entries, err := s.ledger.AccessEntries()
	if err != nil {
		return nil, fmt.Errorf("reading access log: %w", err)
	}
	return entries, nil
}

// GrantRole adds role to subject's role set. Only admins may administer
// roles. Granting an already-held role is a no-op.
func (s *Service) GrantRole(actingAs, subject Subject, role Role) error {
	if err := s.checkRoleChange(actingAs, subject, role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.GrantRole(subject, role, s.clock.Now()); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	s.logger.Info("role granted", "subject", subject, "role", role, "by", actingAs)
	return nil
}

// RevokeRole removes role from subject's role set. Only admins may
// administer roles. Revoking a role the subject does not hold is a no-op.
func (s *Service) RevokeRole(actingAs, subject Subject, role Role) error {
	if err := s.checkRoleChange(actingAs, subject, role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.RevokeRole(subject, role); err != nil {
		return fmt.Errorf("revoking role: %w", err)
	}
	s.logger.Info("role revoked", "subject", subject, "role", role, "by", actingAs)
	return nil
}

func (s *Service) checkRoleChange(actingAs, subject Subject, role Role) error {
	if actingAs == "" || subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}
	if !KnownRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	admin, err := s.ledger.HasRole(actingAs, RoleAdmin)
	if err != nil {
		return fmt.Errorf("checking admin role: %w", err)
	}
	if !admin {
		s.logger.Warn("role change denied", "caller", actingAs, "subject", subject, "role", role)
		return fmt.Errorf("only admins may administer roles: %w", ErrUnauthorized)
	}
	return nil
}

// HasRole reports whether subject holds role.
func (s *Service) HasRole(subject Subject, role Role) (bool, error) {
	held, err := s.ledger.HasRole(subject, role)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return held, nil
}
