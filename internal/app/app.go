package app

import (
	"fmt"
	"os"

	"recgate/internal/archive"
	"recgate/internal/config"
	"recgate/internal/gate"
	"recgate/internal/ledger"
)

// App is the application layer between the delivery surfaces (CLI, HTTP)
// and the gate.Service. It constructs all dependencies from config,
// exposes high-level operations that accept raw strings, and manages the
// ledger lifecycle on Close.
type App struct {
	cfg     *config.Config
	ledger  *ledger.SQLiteLedger
	service *gate.Service
	logger  gate.Logger
	logFile *os.File
}

// logPublisher forwards service events to the structured log, which is
// the default event subscriber for a single-binary deployment.
type logPublisher struct {
	logger gate.Logger
}

func (p *logPublisher) Publish(e gate.Event) {
	p.logger.Debug("event", "name", string(e.Name), "record", e.RecordID, "subject", e.Subject)
}

// NewApp creates a fully wired App from the given config.
// operation identifies the command being run (e.g. "CreateRecord", "Serve").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	if cfg.AdminSubject == "" {
		return nil, fmt.Errorf("admin_subject not configured")
	}

	slogger, logFile, err := newLogger(cfg.LogDir, operation)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	led, err := ledger.NewLedgerFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	// The binary owns its schema: bring the ledger up to the latest
	// version on every start. MigrateUp is a no-op when current.
	if err := led.MigrateUp(); err != nil {
		led.Close()
		logFile.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}

	svc := gate.NewService(led, logger, gate.RealClock{}, &logPublisher{logger: logger})
	if err := svc.Bootstrap(gate.Subject(cfg.AdminSubject)); err != nil {
		led.Close()
		logFile.Close()
		return nil, fmt.Errorf("bootstrapping roles: %w", err)
	}

	return &App{
		cfg:     cfg,
		ledger:  led,
		service: svc,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Service returns the underlying enforcement core, for delivery layers
// that speak gate types directly (the HTTP server).
func (a *App) Service() *gate.Service {
	return a.service
}

// Logger returns the app's structured logger.
func (a *App) Logger() gate.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Close releases the ledger and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.ledger.Close(); err != nil {
		firstErr = fmt.Errorf("closing ledger: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

// CLI-facing operations. These take raw strings and delegate to the
// service, which owns all validation and authorization.

// CreateRecord registers a record owned by caller and returns its id.
func (a *App) CreateRecord(caller, dataHash string) (uint64, error) {
	return a.service.CreateRecord(gate.Subject(caller), dataHash)
}

// ReadRecord performs an audited read and returns the data hash.
func (a *App) ReadRecord(caller string, recordID uint64) (string, error) {
	return a.service.ReadRecord(gate.Subject(caller), recordID)
}

// GetRecord returns record metadata.
func (a *App) GetRecord(recordID uint64) (*gate.Record, error) {
	return a.service.GetRecord(recordID)
}

// GrantAccess gives grantee read access to the caller's record.
func (a *App) GrantAccess(caller string, recordID uint64, grantee string) error {
	return a.service.GrantAccess(gate.Subject(caller), recordID, gate.Subject(grantee))
}

// RevokeAccess withdraws grantee's read access to the caller's record.
func (a *App) RevokeAccess(caller string, recordID uint64, grantee string) error {
	return a.service.RevokeAccess(gate.Subject(caller), recordID, gate.Subject(grantee))
}

// ListOwnedRecords returns the ids of the caller's records in creation order.
func (a *App) ListOwnedRecords(caller string) ([]uint64, error) {
	return a.service.ListOwnedRecords(gate.Subject(caller))
}

// ListAccessLog returns the audit trail for a record.
func (a *App) ListAccessLog(recordID uint64) ([]*gate.AccessEntry, error) {
	return a.service.ListAccessLog(recordID)
}

// GrantRole adds a role to a subject. actingAs must hold admin.
func (a *App) GrantRole(actingAs, subject, role string) error {
	return a.service.GrantRole(gate.Subject(actingAs), gate.Subject(subject), gate.Role(role))
}

// RevokeRole removes a role from a subject. actingAs must hold admin.
func (a *App) RevokeRole(actingAs, subject, role string) error {
	return a.service.RevokeRole(gate.Subject(actingAs), gate.Subject(subject), gate.Role(role))
}

// ArchiveSink builds the configured archive sink.
func (a *App) ArchiveSink() (archive.Sink, error) {
	return archive.NewSinkFromConfig(a.cfg.Archive)
}
