package gate

import "time"

// EventName identifies the kind of a ledger event.
type EventName string

const (
	EventRecordCreated  EventName = "RecordCreated"
	EventAccessGranted  EventName = "AccessGranted"
	EventAccessRevoked  EventName = "AccessRevoked"
	EventRecordAccessed EventName = "RecordAccessed"
)

// Event is a notification emitted after a successful state mutation.
// Events are intended for observability and indexing, not control flow.
// Subject is the subject the event is about: the owner for RecordCreated,
// the grantee for AccessGranted/AccessRevoked, the reader for
// RecordAccessed.
type Event struct {
	Name     EventName
	RecordID uint64
	Subject  Subject
	Time     time.Time
}

// Publisher receives events from the service. Publish is called
// synchronously while the service holds its writer lock, so events for
// the same record arrive in mutation order. Implementations that need to
// do slow work should hand the event off and return.
type Publisher interface {
	Publish(Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
