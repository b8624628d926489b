package gate

import "time"

// Clock abstracts time retrieval so audit timestamps are deterministic in
// tests. The service treats the clock as the single authoritative source
// for access-log timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
