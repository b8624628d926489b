package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemorySink is an in-memory implementation of the Sink interface,
// useful for testing. Safe for concurrent use.
type MemorySink struct {
	name     string
	mu       sync.RWMutex
	segments map[string][]byte
}

// NewMemorySink creates a new in-memory sink with the given name.
func NewMemorySink(name string) *MemorySink {
	return &MemorySink{
		name:     name,
		segments: make(map[string][]byte),
	}
}

// Put stores a segment under the given name.
func (m *MemorySink) Put(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read segment: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.segments[name] = data
	return nil
}

// Get retrieves a segment by name.
func (m *MemorySink) Get(name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.segments[name]
	if !ok {
		return fmt.Errorf("segment not found: %s", name)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write segment: %w", err)
	}

	return nil
}

// Validate always succeeds for an in-memory sink.
func (m *MemorySink) Validate() error {
	return nil
}

// Compile-time check that MemorySink implements the Sink interface.
var _ Sink = (*MemorySink)(nil)
