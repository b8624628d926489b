// Package archive provides off-site storage for exported audit-log
// segments. Segments are opaque blobs; sealing (age encryption) happens
// before they reach a sink.
package archive

import "io"

// Sink is a destination for audit-log segments.
// All operations use io.Reader/io.Writer for streaming so large logs
// never have to be held in memory.
type Sink interface {
	// Put stores a segment under the given name.
	// size is the number of bytes that will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get retrieves a segment by name and writes it to w.
	Get(name string, w io.Writer) error

	// Validate verifies that the sink is accessible and properly configured.
	Validate() error
}
