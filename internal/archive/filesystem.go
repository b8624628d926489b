package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemSink stores audit segments as files under a root directory.
// Segment names may contain slashes; they map onto subdirectories.
type FileSystemSink struct {
	name string
	root string
}

// NewFileSystemSink creates a filesystem sink rooted at the given path.
func NewFileSystemSink(name, root string) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}

	return &FileSystemSink{name: name, root: root}, nil
}

// Put stores a segment under the given name. Writes go through a
// temporary file and a rename so a crash never leaves a truncated
// segment under its final name.
func (s *FileSystemSink) Put(name string, r io.Reader, size int64) error {
	destPath := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create segment directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".segment-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write segment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close segment: %w", err)
	}

	if written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize segment: %w", err)
	}

	return nil
}

// Get retrieves a segment by name and writes it to w.
func (s *FileSystemSink) Get(name string, w io.Writer) error {
	srcPath := filepath.Join(s.root, filepath.FromSlash(name))

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("segment not found: %s", name)
		}
		return fmt.Errorf("failed to open segment: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read segment: %w", err)
	}

	return nil
}

// Validate verifies the archive root exists and is a directory.
func (s *FileSystemSink) Validate() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", s.root)
	}
	return nil
}

// Compile-time check that FileSystemSink implements the Sink interface.
var _ Sink = (*FileSystemSink)(nil)
