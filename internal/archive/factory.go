package archive

import (
	"fmt"

	"recgate/internal/config"
)

// NewSinkFromConfig creates a Sink implementation based on the archive config type.
func NewSinkFromConfig(cfg config.ArchiveConfig) (Sink, error) {
	switch cfg.Type {
	case "memory":
		return NewMemorySink(cfg.Name), nil
	case "s3":
		return NewS3Sink(cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		return NewFileSystemSink(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
