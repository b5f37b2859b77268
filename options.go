package bundoc

import (
	"io"
	"path/filepath"
)

// Options configures a Client.
type Options struct {
	// Path to the directory the disk engine should use. Ignored when
	// InMemory is true.
	Path string

	// InMemory runs the store entirely in process memory; nothing is
	// written to disk and the client cannot be reopened.
	InMemory bool

	// Strict enables BSON round-trip validation on every write of the
	// in-memory engine, surfacing non-representable values immediately
	// instead of letting them pass silently (mongita's memory_engine
	// `strict` flag).
	Strict bool

	// LogOutput receives log lines. Defaults to discarding them.
	LogOutput io.Writer
}

// DefaultOptions returns the options for a disk-backed client rooted at
// path.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:      path,
		LogOutput: io.Discard,
	}
}

// DefaultMemoryOptions returns the options for a purely in-memory client.
func DefaultMemoryOptions() *Options {
	return &Options{
		InMemory:  true,
		LogOutput: io.Discard,
	}
}

func (o *Options) logWriter() io.Writer {
	if o == nil || o.LogOutput == nil {
		return io.Discard
	}
	return o.LogOutput
}

func (o *Options) resolvedPath() (string, error) {
	if o.Path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(o.Path)
	if err != nil {
		return "", err
	}
	return abs, nil
}
