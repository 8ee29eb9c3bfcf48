package store

import "fmt"

// NewBackend creates a Backend based on its name.
//
// Supported backends:
//
//	"json"   - one JSON document at path (default)
//	"sqlite" - SQLite database at path
//	"memory" - in-memory (ephemeral, for testing); path is ignored
func NewBackend(kind, path string) (Backend, error) {
	switch kind {
	case "json", "":
		return NewJSONFileBackend(path)
	case "sqlite":
		return NewSqliteBackend(path)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", kind)
	}
}
