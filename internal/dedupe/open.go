package dedupe

import (
	"fmt"
	"strings"
)

// Open returns the store for the configured backend ("file" or "sqlite").
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "file", "json":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path, "")
	default:
		return nil, fmt.Errorf("unknown state backend %q (expected file or sqlite)", backend)
	}
}
