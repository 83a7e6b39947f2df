package dedupe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bakkerme/matchday/internal/core"
	"github.com/google/renameio/v2"
)

const stateVersion = 1

// FileStore keeps state in a single JSON document on local disk.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &FileStore{path: path, now: time.Now}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) State {
	logger := core.LoggerFromContext(ctx).With("state_path", s.path)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no state file found, starting with empty state")
		return NewState()
	}
	if err != nil {
		logger.Warn("state file unreadable, starting with empty state", "error", err)
		return NewState()
	}
	state, err := decodeState(data, s.now().UTC())
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if renameErr := os.Rename(s.path, aside); renameErr != nil {
			logger.Warn("state file corrupt, starting with empty state", "error", err, "rename_error", renameErr)
		} else {
			logger.Warn("state file corrupt, moved aside and starting with empty state", "error", err, "moved_to", aside)
		}
		return NewState()
	}
	logger.Debug("state loaded", "seen_ids", state.Len())
	return state
}

func (s *FileStore) Persist(ctx context.Context, state State) error {
	data, err := encodeState(state, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	// renameio writes a temp file next to the target, fsyncs it and renames
	// it into place, so a crash leaves either the old or the new document.
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersist, s.path, err)
	}
	core.LoggerFromContext(ctx).Debug("state persisted", "state_path", s.path, "seen_ids", state.Len())
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

type stateDocument struct {
	Version      int                  `json:"version"`
	UpdatedAt    time.Time            `json:"updated_at"`
	SeenEventIDs map[string]time.Time `json:"seen_event_ids"`
}

type rawStateDocument struct {
	Version      int             `json:"version"`
	SeenEventIDs json.RawMessage `json:"seen_event_ids"`
}

func encodeState(state State, now time.Time) ([]byte, error) {
	doc := stateDocument{
		Version:      stateVersion,
		UpdatedAt:    now,
		SeenEventIDs: make(map[string]time.Time, state.Len()),
	}
	for id, at := range state.seen {
		doc.SeenEventIDs[id] = at.UTC()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decodeState accepts seen_event_ids either as an object of id to first-seen
// time or as a plain array of ids; array entries are stamped with now.
func decodeState(data []byte, now time.Time) (State, error) {
	var raw rawStateDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	if raw.Version > stateVersion {
		return State{}, fmt.Errorf("unsupported state version %d", raw.Version)
	}
	state := NewState()
	trimmed := bytes.TrimSpace(raw.SeenEventIDs)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return state, nil
	}
	switch trimmed[0] {
	case '{':
		var seen map[string]time.Time
		if err := json.Unmarshal(trimmed, &seen); err != nil {
			return State{}, fmt.Errorf("decode seen_event_ids: %w", err)
		}
		for id, at := range seen {
			if id == "" {
				continue
			}
			state.seen[id] = at.UTC()
		}
	case '[':
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return State{}, fmt.Errorf("decode seen_event_ids: %w", err)
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, ok := state.seen[id]; !ok {
				state.seen[id] = now
			}
		}
	default:
		return State{}, fmt.Errorf("seen_event_ids must be an object or an array")
	}
	return state, nil
}
