package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bakkerme/matchday/internal/core"
	_ "modernc.org/sqlite"
)

const (
	defaultSQLiteTable = "seen_events"
)

// SQLiteStore keeps state in a single SQLite table. Persist replaces the
// table contents inside one transaction.
type SQLiteStore struct {
	db         *sql.DB
	table      string
	tableIdent string
}

func NewSQLiteStore(dsn string, table string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if table == "" {
		table = defaultSQLiteTable
	}
	tableIdent, err := quoteSQLiteIdentifier(table)
	if err != nil {
		return nil, err
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{
		db:         db,
		table:      table,
		tableIdent: tableIdent,
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Load(ctx context.Context) State {
	logger := core.LoggerFromContext(ctx).With("state_table", s.table)
	state, err := s.load(ctx)
	if err != nil {
		logger.Warn("state table unreadable, starting with empty state", "error", err)
		return NewState()
	}
	logger.Debug("state loaded", "seen_ids", state.Len())
	return state
}

func (s *SQLiteStore) load(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id, seen_at FROM %s", s.tableIdent))
	if err != nil {
		return State{}, err
	}
	defer rows.Close()
	state := NewState()
	for rows.Next() {
		var (
			id     string
			seenAt time.Time
		)
		if err := rows.Scan(&id, &seenAt); err != nil {
			return State{}, err
		}
		if id == "" {
			continue
		}
		state.seen[id] = seenAt.UTC()
	}
	return state, rows.Err()
}

func (s *SQLiteStore) Persist(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersist, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.tableIdent)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: clear: %w", ErrPersist, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (id, seen_at) VALUES (?, ?)", s.tableIdent))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: prepare: %w", ErrPersist, err)
	}
	defer stmt.Close()
	for id, at := range state.seen {
		if _, err := stmt.ExecContext(ctx, id, at.UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: insert %q: %w", ErrPersist, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersist, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		seen_at TIMESTAMP NOT NULL
	)`, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite table: %w", err)
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var sqliteIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteSQLiteIdentifier(identifier string) (string, error) {
	if !sqliteIdentifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("sqlite table name %q must match %s", identifier, sqliteIdentifierPattern.String())
	}
	return `"` + identifier + `"`, nil
}
