package post

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	topic        TEXT NOT NULL,
	kind         TEXT NOT NULL,
	text         TEXT NOT NULL,
	image_url    TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL,
	pending_edit TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS terminal_ids (
	id TEXT PRIMARY KEY
);
`

// SQLiteStore is a durable Store backend. It honors the same contract as
// MemoryStore; per-session mutual exclusion is provided by keyed mutexes in
// front of the database.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// modernc sqlite serializes access per connection; one is enough here
	// and avoids SQLITE_BUSY between the keyed-lock sections.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &SQLiteStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func (st *SQLiteStore) Close() error {
	return st.db.Close()
}

func (st *SQLiteStore) lockFor(id string) *sync.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()
	l, ok := st.locks[id]
	if !ok {
		l = &sync.Mutex{}
		st.locks[id] = l
	}
	return l
}

func (st *SQLiteStore) Create(ctx context.Context, s Session) error {
	l := st.lockFor(s.ID)
	l.Lock()
	defer l.Unlock()

	terminal, err := st.isTerminal(ctx, s.ID)
	if err != nil {
		return err
	}
	if terminal {
		return ErrDuplicateSession
	}
	if s.State == "" {
		s.State = StateDraft
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = st.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, kind, text, image_url, state, pending_edit, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Topic, string(s.Kind), s.Text, s.ImageURL, string(s.State), s.PendingEdit, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isSQLiteConstraintError(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (st *SQLiteStore) Get(ctx context.Context, id string) (Session, error) {
	return st.get(ctx, id)
}

func (st *SQLiteStore) Update(ctx context.Context, id string, fn func(*Session) error) error {
	l := st.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s, err := st.get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			terminal, terr := st.isTerminal(ctx, id)
			if terr == nil && terminal {
				return ErrInvalidState
			}
		}
		return err
	}

	wasTerminal := s.State.Terminal()
	if err := fn(&s); err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()

	_, err = st.db.ExecContext(ctx,
		`UPDATE sessions SET topic = ?, kind = ?, text = ?, image_url = ?, state = ?, pending_edit = ?, updated_at = ? WHERE id = ?`,
		s.Topic, string(s.Kind), s.Text, s.ImageURL, string(s.State), s.PendingEdit, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if s.State.Terminal() && !wasTerminal {
		if _, err := st.db.ExecContext(ctx, `INSERT OR IGNORE INTO terminal_ids (id) VALUES (?)`, s.ID); err != nil {
			return fmt.Errorf("record terminal id: %w", err)
		}
	}
	return nil
}

func (st *SQLiteStore) Remove(ctx context.Context, id string) error {
	l := st.lockFor(id)
	l.Lock()
	defer l.Unlock()
	if _, err := st.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (st *SQLiteStore) get(ctx context.Context, id string) (Session, error) {
	row := st.db.QueryRowContext(ctx,
		`SELECT id, topic, kind, text, image_url, state, pending_edit, created_at, updated_at FROM sessions WHERE id = ?`, id)
	var s Session
	var kind, state string
	err := row.Scan(&s.ID, &s.Topic, &kind, &s.Text, &s.ImageURL, &state, &s.PendingEdit, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	s.Kind = Kind(kind)
	s.State = State(state)
	return s, nil
}

func (st *SQLiteStore) isTerminal(ctx context.Context, id string) (bool, error) {
	row := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM terminal_ids WHERE id = ?`, id)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("read terminal ids: %w", err)
	}
	return n > 0, nil
}

func isSQLiteConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint violations in the message; the
	// driver error type is not exported in a matchable way.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint") || strings.Contains(msg, "unique")
}
