// Package names records the usernames and nicknames members have used.
package names

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// keep is the maximum number of past names recalled per user.
const keep = 20

// History is a name history backed by an SQL database.
type History struct {
	db *sqlitex.Pool
}

// Open opens an existing name history in an SQL database.
func Open(ctx context.Context, db *sqlitex.Pool) (*History, error) {
	return &History{db: db}, nil
}

//go:embed schema.sql
var schemaSQL string

// Init initializes the name history schema.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize name history schema: %w", err)
	}
	return nil
}

// ObserveName records that a user goes by a username.
// Re-observing a known name refreshes its recency.
func (h *History) ObserveName(ctx context.Context, userID, name string) error {
	conn, err := h.db.Take(ctx)
	defer h.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to record name: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{userID, name, time.Now().UnixNano()}}
	err = sqlitex.Execute(conn, `INSERT INTO name (user, name, seen) VALUES (?, ?, ?) ON CONFLICT (user, name) DO UPDATE SET seen=excluded.seen`, &opts)
	if err != nil {
		return fmt.Errorf("couldn't record name: %w", err)
	}
	return nil
}

// ObserveNick records that a member goes by a nickname in a community.
func (h *History) ObserveNick(ctx context.Context, community, userID, nick string) error {
	if nick == "" {
		return nil
	}
	conn, err := h.db.Take(ctx)
	defer h.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to record nickname: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{community, userID, nick, time.Now().UnixNano()}}
	err = sqlitex.Execute(conn, `INSERT INTO nick (community, user, nick, seen) VALUES (?, ?, ?, ?) ON CONFLICT (community, user, nick) DO UPDATE SET seen=excluded.seen`, &opts)
	if err != nil {
		return fmt.Errorf("couldn't record nickname: %w", err)
	}
	return nil
}

// Names returns a user's most recent past usernames, newest first.
func (h *History) Names(ctx context.Context, userID string) ([]string, error) {
	conn, err := h.db.Take(ctx)
	defer h.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to list names: %w", err)
	}
	var names []string
	opts := sqlitex.ExecOptions{
		Args: []any{userID, keep},
		ResultFunc: func(st *sqlite.Stmt) error {
			names = append(names, st.ColumnText(0))
			return nil
		},
	}
	err = sqlitex.Execute(conn, `SELECT name FROM name WHERE user=? ORDER BY seen DESC LIMIT ?`, &opts)
	if err != nil {
		return nil, fmt.Errorf("couldn't list names: %w", err)
	}
	return names, nil
}

// Nicks returns a member's most recent past nicknames in a community,
// newest first.
func (h *History) Nicks(ctx context.Context, community, userID string) ([]string, error) {
	conn, err := h.db.Take(ctx)
	defer h.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to list nicknames: %w", err)
	}
	var nicks []string
	opts := sqlitex.ExecOptions{
		Args: []any{community, userID, keep},
		ResultFunc: func(st *sqlite.Stmt) error {
			nicks = append(nicks, st.ColumnText(0))
			return nil
		},
	}
	err = sqlitex.Execute(conn, `SELECT nick FROM nick WHERE community=? AND user=? ORDER BY seen DESC LIMIT ?`, &opts)
	if err != nil {
		return nil, fmt.Errorf("couldn't list nicknames: %w", err)
	}
	return nicks, nil
}
