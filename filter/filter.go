// Package filter implements the per-community filtered word list.
package filter

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/wardenbot/warden/tpool"
)

// List is a filtered word list backed by an SQL database.
type List struct {
	db *sqlitex.Pool
	// fold pools the casers normalizing words and message text.
	// A Caser is not safe for concurrent use.
	fold tpool.Pool[*cases.Caser]
}

// Open opens an existing word list in an SQL database.
func Open(ctx context.Context, db *sqlitex.Pool) (*List, error) {
	l := &List{db: db}
	l.fold.New = func() any {
		c := cases.Fold()
		return &c
	}
	return l, nil
}

//go:embed schema.sql
var schemaSQL string

// Init initializes the word list schema.
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
		return fmt.Errorf("couldn't initialize filter schema: %w", err)
	}
	return nil
}

// Add adds words to a community's filter. Words fold to lower case.
// It returns the number of words newly added.
func (l *List) Add(ctx context.Context, community string, words ...string) (int, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get connection to add filtered words: %w", err)
	}
	fold := l.fold.Get()
	defer l.fold.Put(fold)
	n := 0
	for _, w := range words {
		w = fold.String(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		opts := sqlitex.ExecOptions{Args: []any{community, w}}
		err := sqlitex.Execute(conn, `INSERT OR IGNORE INTO filter (community, word) VALUES (?, ?)`, &opts)
		if err != nil {
			return n, fmt.Errorf("couldn't add filtered word: %w", err)
		}
		n += conn.Changes()
	}
	return n, nil
}

// Remove removes words from a community's filter.
// It returns the number of words removed.
func (l *List) Remove(ctx context.Context, community string, words ...string) (int, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get connection to remove filtered words: %w", err)
	}
	fold := l.fold.Get()
	defer l.fold.Put(fold)
	n := 0
	for _, w := range words {
		opts := sqlitex.ExecOptions{Args: []any{community, fold.String(strings.TrimSpace(w))}}
		err := sqlitex.Execute(conn, `DELETE FROM filter WHERE community=? AND word=?`, &opts)
		if err != nil {
			return n, fmt.Errorf("couldn't remove filtered word: %w", err)
		}
		n += conn.Changes()
	}
	return n, nil
}

// Words lists a community's filtered words.
func (l *List) Words(ctx context.Context, community string) ([]string, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to list filtered words: %w", err)
	}
	var words []string
	opts := sqlitex.ExecOptions{
		Args: []any{community},
		ResultFunc: func(st *sqlite.Stmt) error {
			words = append(words, st.ColumnText(0))
			return nil
		},
	}
	err = sqlitex.Execute(conn, `SELECT word FROM filter WHERE community=? ORDER BY word`, &opts)
	if err != nil {
		return nil, fmt.Errorf("couldn't list filtered words: %w", err)
	}
	return words, nil
}

// Match returns the first filtered word contained in text, if any.
func (l *List) Match(ctx context.Context, community, text string) (string, bool, error) {
	words, err := l.Words(ctx, community)
	if err != nil {
		return "", false, err
	}
	fold := l.fold.Get()
	folded := fold.String(text)
	l.fold.Put(fold)
	for _, w := range words {
		if strings.Contains(folded, w) {
			return w, true, nil
		}
	}
	return "", false, nil
}
