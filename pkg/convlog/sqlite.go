package convlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-companion/pkg/voice"
)

const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		isUser INTEGER NOT NULL,
		createdAt INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_created ON messages(createdAt);
`

// SQLite stores messages in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "companion", "conversation.sqlite")
}

// OpenSQLite opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = DefaultDBPath()
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Append inserts msg. Re-appending the same id is ignored.
func (s *SQLite) Append(ctx context.Context, msg voice.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (id, text, isUser, createdAt)
		VALUES (?, ?, ?, ?)
	`, msg.ID, msg.Text, msg.IsUser, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest messages, oldest first.
func (s *SQLite) Recent(ctx context.Context, n int) ([]voice.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, isUser, createdAt
		FROM messages
		ORDER BY createdAt DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []voice.Message
	for rows.Next() {
		var m voice.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Text, &m.IsUser, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Count returns the number of stored messages.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLite)(nil)
