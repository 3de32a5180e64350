package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultSQLiteTable = "replied_posts"

type SQLiteLedger struct {
	db         *sql.DB
	table      string
	tableIdent string
	ttl        time.Duration
	now        func() time.Time
}

// NewSQLiteLedger opens (and creates when needed) a ledger table in the sqlite
// database at dsn. A ttl of zero keeps entries forever.
func NewSQLiteLedger(dsn string, table string, ttl time.Duration) (*SQLiteLedger, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ledger ttl must be >= 0")
	}
	if table == "" {
		table = defaultSQLiteTable
	}
	tableIdent, err := quoteIdentifier(table)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	l := &SQLiteLedger{
		db:         db,
		table:      table,
		tableIdent: tableIdent,
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) Replied(ctx context.Context, postID string) (bool, error) {
	if postID == "" {
		return false, nil
	}
	var repliedAt time.Time
	query := fmt.Sprintf("SELECT replied_at FROM %s WHERE post_id = ?", l.tableIdent)
	err := l.db.QueryRowContext(ctx, query, postID).Scan(&repliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", postID, err)
	}
	if l.ttl > 0 && repliedAt.Before(l.now().Add(-l.ttl)) {
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE post_id = ?", l.tableIdent), postID); err != nil {
			return false, fmt.Errorf("ledger expire %s: %w", postID, err)
		}
		return false, nil
	}
	return true, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, postID, replyID string) error {
	if postID == "" {
		return nil
	}
	_, err := l.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO %s (post_id, reply_id, replied_at) VALUES (?, ?, ?)
			ON CONFLICT(post_id) DO UPDATE SET reply_id = excluded.reply_id, replied_at = excluded.replied_at`, l.tableIdent),
		postID,
		replyID,
		l.now(),
	)
	if err != nil {
		return fmt.Errorf("ledger record %s: %w", postID, err)
	}
	return nil
}

// ReplyID returns the id of the reply posted for postID, if any.
func (l *SQLiteLedger) ReplyID(ctx context.Context, postID string) (string, bool, error) {
	var replyID string
	err := l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT reply_id FROM %s WHERE post_id = ?", l.tableIdent), postID).Scan(&replyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return replyID, true, nil
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *SQLiteLedger) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		post_id TEXT PRIMARY KEY,
		reply_id TEXT NOT NULL DEFAULT '',
		replied_at TIMESTAMP NOT NULL
	)`, l.tableIdent)
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_replied_at_idx ON %s (replied_at)", l.table, l.tableIdent)
	if _, err := l.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create ledger index: %w", err)
	}
	return nil
}

func ensureDir(dsn string) error {
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

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdentifier(identifier string) (string, error) {
	if !identifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("ledger table name %q must match %s", identifier, identifierPattern.String())
	}
	return `"` + identifier + `"`, nil
}
