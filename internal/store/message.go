package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/matheus3301/dmsync/internal/model"
)

const messageColumns = `id, sender_id, receiver_id, text, media, created_at, is_read`

// InsertMessage appends a message to the log. The record must already carry
// its id and creation time.
func (db *DB) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.Media, m.CreatedAt.UnixMilli(), m.Read)
	return err
}

// MessagesBetween returns the full history of a pair in both directions,
// oldest first. Insertion order breaks timestamp ties.
func (db *DB) MessagesBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkReadFrom flips every unread message from sender to reader in a single
// statement and returns how many rows changed.
func (db *DB) MarkReadFrom(ctx context.Context, senderID, readerID string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0`, senderID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ChatPartners returns every identity that exchanged at least one message
// with self, most recently active first.
func (db *DB) ChatPartners(ctx context.Context, self string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT partner FROM (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner,
			       MAX(created_at) AS last_at
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
			GROUP BY partner
		)
		ORDER BY last_at DESC`, self, self, self)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var partners []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

// UnreadCountFrom counts messages from sender that reader has not read.
func (db *DB) UnreadCountFrom(ctx context.Context, senderID, readerID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0`, senderID, readerID).Scan(&n)
	return n, err
}

// LatestUnreadFrom returns the newest unread message from sender to reader, or nil.
func (db *DB) LatestUnreadFrom(ctx context.Context, senderID, readerID string) (*model.Message, error) {
	return db.queryOne(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, senderID, readerID)
}

// LatestBetween returns the newest message of the pair in either direction, or nil.
func (db *DB) LatestBetween(ctx context.Context, a, b string) (*model.Message, error) {
	return db.queryOne(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, a, b, b, a)
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func (db *DB) queryOne(ctx context.Context, query string, args ...any) (*model.Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMessage(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMessage(rows *sql.Rows) (model.Message, error) {
	var m model.Message
	var created int64
	if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Media, &created, &m.Read); err != nil {
		return model.Message{}, err
	}
	m.CreatedAt = time.UnixMilli(created)
	return m, nil
}
