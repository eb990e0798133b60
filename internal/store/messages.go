package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"your.org/helpdesk-whatsmeow/internal/model"
)

const messageColumns = `id, ticket_id, contact_id, body, from_me, read, ack, media_url, media_type, quoted_msg_id, created_at, updated_at`

// CreateMessage inserts the message if its protocol ID has not been
// seen before.  The returned bool reports whether a new record was
// created; redelivered events hit the primary key and are ignored.
func (d *DB) CreateMessage(ctx context.Context, m model.Message) (bool, error) {
	now := nowMillis()
	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO messages(id, ticket_id, contact_id, body, from_me, read, ack, media_url, media_type, quoted_msg_id, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.TicketID, m.ContactID, m.Body, boolToInt(m.FromMe), boolToInt(m.Read), m.Ack,
		m.MediaURL, m.MediaType, m.QuotedMsgID, now, now)
	if err != nil {
		return false, fmt.Errorf("create message: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MessageByID looks up a message by its protocol ID.
func (d *DB) MessageByID(ctx context.Context, id string) (model.Message, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// RaiseAck lifts the message's acknowledgment level to ack (and the
// derived read flag) only if it actually increases.  The WHERE guard
// is the atomic check-and-set that keeps ack monotonic under
// concurrent receipt handlers; the returned bool reports whether a
// write happened.
func (d *DB) RaiseAck(ctx context.Context, id string, ack int) (bool, error) {
	read := boolToInt(ack >= model.AckRead)
	res, err := d.sql.ExecContext(ctx, `
		UPDATE messages SET ack = ?, read = CASE WHEN ? = 1 THEN 1 ELSE read END, updated_at = ?
		WHERE id = ? AND ack < ?`,
		ack, read, nowMillis(), id, ack)
	if err != nil {
		return false, fmt.Errorf("raise ack: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountMessagesByTicket counts all messages recorded on a ticket.
func (d *DB) CountMessagesByTicket(ctx context.Context, ticketID int64) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE ticket_id = ?`, ticketID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// MarkTicketMessagesRead flags every unread message on a ticket as
// read and returns the protocol IDs of the latest unread inbound
// messages (newest first, capped) so read receipts can be sent
// best-effort.
func (d *DB) MarkTicketMessagesRead(ctx context.Context, ticketID int64, receiptLimit int) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE ticket_id = ? AND read = 0 AND from_me = 0
		ORDER BY created_at DESC LIMIT ?`, ticketID, receiptLimit)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unread id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	if _, err := d.sql.ExecContext(ctx, `
		UPDATE messages SET read = 1, updated_at = ? WHERE ticket_id = ? AND read = 0`,
		nowMillis(), ticketID); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return ids, nil
}

func scanMessage(row *sql.Row) (model.Message, error) {
	var m model.Message
	var fromMe, read int
	var created, updated int64
	err := row.Scan(&m.ID, &m.TicketID, &m.ContactID, &m.Body, &fromMe, &read, &m.Ack,
		&m.MediaURL, &m.MediaType, &m.QuotedMsgID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.FromMe = fromMe != 0
	m.Read = read != 0
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return m, nil
}
