package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"your.org/helpdesk-whatsmeow/internal/model"
)

const ticketColumns = `id, status, contact_id, channel_id, queue_id, user_id, is_group, unread, last_message, created_at, updated_at`

// ActiveTicket returns the single open-or-pending ticket for the
// (contact, channel) pair, or ErrNotFound.
func (d *DB) ActiveTicket(ctx context.Context, contactID, channelID int64) (model.Ticket, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE contact_id = ? AND channel_id = ? AND status IN ('open', 'pending')
		ORDER BY updated_at DESC LIMIT 1`, contactID, channelID)
	return scanTicket(row)
}

// LatestTicket returns the most recently updated ticket for the
// (contact, channel) pair regardless of status, or ErrNotFound.
func (d *DB) LatestTicket(ctx context.Context, contactID, channelID int64) (model.Ticket, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE contact_id = ? AND channel_id = ?
		ORDER BY updated_at DESC LIMIT 1`, contactID, channelID)
	return scanTicket(row)
}

// TicketByID looks up a ticket by primary key.
func (d *DB) TicketByID(ctx context.Context, id int64) (model.Ticket, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	return scanTicket(row)
}

// CreateTicketParams carries the fields of a new ticket.
type CreateTicketParams struct {
	Status    string
	ContactID int64
	ChannelID int64
	QueueID   int64
	UserID    int64
	IsGroup   bool
	Unread    int
}

// CreateTicket inserts a new ticket.  The partial unique index rejects
// a second open-or-pending ticket for the same (contact, channel); on
// that conflict the existing active ticket is returned instead, which
// makes concurrent identical inbound events converge on one ticket.
func (d *DB) CreateTicket(ctx context.Context, p CreateTicketParams) (model.Ticket, error) {
	now := nowMillis()
	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO tickets(status, contact_id, channel_id, queue_id, user_id, is_group, unread, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		p.Status, p.ContactID, p.ChannelID, p.QueueID, p.UserID, boolToInt(p.IsGroup), p.Unread, now, now)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return d.ActiveTicket(ctx, p.ContactID, p.ChannelID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Ticket{}, fmt.Errorf("create ticket id: %w", err)
	}
	return d.TicketByID(ctx, id)
}

// TicketUpdate carries optional field changes; nil fields are left
// untouched.
type TicketUpdate struct {
	Status      *string
	QueueID     *int64
	UserID      *int64
	IsGroup     *bool
	Unread      *int
	ContactID   *int64
	LastMessage *string
}

// UpdateTicket applies the given changes and bumps updated_at.
func (d *DB) UpdateTicket(ctx context.Context, id int64, u TicketUpdate) (model.Ticket, error) {
	set := "updated_at = ?"
	args := []any{nowMillis()}
	appendSet := func(col string, v any) {
		set += ", " + col + " = ?"
		args = append(args, v)
	}
	if u.Status != nil {
		appendSet("status", *u.Status)
	}
	if u.QueueID != nil {
		appendSet("queue_id", *u.QueueID)
	}
	if u.UserID != nil {
		appendSet("user_id", *u.UserID)
	}
	if u.IsGroup != nil {
		appendSet("is_group", boolToInt(*u.IsGroup))
	}
	if u.Unread != nil {
		appendSet("unread", *u.Unread)
	}
	if u.ContactID != nil {
		appendSet("contact_id", *u.ContactID)
	}
	if u.LastMessage != nil {
		appendSet("last_message", *u.LastMessage)
	}
	args = append(args, id)
	if _, err := d.sql.ExecContext(ctx, `UPDATE tickets SET `+set+` WHERE id = ?`, args...); err != nil {
		return model.Ticket{}, fmt.Errorf("update ticket: %w", err)
	}
	return d.TicketByID(ctx, id)
}

// CountTicketsByStatus counts a channel's tickets in the given status.
func (d *DB) CountTicketsByStatus(ctx context.Context, channelID int64, status string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE channel_id = ? AND status = ?`, channelID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

func scanTicket(row *sql.Row) (model.Ticket, error) {
	var t model.Ticket
	var isGroup int
	var created, updated int64
	err := row.Scan(&t.ID, &t.Status, &t.ContactID, &t.ChannelID, &t.QueueID, &t.UserID,
		&isGroup, &t.Unread, &t.LastMessage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, ErrNotFound
	}
	if err != nil {
		return model.Ticket{}, fmt.Errorf("scan ticket: %w", err)
	}
	t.IsGroup = isGroup != 0
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}
