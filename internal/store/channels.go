package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"your.org/helpdesk-whatsmeow/internal/model"
)

// ChannelBySession returns the channel registered for the given
// session identifier, creating it on first sight so a newly paired
// session immediately has a channel row to hang tickets on.
func (d *DB) ChannelBySession(ctx context.Context, sessionID string) (model.Channel, error) {
	ch, err := d.channelBySession(ctx, sessionID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Channel{}, err
	}
	if _, err := d.sql.ExecContext(ctx, `
		INSERT INTO channels(session_id, name) VALUES(?, ?)
		ON CONFLICT(session_id) DO NOTHING`, sessionID, sessionID); err != nil {
		return model.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return d.channelBySession(ctx, sessionID)
}

func (d *DB) channelBySession(ctx context.Context, sessionID string) (model.Channel, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, session_id, name, greeting_message, is_default
		FROM channels WHERE session_id = ?`, sessionID)
	return scanChannel(row)
}

// ChannelByID looks up a channel by primary key.
func (d *DB) ChannelByID(ctx context.Context, id int64) (model.Channel, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, session_id, name, greeting_message, is_default
		FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// DefaultChannel returns the channel flagged as default, falling back
// to the lowest ID when none is flagged.
func (d *DB) DefaultChannel(ctx context.Context) (model.Channel, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, session_id, name, greeting_message, is_default
		FROM channels ORDER BY is_default DESC, id ASC LIMIT 1`)
	return scanChannel(row)
}

// QueuesByChannel lists the operator-defined routing queues of a
// channel, in creation order.
func (d *DB) QueuesByChannel(ctx context.Context, channelID int64) ([]model.Queue, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT id, channel_id, name, greeting_message
		FROM queues WHERE channel_id = ? ORDER BY id ASC`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()
	var queues []model.Queue
	for rows.Next() {
		var q model.Queue
		if err := rows.Scan(&q.ID, &q.ChannelID, &q.Name, &q.GreetingMessage); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return queues, nil
}

// CreateQueue registers a routing queue on a channel.
func (d *DB) CreateQueue(ctx context.Context, channelID int64, name, greeting string) (model.Queue, error) {
	res, err := d.sql.ExecContext(ctx, `
		INSERT INTO queues(channel_id, name, greeting_message) VALUES(?, ?, ?)`,
		channelID, name, greeting)
	if err != nil {
		return model.Queue{}, fmt.Errorf("create queue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Queue{}, fmt.Errorf("create queue id: %w", err)
	}
	return model.Queue{ID: id, ChannelID: channelID, Name: name, GreetingMessage: greeting}, nil
}

// SetChannelGreeting updates a channel's greeting text.
func (d *DB) SetChannelGreeting(ctx context.Context, channelID int64, greeting string) error {
	if _, err := d.sql.ExecContext(ctx,
		`UPDATE channels SET greeting_message = ? WHERE id = ?`, greeting, channelID); err != nil {
		return fmt.Errorf("set channel greeting: %w", err)
	}
	return nil
}

func scanChannel(row *sql.Row) (model.Channel, error) {
	var c model.Channel
	var def int
	err := row.Scan(&c.ID, &c.SessionID, &c.Name, &c.GreetingMessage, &def)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, ErrNotFound
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("scan channel: %w", err)
	}
	c.Default = def != 0
	return c, nil
}
