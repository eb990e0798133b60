package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"your.org/helpdesk-whatsmeow/internal/model"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: not found")

// UpsertContactParams carries the mutable fields of a contact upsert.
// An empty ProfilePicURL never clears a previously stored picture.
type UpsertContactParams struct {
	Name          string
	Number        string
	ProfilePicURL string
	IsGroup       bool
	ExtraInfo     []model.ExtraInfo
}

// UpsertContact creates or updates the contact identified by
// (Number, IsGroup) and returns the resulting record.  The unique
// constraint guarantees at most one contact per identity even under
// concurrent writers.
func (d *DB) UpsertContact(ctx context.Context, p UpsertContactParams) (model.Contact, error) {
	extra := []byte("[]")
	if len(p.ExtraInfo) > 0 {
		b, err := json.Marshal(p.ExtraInfo)
		if err != nil {
			return model.Contact{}, fmt.Errorf("marshal extra info: %w", err)
		}
		extra = b
	}
	now := nowMillis()
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO contacts(name, number, profile_pic_url, is_group, extra_info, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number, is_group) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE contacts.name END,
			profile_pic_url = CASE WHEN excluded.profile_pic_url <> '' THEN excluded.profile_pic_url ELSE contacts.profile_pic_url END,
			extra_info = CASE WHEN excluded.extra_info <> '[]' THEN excluded.extra_info ELSE contacts.extra_info END,
			updated_at = excluded.updated_at`,
		p.Name, p.Number, p.ProfilePicURL, boolToInt(p.IsGroup), string(extra), now, now)
	if err != nil {
		return model.Contact{}, fmt.Errorf("upsert contact: %w", err)
	}
	return d.ContactByNumber(ctx, p.Number, p.IsGroup)
}

// ContactByNumber looks up a contact by its business key.
func (d *DB) ContactByNumber(ctx context.Context, number string, isGroup bool) (model.Contact, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, name, number, profile_pic_url, is_group, extra_info, created_at, updated_at
		FROM contacts WHERE number = ? AND is_group = ?`, number, boolToInt(isGroup))
	return scanContact(row)
}

// ContactByID looks up a contact by primary key.
func (d *DB) ContactByID(ctx context.Context, id int64) (model.Contact, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT id, name, number, profile_pic_url, is_group, extra_info, created_at, updated_at
		FROM contacts WHERE id = ?`, id)
	return scanContact(row)
}

func scanContact(row *sql.Row) (model.Contact, error) {
	var c model.Contact
	var isGroup int
	var extra string
	var created, updated int64
	err := row.Scan(&c.ID, &c.Name, &c.Number, &c.ProfilePicURL, &isGroup, &extra, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, ErrNotFound
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	c.IsGroup = isGroup != 0
	if extra != "" && extra != "[]" {
		_ = json.Unmarshal([]byte(extra), &c.ExtraInfo)
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}
