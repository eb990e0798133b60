package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"your.org/helpdesk-whatsmeow/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedContact(t *testing.T, db *DB, number string) model.Contact {
	t.Helper()
	c, err := db.UpsertContact(context.Background(), UpsertContactParams{
		Name:   number,
		Number: number,
	})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return c
}

func seedChannel(t *testing.T, db *DB) model.Channel {
	t.Helper()
	ch, err := db.ChannelBySession(context.Background(), "test-session")
	if err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return ch
}

func TestCreateMessageIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contact := seedContact(t, db, "6281111111111")
	channel := seedChannel(t, db)
	ticket, err := db.CreateTicket(ctx, CreateTicketParams{
		Status: model.StatusPending, ContactID: contact.ID, ChannelID: channel.ID,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	msg := model.Message{ID: "MSG-1", TicketID: ticket.ID, ContactID: contact.ID, Body: "hello"}
	created, err := db.CreateMessage(ctx, msg)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if !created {
		t.Fatalf("first insert should create a record")
	}

	msg.Body = "changed"
	created, err = db.CreateMessage(ctx, msg)
	if err != nil {
		t.Fatalf("redelivered insert: %v", err)
	}
	if created {
		t.Fatalf("redelivered ID must not create a second record")
	}
	got, err := db.MessageByID(ctx, "MSG-1")
	if err != nil {
		t.Fatalf("message by id: %v", err)
	}
	if got.Body != "hello" {
		t.Fatalf("redelivery must not overwrite, body = %q", got.Body)
	}
}

func TestRaiseAckMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contact := seedContact(t, db, "6282222222222")
	channel := seedChannel(t, db)
	ticket, err := db.CreateTicket(ctx, CreateTicketParams{
		Status: model.StatusOpen, ContactID: contact.ID, ChannelID: channel.ID,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if _, err := db.CreateMessage(ctx, model.Message{
		ID: "OUT-1", TicketID: ticket.ID, FromMe: true, Ack: model.AckSent,
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	changed, err := db.RaiseAck(ctx, "OUT-1", model.AckRead)
	if err != nil {
		t.Fatalf("raise ack: %v", err)
	}
	if !changed {
		t.Fatalf("raising 1 -> 3 should apply")
	}
	// A late delivery receipt must not lower the level.
	changed, err = db.RaiseAck(ctx, "OUT-1", model.AckDelivered)
	if err != nil {
		t.Fatalf("raise ack: %v", err)
	}
	if changed {
		t.Fatalf("lowering 3 -> 2 must not apply")
	}
	got, err := db.MessageByID(ctx, "OUT-1")
	if err != nil {
		t.Fatalf("message by id: %v", err)
	}
	if got.Ack != model.AckRead {
		t.Fatalf("ack = %d, want %d", got.Ack, model.AckRead)
	}
	if !got.Read {
		t.Fatalf("ack >= read level must set the read flag")
	}
}

func TestCreateTicketConvergesOnActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contact := seedContact(t, db, "6283333333333")
	channel := seedChannel(t, db)

	first, err := db.CreateTicket(ctx, CreateTicketParams{
		Status: model.StatusPending, ContactID: contact.ID, ChannelID: channel.ID, Unread: 1,
	})
	if err != nil {
		t.Fatalf("create first ticket: %v", err)
	}
	second, err := db.CreateTicket(ctx, CreateTicketParams{
		Status: model.StatusPending, ContactID: contact.ID, ChannelID: channel.ID, Unread: 1,
	})
	if err != nil {
		t.Fatalf("create second ticket: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second create returned ticket %d, want existing %d", second.ID, first.ID)
	}

	// Once the active ticket is closed a new one is allowed.
	closed := model.StatusClosed
	if _, err := db.UpdateTicket(ctx, first.ID, TicketUpdate{Status: &closed}); err != nil {
		t.Fatalf("close ticket: %v", err)
	}
	third, err := db.CreateTicket(ctx, CreateTicketParams{
		Status: model.StatusPending, ContactID: contact.ID, ChannelID: channel.ID,
	})
	if err != nil {
		t.Fatalf("create after close: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("closed ticket must not block a new one")
	}
}

func TestUpsertContactPreservesFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.UpsertContact(ctx, UpsertContactParams{
		Name:          "Budi Santoso",
		Number:        "6284444444444",
		ProfilePicURL: "https://cdn.example/pic.jpg",
		ExtraInfo:     []model.ExtraInfo{{Name: "waPushName", Value: "Budi"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// An update with empty fields must not clear what is stored.
	second, err := db.UpsertContact(ctx, UpsertContactParams{Number: "6284444444444"})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("same identity produced two contacts: %d and %d", first.ID, second.ID)
	}
	if second.Name != "Budi Santoso" {
		t.Fatalf("name cleared, got %q", second.Name)
	}
	if second.ProfilePicURL != "https://cdn.example/pic.jpg" {
		t.Fatalf("profile picture cleared, got %q", second.ProfilePicURL)
	}
	if len(second.ExtraInfo) != 1 || second.ExtraInfo[0].Value != "Budi" {
		t.Fatalf("extra info cleared, got %+v", second.ExtraInfo)
	}

	// A non-empty name does replace the stored one.
	third, err := db.UpsertContact(ctx, UpsertContactParams{Name: "Budi S.", Number: "6284444444444"})
	if err != nil {
		t.Fatalf("upsert rename: %v", err)
	}
	if third.Name != "Budi S." {
		t.Fatalf("rename not applied, got %q", third.Name)
	}
}

func TestContactsSplitByGroupFlag(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	person, err := db.UpsertContact(ctx, UpsertContactParams{Name: "Person", Number: "6285555555555"})
	if err != nil {
		t.Fatalf("upsert person: %v", err)
	}
	group, err := db.UpsertContact(ctx, UpsertContactParams{Name: "Group", Number: "6285555555555", IsGroup: true})
	if err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	if person.ID == group.ID {
		t.Fatalf("group and personal contact with the same number must be distinct")
	}
}

func TestMarkTicketMessagesRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contact := seedContact(t, db, "6286666666666")
	channel := seedChannel(t, db)
	ticket, err := db.CreateTicket(ctx, CreateTicketParams{
		Status: model.StatusPending, ContactID: contact.ID, ChannelID: channel.ID,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	for _, m := range []model.Message{
		{ID: "IN-1", TicketID: ticket.ID, ContactID: contact.ID, Body: "a"},
		{ID: "IN-2", TicketID: ticket.ID, ContactID: contact.ID, Body: "b"},
		{ID: "OUT-1", TicketID: ticket.ID, FromMe: true, Read: true, Ack: model.AckSent, Body: "c"},
	} {
		if _, err := db.CreateMessage(ctx, m); err != nil {
			t.Fatalf("create message %s: %v", m.ID, err)
		}
	}

	ids, err := db.MarkTicketMessagesRead(ctx, ticket.ID, 10)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("receipt ids = %v, want the two inbound messages", ids)
	}
	for _, id := range []string{"IN-1", "IN-2"} {
		got, err := db.MessageByID(ctx, id)
		if err != nil {
			t.Fatalf("message by id: %v", err)
		}
		if !got.Read {
			t.Fatalf("message %s still unread", id)
		}
	}

	// Second pass finds nothing left to flag.
	ids, err = db.MarkTicketMessagesRead(ctx, ticket.ID, 10)
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("second pass returned %v, want none", ids)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Defaults are seeded on first open.
	v, err := db.Setting(ctx, "outOfHours")
	if err != nil {
		t.Fatalf("seeded setting: %v", err)
	}
	if v != "disabled" {
		t.Fatalf("outOfHours default = %q, want disabled", v)
	}

	if err := db.UpsertSetting(ctx, "outOfHours", "enabled"); err != nil {
		t.Fatalf("upsert setting: %v", err)
	}
	v, err = db.Setting(ctx, "outOfHours")
	if err != nil {
		t.Fatalf("setting after upsert: %v", err)
	}
	if v != "enabled" {
		t.Fatalf("outOfHours = %q, want enabled", v)
	}

	if _, err := db.Setting(ctx, "noSuchKey"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key error = %v, want ErrNotFound", err)
	}
}

func TestQueueCreateAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	channel := seedChannel(t, db)

	q, err := db.CreateQueue(ctx, channel.ID, "Billing", "You reached billing, {{name}}.")
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	if q.ID == 0 || q.Name != "Billing" {
		t.Fatalf("unexpected queue %+v", q)
	}
	queues, err := db.QueuesByChannel(ctx, channel.ID)
	if err != nil {
		t.Fatalf("queues by channel: %v", err)
	}
	if len(queues) != 1 || queues[0].ID != q.ID {
		t.Fatalf("queues = %+v, want the created one", queues)
	}
}
