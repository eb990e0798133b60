// Package wbot is the protocol session boundary.  Incoming whatsmeow
// events are resolved once, at this boundary, into a closed set of
// typed variants; nothing downstream sees an untyped payload.
package wbot

import (
	"context"
	"time"
)

// Receipt types carried by ReceiptEvent.
const (
	ReceiptDelivery = "delivery"
	ReceiptRead     = "read"
	ReceiptPlayed   = "played"
)

// MediaRef describes a downloadable attachment referenced by a
// message event.  It carries everything the protocol needs to fetch
// and decrypt the payload later.
type MediaRef struct {
	Kind          string // image, video, audio or document
	Mimetype      string
	FileName      string // document display name, when declared
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
	FileLength    uint64
}

// MessageEvent is one entry of a messages.upsert batch.
type MessageEvent struct {
	ID             string
	Chat           string // raw remote JID of the conversation
	ChatAlt        string // alternate identity for the same chat, if any
	Participant    string // author JID for group-authored messages
	ParticipantAlt string
	FromMe         bool
	PushName       string
	Timestamp      time.Time
	Body           string
	QuotedID       string
	Media          *MediaRef
}

// ReceiptEvent is one message-receipt.update entry.
type ReceiptEvent struct {
	Chat       string
	Type       string // delivery, read or played
	MessageIDs []string
}

// StatusEvent is one messages.update entry carrying a raw numeric
// acknowledgment ordinal.
type StatusEvent struct {
	ID     string
	Status int
}

// GroupUpdate is one groups.update entry.  Subject is nil when the
// update did not touch the subject.
type GroupUpdate struct {
	JID     string
	Subject *string
}

// Session is the protocol collaborator the pipeline talks to.  All
// operations are best-effort from the pipeline's point of view:
// failures degrade the feature, they never abort an event batch.
type Session interface {
	// ID returns the session identifier (the channel's session key).
	ID() string
	// SelfJID returns the monitored account's own JID, and SelfAltJID
	// its alternate identity form, either may be empty before login.
	SelfJID() string
	SelfAltJID() string
	// GroupSubject fetches the current subject of a group chat.
	GroupSubject(ctx context.Context, jid string) (string, error)
	// ProfilePictureURL fetches the chat's avatar URL, "" when unset.
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	// SendText sends a plain text message and returns the protocol
	// message ID assigned to it.
	SendText(ctx context.Context, toJID, body string) (string, error)
	// Download fetches and decrypts a referenced media payload.
	Download(ctx context.Context, ref *MediaRef) ([]byte, error)
	// SendReadReceipts marks the given message IDs as read on the
	// protocol side.
	SendReadReceipts(ctx context.Context, chatJID string, ids []string) error
}

// EventSink receives the resolved event batches.  The pipeline
// implements this; the manager never interprets events itself.
type EventSink interface {
	HandleMessages(ctx context.Context, sess Session, evts []MessageEvent)
	HandleReceipts(ctx context.Context, sess Session, evts []ReceiptEvent)
	HandleStatusUpdates(ctx context.Context, sess Session, evts []StatusEvent)
	HandleGroupUpdates(ctx context.Context, sess Session, evts []GroupUpdate)
}
