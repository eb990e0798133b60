// Package model defines the persisted domain records produced by the
// inbound event pipeline.
package model

import "time"

// Ticket status values.  closed is terminal unless the ticket is
// reopened within the reopen window.
const (
	StatusOpen    = "open"
	StatusPending = "pending"
	StatusClosed  = "closed"
)

// Acknowledgment levels for outbound messages.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
	AckPlayed    = 4
)

// Media categories stored on a message.
const (
	MediaChat     = "chat"
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaAudio    = "audio"
	MediaDocument = "document"
)

// ExtraInfo is a free-form key/value attribute attached to a contact,
// e.g. the raw push name reported by the protocol.
type ExtraInfo struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Contact is one chat counterpart, keyed by (Number, IsGroup).
type Contact struct {
	ID            int64
	Name          string
	Number        string
	ProfilePicURL string
	IsGroup       bool
	ExtraInfo     []ExtraInfo
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ticket is one conversation thread between a contact and a channel.
// At most one ticket per (contact, channel) may be open or pending at
// any time.
type Ticket struct {
	ID          int64
	Status      string
	ContactID   int64
	ChannelID   int64
	QueueID     int64 // 0 when unassigned
	UserID      int64 // assigned agent, 0 when unassigned
	IsGroup     bool
	Unread      int
	LastMessage string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is one protocol event materialized as a record.  The
// protocol-assigned ID is the idempotency key: the same ID observed
// twice never creates two records.
type Message struct {
	ID          string
	TicketID    int64
	ContactID   int64 // 0 for messages sent by the monitored account
	Body        string
	FromMe      bool
	Read        bool
	Ack         int
	MediaURL    string
	MediaType   string
	QuotedMsgID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Queue is an operator-defined routing bucket tickets can be assigned
// to.
type Queue struct {
	ID              int64
	ChannelID       int64
	Name            string
	GreetingMessage string
}

// Channel is one connected protocol session (one WhatsApp account).
type Channel struct {
	ID              int64
	SessionID       string
	Name            string
	GreetingMessage string
	Default         bool
}

// Setting is an operator-editable key/value configuration entry.  The
// business-hours policy lives here and is read fresh per evaluation.
type Setting struct {
	Key   string
	Value string
}
