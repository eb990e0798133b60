// Package pipeline turns resolved protocol events into contacts,
// tickets and messages, and drives the deferred auto-response.
package pipeline

import (
	"context"
	"time"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
)

// Notifier broadcasts record changes to connected operator clients.
// Implementations are best-effort; delivery failures never propagate
// back into event processing.
type Notifier interface {
	NotifyTicket(action string, t model.Ticket)
	NotifyMessage(t model.Ticket, m model.Message)
	NotifyAck(t model.Ticket, m model.Message)
}

// ContentStore persists downloaded media payloads and returns a URL
// the stored message references.
type ContentStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Options carries the tunables the pipeline needs.
type Options struct {
	GreetingDelay     time.Duration
	ReopenWindow      time.Duration
	QueueCheckKeyword string
}

// Pipeline is the ingestion core.  One instance serves every session;
// the store layer is responsible for cross-session write safety.
type Pipeline struct {
	db        *store.DB
	notifier  Notifier
	content   ContentStore
	groups    *GroupCache
	sched     *Scheduler
	overrides *Overrides
	opts      Options
}

func New(db *store.DB, notifier Notifier, content ContentStore, overrides *Overrides, opts Options) *Pipeline {
	if opts.GreetingDelay <= 0 {
		opts.GreetingDelay = 10 * time.Second
	}
	if opts.ReopenWindow <= 0 {
		opts.ReopenWindow = time.Hour
	}
	return &Pipeline{
		db:        db,
		notifier:  notifier,
		content:   content,
		groups:    NewGroupCache(),
		sched:     NewScheduler(),
		overrides: overrides,
		opts:      opts,
	}
}

// Scheduler exposes the auto-response timer registry, mainly so the
// HTTP layer can cancel a pending timer when a ticket is closed.
func (p *Pipeline) Scheduler() *Scheduler { return p.sched }

// supervise runs fn and converts a panic or error into a logged,
// skipped outcome so one bad event never stalls the batch.
func supervise(sessionID, what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithSession(sessionID).Error("%s panic: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		log.WithSession(sessionID).Error("%s error: %v", what, err)
	}
}
