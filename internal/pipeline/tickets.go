package pipeline

import (
	"context"
	"fmt"
	"time"

	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
)

// attachTicket finds the ticket an inbound event belongs to, applying
// one reuse rule: an active ticket always wins; otherwise the most
// recent ticket is reused when it is not closed, or closed within the
// reopen window; otherwise a new pending ticket is created.  The
// unread counter is left alone here; the caller bumps it only once
// the message record actually lands, so redelivered events never
// inflate it.
func (p *Pipeline) attachTicket(ctx context.Context, contact model.Contact, channelID int64, isGroup bool, reopenWindow time.Duration) (model.Ticket, error) {
	active, err := p.db.ActiveTicket(ctx, contact.ID, channelID)
	if err == nil {
		return active, nil
	}
	if err != store.ErrNotFound {
		return model.Ticket{}, fmt.Errorf("find active ticket: %w", err)
	}

	latest, err := p.db.LatestTicket(ctx, contact.ID, channelID)
	if err == store.ErrNotFound {
		return p.db.CreateTicket(ctx, store.CreateTicketParams{
			Status:    model.StatusPending,
			ContactID: contact.ID,
			ChannelID: channelID,
			IsGroup:   isGroup,
		})
	}
	if err != nil {
		return model.Ticket{}, fmt.Errorf("find latest ticket: %w", err)
	}

	if reusable(latest, reopenWindow, time.Now()) {
		status := model.StatusPending
		var noUser int64
		var noUnread int
		return p.db.UpdateTicket(ctx, latest.ID, store.TicketUpdate{
			Status:  &status,
			Unread:  &noUnread,
			UserID:  &noUser,
			IsGroup: &isGroup,
		})
	}

	return p.db.CreateTicket(ctx, store.CreateTicketParams{
		Status:    model.StatusPending,
		ContactID: contact.ID,
		ChannelID: channelID,
		IsGroup:   isGroup,
	})
}

// reusable reports whether the most recent ticket can be reopened
// instead of creating a fresh one.
func reusable(t model.Ticket, window time.Duration, now time.Time) bool {
	if t.Status != model.StatusClosed {
		return true
	}
	return now.Sub(t.UpdatedAt) <= window
}

// attachSelfTicket is the entry path for events the monitored account
// itself produced.  They only ever join an existing active ticket; a
// self-originated event never creates or reopens one.
func (p *Pipeline) attachSelfTicket(ctx context.Context, contact model.Contact, channelID int64) (model.Ticket, error) {
	return p.db.ActiveTicket(ctx, contact.ID, channelID)
}

// promoteGroupTicket syncs the ticket's group linkage once group
// evidence appears for its conversation.
func (p *Pipeline) promoteGroupTicket(ctx context.Context, t model.Ticket, groupContact model.Contact) (model.Ticket, error) {
	if t.IsGroup && t.ContactID == groupContact.ID {
		return t, nil
	}
	isGroup := true
	return p.db.UpdateTicket(ctx, t.ID, store.TicketUpdate{
		IsGroup:   &isGroup,
		ContactID: &groupContact.ID,
	})
}

// StartTicket is the operator "start conversation" path.  It applies
// the same reuse rule as the event path, but the resulting ticket is
// open and assigned to the acting agent.
func (p *Pipeline) StartTicket(ctx context.Context, contactID, channelID, userID int64) (model.Ticket, error) {
	contact, err := p.db.ContactByID(ctx, contactID)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("contact %d: %w", contactID, err)
	}

	var queueID int64
	queues, err := p.db.QueuesByChannel(ctx, channelID)
	if err == nil && len(queues) == 1 {
		queueID = queues[0].ID
	}

	status := model.StatusOpen
	zero := 0

	latest, err := p.db.LatestTicket(ctx, contact.ID, channelID)
	if err == nil && reusable(latest, p.opts.ReopenWindow, time.Now()) {
		update := store.TicketUpdate{
			Status: &status,
			UserID: &userID,
			Unread: &zero,
		}
		if queueID != 0 {
			update.QueueID = &queueID
		}
		return p.db.UpdateTicket(ctx, latest.ID, update)
	}
	if err != nil && err != store.ErrNotFound {
		return model.Ticket{}, fmt.Errorf("find latest ticket: %w", err)
	}

	return p.db.CreateTicket(ctx, store.CreateTicketParams{
		Status:    model.StatusOpen,
		ContactID: contact.ID,
		ChannelID: channelID,
		QueueID:   queueID,
		UserID:    userID,
		IsGroup:   contact.IsGroup,
	})
}

// UpdateTicket applies an operator-driven change.  Closing a ticket
// cancels any auto-response timer still pending for it.
func (p *Pipeline) UpdateTicket(ctx context.Context, ticketID int64, u store.TicketUpdate) (model.Ticket, error) {
	if _, err := p.db.TicketByID(ctx, ticketID); err != nil {
		return model.Ticket{}, err
	}
	t, err := p.db.UpdateTicket(ctx, ticketID, u)
	if err != nil {
		return model.Ticket{}, err
	}
	if u.Status != nil && *u.Status == model.StatusClosed {
		p.sched.Cancel(t.ID)
	}
	p.notifier.NotifyTicket("update", t)
	return t, nil
}
