package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"your.org/helpdesk-whatsmeow/internal/jid"
	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// statusBroadcastJID is the pseudo-chat carrying WhatsApp stories;
// nothing in it concerns the helpdesk.
const statusBroadcastJID = "status@broadcast"

// HandleMessages processes a messages batch sequentially, in batch
// order, isolating each event's failure from the rest.
func (p *Pipeline) HandleMessages(ctx context.Context, sess wbot.Session, evts []wbot.MessageEvent) {
	for _, evt := range evts {
		evt := evt
		supervise(sess.ID(), "message "+evt.ID, func() error {
			return p.processMessage(ctx, sess, evt)
		})
	}
}

func (p *Pipeline) processMessage(ctx context.Context, sess wbot.Session, evt wbot.MessageEvent) error {
	entry := log.WithSession(sess.ID()).WithMessageID(evt.ID)

	if evt.Chat == statusBroadcastJID {
		return nil
	}
	if evt.Body == "" && evt.Media == nil {
		return nil
	}

	isGroup := jid.IsGroup(evt.Chat)
	chatJID := evt.Chat

	// A chat with the monitored account itself carries nothing
	// ticket-worthy.  The mirrored copy of such a message arrives
	// without the from-me flag, so both directions are skipped.
	if !isGroup && isSelfChat(sess, chatJID, evt.ChatAlt) {
		return nil
	}

	channel, err := p.db.ChannelBySession(ctx, sess.ID())
	if err != nil {
		return fmt.Errorf("channel for session: %w", err)
	}

	// Sender contact.  Absent for self-originated events; for group
	// messages this is the authoring participant.
	var senderContact model.Contact
	if !evt.FromMe {
		senderJID := jid.PreferPhone(chatJID, evt.ChatAlt)
		if isGroup {
			senderJID = jid.PreferPhone(evt.Participant, evt.ParticipantAlt)
		}
		number := jid.User(senderJID)
		if number == "" {
			return fmt.Errorf("event %s has no sender identity", evt.ID)
		}
		senderContact, err = p.resolveContact(ctx, evt.PushName, number, false)
		if err != nil {
			return fmt.Errorf("resolve sender: %w", err)
		}
		p.fetchProfilePicture(ctx, sess, senderContact, jid.Build(number, false))
	}

	// The ticket belongs to the group contact for group chats, and to
	// the sender otherwise.
	ticketContact := senderContact
	if isGroup {
		subject, err := p.groups.Subject(ctx, chatJID, sess.GroupSubject)
		if err != nil {
			entry.Debug("group subject fetch: %v", err)
		}
		ticketContact, err = p.resolveContact(ctx, subject, jid.User(chatJID), true)
		if err != nil {
			return fmt.Errorf("resolve group contact: %w", err)
		}
		p.fetchProfilePicture(ctx, sess, ticketContact, chatJID)
	}

	var ticket model.Ticket
	if evt.FromMe {
		if isGroup {
			ticket, err = p.attachSelfTicket(ctx, ticketContact, channel.ID)
		} else {
			ticket, err = p.attachSelfTicket(ctx, senderContactForSelf(ctx, p, chatJID, evt.ChatAlt), channel.ID)
		}
		if err == store.ErrNotFound {
			entry.Debug("self event without active ticket, dropped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("attach self ticket: %w", err)
		}
	} else {
		ticket, err = p.attachTicket(ctx, ticketContact, channel.ID, isGroup, p.reopenWindow(sess.ID()))
		if err != nil {
			return fmt.Errorf("attach ticket: %w", err)
		}
	}

	if isGroup {
		ticket, err = p.promoteGroupTicket(ctx, ticket, ticketContact)
		if err != nil {
			return fmt.Errorf("promote group ticket: %w", err)
		}
	}

	media := p.persistMedia(ctx, sess, evt)

	quotedID := ""
	if evt.QuotedID != "" {
		if _, err := p.db.MessageByID(ctx, evt.QuotedID); err == nil {
			quotedID = evt.QuotedID
		}
	}

	msg := model.Message{
		ID:          evt.ID,
		TicketID:    ticket.ID,
		ContactID:   senderContact.ID,
		Body:        evt.Body,
		FromMe:      evt.FromMe,
		Read:        evt.FromMe,
		MediaType:   model.MediaChat,
		QuotedMsgID: quotedID,
	}
	if evt.FromMe {
		msg.Ack = model.AckSent
	}
	if media != nil {
		msg.MediaURL = media.URL
		msg.MediaType = media.Category
		if msg.Body == "" {
			msg.Body = media.FileName
		}
	}

	created, err := p.db.CreateMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if !created {
		// Protocol redelivery; the first pass already did the work.
		entry.Debug("duplicate message id, skipped")
		return nil
	}

	// The unread counter bumps here, after the insert, so a
	// redelivered event that hit the dedup above never inflates it.
	preview := msg.Body
	update := store.TicketUpdate{LastMessage: &preview}
	if !evt.FromMe {
		unread := ticket.Unread + 1
		update.Unread = &unread
	}
	ticket, err = p.db.UpdateTicket(ctx, ticket.ID, update)
	if err != nil {
		return fmt.Errorf("update last message: %w", err)
	}

	p.notifier.NotifyMessage(ticket, msg)
	p.notifier.NotifyTicket("update", ticket)
	entry.Info("message recorded ticket=%d from_me=%t group=%t media=%s", ticket.ID, evt.FromMe, isGroup, msg.MediaType)

	if !evt.FromMe {
		p.answerQueueCheck(ctx, sess, channel, chatJID, evt.Body)
		if !isGroup {
			n, err := p.db.CountMessagesByTicket(ctx, ticket.ID)
			if err != nil {
				return fmt.Errorf("count ticket messages: %w", err)
			}
			if n == 1 {
				p.scheduleAutoReply(sess, ticket.ID, chatJID)
			}
		}
	}
	return nil
}

// isSelfChat reports whether the chat counterpart is the monitored
// account itself, under either identity form.
func isSelfChat(sess wbot.Session, chatJID, chatAlt string) bool {
	user := jid.User(chatJID)
	altUser := jid.User(chatAlt)
	for _, self := range []string{jid.User(sess.SelfJID()), jid.User(sess.SelfAltJID())} {
		if self == "" {
			continue
		}
		if user == self || altUser == self {
			return true
		}
	}
	return false
}

// senderContactForSelf looks up the counterpart contact of a
// self-originated direct chat without creating it.
func senderContactForSelf(ctx context.Context, p *Pipeline, chatJID, chatAlt string) model.Contact {
	number := jid.User(jid.PreferPhone(chatJID, chatAlt))
	contact, err := p.db.ContactByNumber(ctx, number, false)
	if err != nil {
		return model.Contact{}
	}
	return contact
}

// reopenWindow returns the per-session override when present.
func (p *Pipeline) reopenWindow(sessionID string) time.Duration {
	if p.overrides != nil {
		if ov, ok := p.overrides.Fetch(sessionID); ok && ov.ReopenWindow > 0 {
			return ov.ReopenWindow
		}
	}
	return p.opts.ReopenWindow
}

// answerQueueCheck replies with the channel's pending-ticket count
// when the inbound text is exactly the check keyword.
func (p *Pipeline) answerQueueCheck(ctx context.Context, sess wbot.Session, channel model.Channel, chatJID, body string) {
	keyword := strings.TrimSpace(p.opts.QueueCheckKeyword)
	if keyword == "" || !strings.EqualFold(strings.TrimSpace(body), keyword) {
		return
	}
	n, err := p.db.CountTicketsByStatus(ctx, channel.ID, model.StatusPending)
	if err != nil {
		log.WithSession(sess.ID()).Error("pending count: %v", err)
		return
	}
	reply := fmt.Sprintf("Saat ini terdapat %d antrian yang belum diproses.", n)
	if _, err := sess.SendText(ctx, chatJID, reply); err != nil {
		log.WithSession(sess.ID()).Error("queue check reply: %v", err)
	}
}

// HandleReceipts merges explicit receipt events into message acks.
func (p *Pipeline) HandleReceipts(ctx context.Context, sess wbot.Session, evts []wbot.ReceiptEvent) {
	for _, evt := range evts {
		level := receiptAck(evt.Type)
		if level == 0 {
			continue
		}
		for _, id := range evt.MessageIDs {
			id := id
			supervise(sess.ID(), "receipt "+id, func() error {
				return p.reconcileAck(ctx, id, level)
			})
		}
	}
}

// HandleStatusUpdates merges raw numeric status deltas, capped at
// delivered.
func (p *Pipeline) HandleStatusUpdates(ctx context.Context, sess wbot.Session, evts []wbot.StatusEvent) {
	for _, evt := range evts {
		evt := evt
		supervise(sess.ID(), "status "+evt.ID, func() error {
			return p.reconcileAck(ctx, evt.ID, statusAck(evt.Status))
		})
	}
}

// HandleGroupUpdates refreshes the subject cache and the group
// contact's display name.
func (p *Pipeline) HandleGroupUpdates(ctx context.Context, sess wbot.Session, evts []wbot.GroupUpdate) {
	for _, evt := range evts {
		evt := evt
		supervise(sess.ID(), "group update "+evt.JID, func() error {
			if evt.Subject == nil {
				return nil
			}
			p.groups.Put(evt.JID, *evt.Subject)
			_, err := p.resolveContact(ctx, *evt.Subject, jid.User(evt.JID), true)
			return err
		})
	}
}

// MarkTicketRead is the operator path that flags a ticket's stored
// messages read, zeroes the unread counter, and best-effort sends
// protocol read receipts for the latest unread inbound messages.
func (p *Pipeline) MarkTicketRead(ctx context.Context, sess wbot.Session, ticketID int64) (model.Ticket, error) {
	ticket, err := p.db.TicketByID(ctx, ticketID)
	if err != nil {
		return model.Ticket{}, err
	}
	ids, err := p.db.MarkTicketMessagesRead(ctx, ticketID, 10)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("mark messages read: %w", err)
	}
	zero := 0
	ticket, err = p.db.UpdateTicket(ctx, ticketID, store.TicketUpdate{Unread: &zero})
	if err != nil {
		return model.Ticket{}, fmt.Errorf("zero unread: %w", err)
	}
	if sess != nil && len(ids) > 0 {
		contact, err := p.db.ContactByID(ctx, ticket.ContactID)
		if err == nil {
			chatJID := jid.Build(contact.Number, contact.IsGroup)
			if err := sess.SendReadReceipts(ctx, chatJID, ids); err != nil {
				log.WithSession(sess.ID()).WithTicket(ticketID).Error("read receipts: %v", err)
			}
		}
	}
	p.notifier.NotifyTicket("updateUnread", ticket)
	return ticket, nil
}
