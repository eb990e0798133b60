package pipeline

import (
	"context"
	"fmt"

	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// receiptAck maps an explicit receipt type to its ack level.
func receiptAck(receiptType string) int {
	switch receiptType {
	case wbot.ReceiptDelivery:
		return model.AckDelivered
	case wbot.ReceiptRead:
		return model.AckRead
	case wbot.ReceiptPlayed:
		return model.AckPlayed
	}
	return 0
}

// reconcileAck merges an ack level into a stored message.  Only
// outbound messages carry acks, and the level only ever rises; a
// no-op merge produces no notification.
func (p *Pipeline) reconcileAck(ctx context.Context, id string, level int) error {
	if level <= 0 {
		return nil
	}
	msg, err := p.db.MessageByID(ctx, id)
	if err == store.ErrNotFound {
		// Receipt for a message never recorded; protocol noise.
		return nil
	}
	if err != nil {
		return fmt.Errorf("message %s: %w", id, err)
	}
	if !msg.FromMe {
		return nil
	}
	changed, err := p.db.RaiseAck(ctx, id, level)
	if err != nil {
		return fmt.Errorf("raise ack %s: %w", id, err)
	}
	if !changed {
		return nil
	}
	msg, err = p.db.MessageByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload message %s: %w", id, err)
	}
	ticket, err := p.db.TicketByID(ctx, msg.TicketID)
	if err != nil {
		return fmt.Errorf("ticket %d: %w", msg.TicketID, err)
	}
	p.notifier.NotifyAck(ticket, msg)
	return nil
}

// statusAck caps a generic status ordinal at delivered; raw status
// updates are never a substitute for an explicit read receipt.
func statusAck(status int) int {
	if status > model.AckDelivered {
		return model.AckDelivered
	}
	return status
}
