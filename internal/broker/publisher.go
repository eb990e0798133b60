// Package broker publishes record-change notifications for connected
// operator clients over RabbitMQ.
package broker

import (
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/model"
)

// Publisher maintains a single shared connection/channel and declares
// the destination topic exchange on first use.  Clients bind with
// ticket.{id} for one conversation or ticket.* plus notification for
// the dashboard feed.
type Publisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, exchange string) *Publisher {
	return &Publisher{url: url, exchange: exchange}
}

func (p *Publisher) ensure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.url == "" {
		return fmt.Errorf("AMQP URL not configured")
	}
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
		return nil
	}
	// (Re)connect
	if p.conn != nil {
		_ = p.conn.Close()
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.ch = ch
	log.Infof("AMQP notification publisher connected: exchange=%s", p.exchange)
	return nil
}

func (p *Publisher) publish(routingKey string, payload any) error {
	if err := p.ensure(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := p.ch.Publish(p.exchange, routingKey, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	log.Debugf("amqp notification published rk=%s bytes=%d", routingKey, len(body))
	return nil
}

// NotifyTicket broadcasts a ticket change on its own topic and on the
// shared notification feed.
func (p *Publisher) NotifyTicket(action string, t model.Ticket) {
	payload := map[string]any{"type": "ticket", "action": action, "ticket": ticketJSON(t)}
	if err := p.publish(fmt.Sprintf("ticket.%d", t.ID), payload); err != nil {
		log.Errorf("notify ticket %d: %v", t.ID, err)
		return
	}
	if err := p.publish("notification", payload); err != nil {
		log.Errorf("notify ticket %d feed: %v", t.ID, err)
	}
}

// NotifyMessage broadcasts a newly recorded message to its ticket's
// topic; inbound messages also hit the notification feed so idle
// operators see new traffic.
func (p *Publisher) NotifyMessage(t model.Ticket, m model.Message) {
	payload := map[string]any{"type": "message", "ticket": ticketJSON(t), "message": messageJSON(m)}
	if err := p.publish(fmt.Sprintf("ticket.%d", t.ID), payload); err != nil {
		log.Errorf("notify message %s: %v", m.ID, err)
		return
	}
	if !m.FromMe {
		if err := p.publish("notification", payload); err != nil {
			log.Errorf("notify message %s feed: %v", m.ID, err)
		}
	}
}

// NotifyAck broadcasts a message acknowledgment change scoped to the
// owning ticket.
func (p *Publisher) NotifyAck(t model.Ticket, m model.Message) {
	payload := map[string]any{"type": "messageAck", "message": messageJSON(m)}
	if err := p.publish(fmt.Sprintf("ticket.%d", t.ID), payload); err != nil {
		log.Errorf("notify ack %s: %v", m.ID, err)
	}
}

// Close releases the AMQP resources.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func ticketJSON(t model.Ticket) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"status":       t.Status,
		"contact_id":   t.ContactID,
		"channel_id":   t.ChannelID,
		"queue_id":     t.QueueID,
		"user_id":      t.UserID,
		"is_group":     t.IsGroup,
		"unread":       t.Unread,
		"last_message": t.LastMessage,
		"updated_at":   t.UpdatedAt.UnixMilli(),
	}
}

func messageJSON(m model.Message) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"ticket_id":     m.TicketID,
		"contact_id":    m.ContactID,
		"body":          m.Body,
		"from_me":       m.FromMe,
		"read":          m.Read,
		"ack":           m.Ack,
		"media_url":     m.MediaURL,
		"media_type":    m.MediaType,
		"quoted_msg_id": m.QuotedMsgID,
		"created_at":    m.CreatedAt.UnixMilli(),
	}
}
