// Package amqp consumes operator-initiated outbound sends.  The
// resulting protocol echo flows back through the event pipeline, so
// the consumer itself never writes to the database.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"your.org/helpdesk-whatsmeow/internal/config"
	"your.org/helpdesk-whatsmeow/internal/jid"
	ilog "your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// OutgoingText is one send command.
type OutgoingText struct {
	To      string `json:"to"`
	IsGroup bool   `json:"is_group,omitempty"`
	Body    string `json:"body"`
}

// Envelope is the wrapper on the wire: { payload: {...}, id: "..." }.
type Envelope struct {
	Payload OutgoingText `json:"payload"`
	ID      string       `json:"id,omitempty"`
}

type Consumer struct {
	cfg     *config.Config
	manager *wbot.Manager
	conn    *amqp.Connection
	ch      *amqp.Channel
}

func NewConsumer(cfg *config.Config, manager *wbot.Manager) *Consumer {
	return &Consumer{cfg: cfg, manager: manager}
}

// suffixFromRoutingKey extracts the wildcard suffix carrying the
// session id, e.g. helpdesk.send.<session> with binding
// helpdesk.send.*.
func suffixFromRoutingKey(binding, rk string) string {
	prefix := binding
	if i := strings.IndexAny(binding, "*#"); i >= 0 {
		prefix = strings.TrimSuffix(binding[:i], ".")
	}
	if prefix != "" && strings.HasPrefix(rk, prefix+".") {
		return strings.TrimPrefix(rk, prefix+".")
	}
	parts := strings.Split(rk, ".")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return rk
}

func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg.AMQPURL == "" {
		ilog.Infof("AMQP URL is empty; skipping consumer startup")
		<-ctx.Done()
		return nil
	}
	conn, err := amqp.Dial(c.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to dial AMQP: %w", err)
	}
	c.conn = conn
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.ch = ch

	if err := ch.ExchangeDeclare(
		c.cfg.AMQPExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.AMQPQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		c.cfg.AMQPQueue,
		c.cfg.AMQPBinding,
		c.cfg.AMQPExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.AMQPQueue,
		"",
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume from queue: %w", err)
	}

	ilog.Infof("AMQP consumer connected, waiting for messages on %s", c.cfg.AMQPBinding)

	for {
		select {
		case <-ctx.Done():
			if err := ch.Close(); err != nil {
				ilog.Errorf("failed to close AMQP channel: %v", err)
			}
			if err := conn.Close(); err != nil {
				ilog.Errorf("failed to close AMQP connection: %v", err)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				time.Sleep(500 * time.Millisecond)
				return fmt.Errorf("AMQP deliveries channel closed")
			}

			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				ilog.Errorf("failed to decode send command: %v", err)
				continue
			}
			if strings.TrimSpace(env.Payload.To) == "" || strings.TrimSpace(env.Payload.Body) == "" {
				ilog.Debugf("send command without to/body, skipped rk=%s", d.RoutingKey)
				continue
			}

			sessionID := suffixFromRoutingKey(c.cfg.AMQPBinding, d.RoutingKey)
			sess, found := c.manager.Session(sessionID)
			if !found {
				ilog.Errorf("send command for unknown session %s", sessionID)
				continue
			}

			go func(cmd OutgoingText, sess wbot.Session) {
				to := jid.Build(cmd.To, cmd.IsGroup)
				id, err := sess.SendText(context.Background(), to, cmd.Body)
				if err != nil {
					ilog.Errorf("failed to send text (session=%s to=%s): %v", sess.ID(), to, err)
					return
				}
				ilog.WithSession(sess.ID()).WithMessageID(id).Info("operator send delivered to=%s", to)
			}(env.Payload, sess)
		}
	}
}
