package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// Scheduler owns the one-shot auto-response timers, keyed by ticket
// id so an operator action can cancel a timer before it fires.
type Scheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: map[int64]*time.Timer{}}
}

// Schedule arms the timer for a ticket, replacing any earlier one.
func (s *Scheduler) Schedule(ticketID int64, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[ticketID]; ok {
		t.Stop()
	}
	s.timers[ticketID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, ticketID)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops a pending timer, if any.
func (s *Scheduler) Cancel(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[ticketID]; ok {
		t.Stop()
		delete(s.timers, ticketID)
	}
}

// HoursPolicy is the operator-editable business-hours snapshot, read
// fresh per evaluation.
type HoursPolicy struct {
	Enabled     bool
	Message     string
	StartMin    int
	EndMin      int
	Days        map[time.Weekday]bool
	TzOffsetMin int
}

// InHours reports whether now falls inside the policy's window.  The
// policy offset is relative to the operator's reference timezone, so
// the server's own offset is backed out first.
func (hp HoursPolicy) InHours(now time.Time) bool {
	_, serverOff := now.Zone()
	serverOffsetMin := -serverOff / 60
	shifted := now.Add(time.Duration(hp.TzOffsetMin+serverOffsetMin) * time.Minute)
	if !hp.Days[shifted.Weekday()] {
		return false
	}
	minute := shifted.Hour()*60 + shifted.Minute()
	return minute >= hp.StartMin && minute <= hp.EndMin
}

func parseClockMinutes(v string, fallback int) int {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return fallback
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return fallback
	}
	return h*60 + m
}

func parseDays(v string) map[time.Weekday]bool {
	days := map[time.Weekday]bool{}
	for _, tok := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err == nil && n >= 0 && n <= 6 {
			days[time.Weekday(n)] = true
		}
	}
	return days
}

// loadHoursPolicy reads the current policy from settings.
func (p *Pipeline) loadHoursPolicy(ctx context.Context) (HoursPolicy, error) {
	vals, err := p.db.Settings(ctx,
		"outOfHours", "outOfHoursMessage",
		"businessHoursStart", "businessHoursEnd",
		"businessDays", "businessTzOffsetMin")
	if err != nil {
		return HoursPolicy{}, fmt.Errorf("load hours policy: %w", err)
	}
	offset, _ := strconv.Atoi(strings.TrimSpace(vals["businessTzOffsetMin"]))
	return HoursPolicy{
		Enabled:     vals["outOfHours"] == "enabled",
		Message:     vals["outOfHoursMessage"],
		StartMin:    parseClockMinutes(vals["businessHoursStart"], 8*60),
		EndMin:      parseClockMinutes(vals["businessHoursEnd"], 17*60),
		Days:        parseDays(vals["businessDays"]),
		TzOffsetMin: offset,
	}, nil
}

// scheduleAutoReply arms the deferred auto-response for a freshly
// started conversation.
func (p *Pipeline) scheduleAutoReply(sess wbot.Session, ticketID int64, chatJID string) {
	delay := p.opts.GreetingDelay
	if p.overrides != nil {
		if ov, ok := p.overrides.Fetch(sess.ID()); ok && ov.GreetingDelay > 0 {
			delay = ov.GreetingDelay
		}
	}
	p.sched.Schedule(ticketID, delay, func() {
		supervise(sess.ID(), "auto reply", func() error {
			return p.runAutoReply(context.Background(), sess, ticketID, chatJID)
		})
	})
}

// runAutoReply fires once per new conversation: assigns the single
// queue when there is one, then sends at most one reply with the
// out-of-hours message taking precedence over greetings.
func (p *Pipeline) runAutoReply(ctx context.Context, sess wbot.Session, ticketID int64, chatJID string) error {
	entry := log.WithSession(sess.ID()).WithTicket(ticketID)

	ticket, err := p.db.TicketByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("ticket %d: %w", ticketID, err)
	}
	if ticket.Status == model.StatusClosed {
		return nil
	}
	channel, err := p.db.ChannelByID(ctx, ticket.ChannelID)
	if err != nil {
		return fmt.Errorf("channel %d: %w", ticket.ChannelID, err)
	}
	queues, err := p.db.QueuesByChannel(ctx, channel.ID)
	if err != nil {
		return fmt.Errorf("queues: %w", err)
	}

	if len(queues) == 1 && ticket.QueueID != queues[0].ID {
		ticket, err = p.db.UpdateTicket(ctx, ticket.ID, store.TicketUpdate{QueueID: &queues[0].ID})
		if err != nil {
			return fmt.Errorf("assign queue: %w", err)
		}
		p.notifier.NotifyTicket("update", ticket)
	}

	policy, err := p.loadHoursPolicy(ctx)
	if err != nil {
		return err
	}
	if policy.Enabled && !policy.InHours(time.Now()) && strings.TrimSpace(policy.Message) != "" {
		p.sendAutoText(ctx, sess, ticket, chatJID, policy.Message)
		entry.Info("auto reply sent kind=out_of_hours")
		return nil
	}

	body := greetingBody(channel, queues)
	if body == "" {
		return nil
	}
	p.sendAutoText(ctx, sess, ticket, chatJID, body)
	entry.Info("auto reply sent kind=greeting queues=%d", len(queues))
	return nil
}

// greetingBody picks the greeting per queue count: the single queue's
// own greeting, a channel greeting plus a numbered queue menu, or the
// bare channel greeting when no queues exist.
func greetingBody(channel model.Channel, queues []model.Queue) string {
	switch len(queues) {
	case 0:
		return strings.TrimSpace(channel.GreetingMessage)
	case 1:
		return strings.TrimSpace(queues[0].GreetingMessage)
	default:
		var b strings.Builder
		b.WriteString(strings.TrimSpace(channel.GreetingMessage))
		for i, q := range queues {
			b.WriteString(fmt.Sprintf("\n%d - %s", i+1, q.Name))
		}
		return strings.TrimSpace(b.String())
	}
}

// sendAutoText delivers a best-effort automated reply, expanding the
// {{name}} placeholder with the contact's display name.
func (p *Pipeline) sendAutoText(ctx context.Context, sess wbot.Session, ticket model.Ticket, chatJID, body string) {
	if contact, err := p.db.ContactByID(ctx, ticket.ContactID); err == nil {
		body = strings.ReplaceAll(body, "{{name}}", contact.Name)
	}
	if _, err := sess.SendText(ctx, chatJID, body); err != nil {
		log.WithSession(sess.ID()).WithTicket(ticket.ID).Error("auto reply send: %v", err)
	}
}
