package pipeline

import (
	"context"
	"testing"
	"time"

	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

func weekdayPolicy() HoursPolicy {
	return HoursPolicy{
		Enabled:  true,
		StartMin: 8 * 60,
		EndMin:   17 * 60,
		Days: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
	}
}

func TestInHours(t *testing.T) {
	policy := weekdayPolicy()
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"wednesday morning", time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC), true},
		{"saturday morning", time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), false},
		{"wednesday after close", time.Date(2026, 1, 7, 17, 1, 0, 0, time.UTC), false},
		{"wednesday at close", time.Date(2026, 1, 7, 17, 0, 0, 0, time.UTC), true},
		{"wednesday at open", time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC), true},
		{"wednesday before open", time.Date(2026, 1, 7, 7, 59, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		if got := policy.InHours(c.at); got != c.want {
			t.Fatalf("%s: InHours = %t, want %t", c.name, got, c.want)
		}
	}
}

func TestInHoursAppliesTzOffset(t *testing.T) {
	policy := weekdayPolicy()
	policy.TzOffsetMin = 7 * 60 // operator reference is UTC+7

	// 02:00 UTC Wednesday is 09:00 in the reference timezone.
	at := time.Date(2026, 1, 7, 2, 0, 0, 0, time.UTC)
	if !policy.InHours(at) {
		t.Fatalf("02:00 UTC with +420 offset should be in hours")
	}
	// 12:00 UTC Wednesday is 19:00 in the reference timezone.
	at = time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	if policy.InHours(at) {
		t.Fatalf("12:00 UTC with +420 offset should be out of hours")
	}
}

func TestParseClockMinutes(t *testing.T) {
	if got := parseClockMinutes("08:00", 0); got != 480 {
		t.Fatalf("08:00 = %d", got)
	}
	if got := parseClockMinutes("17:30", 0); got != 1050 {
		t.Fatalf("17:30 = %d", got)
	}
	if got := parseClockMinutes("garbage", 123); got != 123 {
		t.Fatalf("fallback = %d", got)
	}
}

func TestGreetingBody(t *testing.T) {
	channel := model.Channel{GreetingMessage: "Selamat datang"}
	if got := greetingBody(channel, nil); got != "Selamat datang" {
		t.Fatalf("zero queues: %q", got)
	}

	one := []model.Queue{{Name: "Billing", GreetingMessage: "Halo dari Billing"}}
	if got := greetingBody(channel, one); got != "Halo dari Billing" {
		t.Fatalf("one queue: %q", got)
	}

	many := []model.Queue{{Name: "Billing"}, {Name: "Teknis"}}
	want := "Selamat datang\n1 - Billing\n2 - Teknis"
	if got := greetingBody(channel, many); got != want {
		t.Fatalf("menu = %q, want %q", got, want)
	}
}

// disableBusinessDays makes every probe fall out of hours.
func disableBusinessDays(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	for k, v := range map[string]string{
		"outOfHours":        "enabled",
		"outOfHoursMessage": "Kami sedang tutup.",
		"businessDays":      "",
	} {
		if err := db.UpsertSetting(ctx, k, v); err != nil {
			t.Fatalf("setting %s: %v", k, err)
		}
	}
}

func TestOutOfHoursEndToEnd(t *testing.T) {
	p, db, _ := newTestPipeline(t, Options{GreetingDelay: 20 * time.Millisecond})
	ctx := context.Background()
	sess := &fakeSession{id: "sess1"}

	channel := mustChannel(t, db, "sess1")
	queue, err := db.CreateQueue(ctx, channel.ID, "Billing", "Halo dari Billing")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	disableBusinessDays(t, db)

	p.HandleMessages(ctx, sess, []wbot.MessageEvent{
		inboundText("MSG-OOH", "628100000030@s.whatsapp.net", "halo"),
	})
	time.Sleep(300 * time.Millisecond)

	contact, err := db.ContactByNumber(ctx, "628100000030", false)
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	ticket, err := db.ActiveTicket(ctx, contact.ID, channel.ID)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if ticket.Status != model.StatusPending {
		t.Fatalf("status = %q, want pending", ticket.Status)
	}
	if ticket.QueueID != queue.ID {
		t.Fatalf("queue = %d, want single queue %d assigned", ticket.QueueID, queue.ID)
	}

	sends := sess.sentMessages()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want exactly one auto reply", len(sends))
	}
	if sends[0].Body != "Kami sedang tutup." {
		t.Fatalf("reply = %q, want the out-of-hours message, not the greeting", sends[0].Body)
	}
}

func TestSecondMessageDoesNotRescheduleAutoReply(t *testing.T) {
	p, db, _ := newTestPipeline(t, Options{GreetingDelay: 20 * time.Millisecond})
	ctx := context.Background()
	sess := &fakeSession{id: "sess1"}
	disableBusinessDays(t, db)

	p.HandleMessages(ctx, sess, []wbot.MessageEvent{
		inboundText("MSG-A1", "628100000031@s.whatsapp.net", "halo"),
		inboundText("MSG-A2", "628100000031@s.whatsapp.net", "masih ada?"),
	})
	time.Sleep(300 * time.Millisecond)

	if sends := sess.sentMessages(); len(sends) != 1 {
		t.Fatalf("sends = %d, want a single auto reply for the conversation", len(sends))
	}
}

func TestClosingTicketCancelsAutoReply(t *testing.T) {
	p, db, _ := newTestPipeline(t, Options{GreetingDelay: 60 * time.Millisecond})
	ctx := context.Background()
	sess := &fakeSession{id: "sess1"}
	disableBusinessDays(t, db)

	p.HandleMessages(ctx, sess, []wbot.MessageEvent{
		inboundText("MSG-C1", "628100000032@s.whatsapp.net", "halo"),
	})
	contact, err := db.ContactByNumber(ctx, "628100000032", false)
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	channel := mustChannel(t, db, "sess1")
	ticket, err := db.ActiveTicket(ctx, contact.ID, channel.ID)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}

	closed := model.StatusClosed
	if _, err := p.UpdateTicket(ctx, ticket.ID, store.TicketUpdate{Status: &closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if sends := sess.sentMessages(); len(sends) != 0 {
		t.Fatalf("sends = %d, want timer cancelled by close", len(sends))
	}
}

func TestSchedulerCancelStopsTimer(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{}, 1)
	s.Schedule(1, 30*time.Millisecond, func() { fired <- struct{}{} })
	s.Cancel(1)
	select {
	case <-fired:
		t.Fatalf("cancelled timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSchedulerReplacesTimer(t *testing.T) {
	s := NewScheduler()
	fired := make(chan int, 2)
	s.Schedule(1, 20*time.Millisecond, func() { fired <- 1 })
	s.Schedule(1, 40*time.Millisecond, func() { fired <- 2 })
	select {
	case got := <-fired:
		if got != 2 {
			t.Fatalf("first firing = %d, want the replacement", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timer never fired")
	}
	select {
	case <-fired:
		t.Fatalf("replaced timer fired too")
	case <-time.After(100 * time.Millisecond):
	}
}
