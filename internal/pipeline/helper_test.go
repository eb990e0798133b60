package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

type fakeSend struct {
	To   string
	Body string
}

type fakeSession struct {
	mu sync.Mutex

	id         string
	selfJID    string
	selfAlt    string
	subject    string
	subjectErr error
	picURL     string
	mediaData  []byte
	mediaErr   error
	sendErr    error

	sends        []fakeSend
	subjectCalls int
	readRequests [][]string
}

func (s *fakeSession) ID() string         { return s.id }
func (s *fakeSession) SelfJID() string    { return s.selfJID }
func (s *fakeSession) SelfAltJID() string { return s.selfAlt }

func (s *fakeSession) GroupSubject(ctx context.Context, jid string) (string, error) {
	s.mu.Lock()
	s.subjectCalls++
	s.mu.Unlock()
	if s.subjectErr != nil {
		return "", s.subjectErr
	}
	return s.subject, nil
}

func (s *fakeSession) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	return s.picURL, nil
}

func (s *fakeSession) SendText(ctx context.Context, toJID, body string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.mu.Lock()
	s.sends = append(s.sends, fakeSend{To: toJID, Body: body})
	s.mu.Unlock()
	return "FAKE-SENT", nil
}

func (s *fakeSession) sentMessages() []fakeSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fakeSend, len(s.sends))
	copy(out, s.sends)
	return out
}

func (s *fakeSession) Download(ctx context.Context, ref *wbot.MediaRef) ([]byte, error) {
	if s.mediaErr != nil {
		return nil, s.mediaErr
	}
	return s.mediaData, nil
}

func (s *fakeSession) SendReadReceipts(ctx context.Context, chatJID string, ids []string) error {
	s.mu.Lock()
	s.readRequests = append(s.readRequests, ids)
	s.mu.Unlock()
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	tickets []string
	acks    []string
	msgs    []string
}

func (n *fakeNotifier) NotifyTicket(action string, t model.Ticket) {
	n.mu.Lock()
	n.tickets = append(n.tickets, action)
	n.mu.Unlock()
}

func (n *fakeNotifier) NotifyMessage(t model.Ticket, m model.Message) {
	n.mu.Lock()
	n.msgs = append(n.msgs, m.ID)
	n.mu.Unlock()
}

func (n *fakeNotifier) NotifyAck(t model.Ticket, m model.Message) {
	n.mu.Lock()
	n.acks = append(n.acks, m.ID)
	n.mu.Unlock()
}

func (n *fakeNotifier) ackCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.acks)
}

type fakeContent struct {
	err error
}

func (c *fakeContent) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "https://cdn.test/" + objectName, nil
}

var errFetch = errors.New("fetch failed")

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, *store.DB, *fakeNotifier) {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "helpdesk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	notifier := &fakeNotifier{}
	p := New(db, notifier, &fakeContent{}, nil, opts)
	return p, db, notifier
}

func mustContact(t *testing.T, db *store.DB, number string, isGroup bool) model.Contact {
	t.Helper()
	c, err := db.UpsertContact(context.Background(), store.UpsertContactParams{
		Name: number, Number: number, IsGroup: isGroup,
	})
	if err != nil {
		t.Fatalf("upsert contact: %v", err)
	}
	return c
}

func mustChannel(t *testing.T, db *store.DB, sessionID string) model.Channel {
	t.Helper()
	ch, err := db.ChannelBySession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("channel for session: %v", err)
	}
	return ch
}
