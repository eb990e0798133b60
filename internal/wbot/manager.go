package wbot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/status"
)

// clientEntry keeps refs for cleanup per session.
type clientEntry struct {
	Client  *whatsmeow.Client
	DB      *sqlstore.Container
	Log     waLog.Logger
	Session *session
}

// Manager keeps a registry of whatsmeow clients per session and feeds
// every resolved event batch into the sink.
type Manager struct {
	mu           sync.RWMutex
	clients      map[string]*clientEntry
	sessionStore string
	sink         EventSink
}

func NewManager(sessionStore string, sink EventSink) *Manager {
	return &Manager{
		clients:      make(map[string]*clientEntry),
		sessionStore: sessionStore,
		sink:         sink,
	}
}

// Connect creates or retrieves the client for the session and starts
// connecting (emitting a QR code on first login).
func (m *Manager) Connect(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ent, ok := m.clients[sessionID]; ok && ent.Client != nil {
		return nil
	}

	status.Set(sessionID, "connecting")

	if err := os.MkdirAll(m.SessionPath(sessionID), 0o755); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}

	ctx := context.Background()

	// SQLite per session: SESSION_STORE/<sessionID>/session.db
	dbPath := filepath.Join(m.SessionPath(sessionID), "session.db")

	dbLog := waLog.Stdout("Database", "INFO", true)
	clientLog := waLog.Stdout("Client", "INFO", true)

	// PRAGMAs reduce SQLITE_BUSY and improve concurrency
	dsn := fmt.Sprintf(
		"file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		dbPath,
	)
	storeContainer, err := sqlstore.New(ctx, "sqlite", dsn, dbLog)
	if err != nil {
		return fmt.Errorf("sqlstore.New: %w", err)
	}

	device, err := storeContainer.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get first device: %w", err)
	}
	if device == nil {
		device = storeContainer.NewDevice()
	}

	cli := whatsmeow.NewClient(device, clientLog)
	cli.EnableAutoReconnect = true
	cli.AutoTrustIdentity = true

	sess := &session{id: sessionID, cli: cli}
	ent := &clientEntry{Client: cli, DB: storeContainer, Log: clientLog, Session: sess}
	m.clients[sessionID] = ent

	// Not yet paired: open the QR channel BEFORE Connect and start
	// the watcher.
	if cli.Store == nil || cli.Store.ID == nil {
		qrCh, err := cli.GetQRChannel(ctx)
		if err != nil {
			delete(m.clients, sessionID)
			return fmt.Errorf("get QR channel: %w", err)
		}
		m.startQRWatcher(sessionID, qrCh)
	}

	m.registerEventHandlers(cli, sess)

	go func() {
		if err := cli.Connect(); err != nil {
			clientLog.Errorf("connect error: %v", err)
			status.Set(sessionID, "offline")
		}
	}()
	return nil
}

func (m *Manager) Disconnect(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ent, ok := m.clients[sessionID]; ok {
		if ent.Client != nil {
			ent.Client.Disconnect()
		}
		delete(m.clients, sessionID)
	}
	status.Set(sessionID, "disconnected")
	return nil
}

func (m *Manager) Reload(sessionID string) error {
	m.mu.RLock()
	_, ok := m.clients[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	status.Set(sessionID, "connecting")
	if err := m.Disconnect(sessionID); err != nil {
		return err
	}
	return m.Connect(sessionID)
}

// SessionStatus exposes the basic connection state of a session.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
	DeviceJID string `json:"device_jid,omitempty"`
}

func (m *Manager) Status(sessionID string) (SessionStatus, error) {
	m.mu.RLock()
	ent, ok := m.clients[sessionID]
	m.mu.RUnlock()
	if !ok || ent == nil || ent.Client == nil {
		return SessionStatus{}, fmt.Errorf("session %s not connected", sessionID)
	}
	cli := ent.Client
	st := SessionStatus{
		SessionID: sessionID,
		Connected: cli.IsConnected(),
		LoggedIn:  cli.IsLoggedIn(),
	}
	if cli.Store != nil && cli.Store.ID != nil {
		st.DeviceJID = cli.Store.ID.String()
	}
	return st, nil
}

// Session returns the live protocol session for the given ID.
func (m *Manager) Session(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, ok := m.clients[sessionID]
	if !ok || ent == nil || ent.Session == nil {
		return nil, false
	}
	return ent.Session, true
}

func (m *Manager) SessionPath(sessionID string) string {
	return filepath.Join(m.sessionStore, sessionID)
}

// RestoreSavedSessions scans SESSION_STORE and reconnects every
// session that still has a session.db.
func (m *Manager) RestoreSavedSessions() ([]string, error) {
	entries, err := os.ReadDir(m.sessionStore)
	if err != nil {
		return nil, fmt.Errorf("read session store: %w", err)
	}
	var restored []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sid := e.Name()
		dbFile := filepath.Join(m.SessionPath(sid), "session.db")
		if _, err := os.Stat(dbFile); err == nil {
			go func(id string) {
				if err := m.Connect(id); err != nil {
					log.Errorf("restore session %s: %v", id, err)
				}
			}(sid)
			restored = append(restored, sid)
		}
	}
	return restored, nil
}
