package wbot

import (
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"

	"your.org/helpdesk-whatsmeow/internal/status"
)

type qrState struct {
	pngBase64 string
	updatedAt time.Time
}

var (
	qrMu        sync.RWMutex
	qrBySession = map[string]*qrState{}
)

// startQRWatcher must be called BEFORE Connect(); it listens on the
// whatsmeow QR channel and keeps the latest code for the session.
func (m *Manager) startQRWatcher(sessionID string, ch <-chan whatsmeow.QRChannelItem) {
	go func() {
		for item := range ch {
			switch item.Event {
			case "code":
				// item.Code is the raw QR payload, not a PNG
				png, _ := qrcode.Encode(item.Code, qrcode.Medium, 256)
				b64 := base64.StdEncoding.EncodeToString(png)

				qrMu.Lock()
				qrBySession[sessionID] = &qrState{
					pngBase64: b64,
					updatedAt: time.Now(),
				}
				qrMu.Unlock()

			case "success":
				qrMu.Lock()
				delete(qrBySession, sessionID)
				qrMu.Unlock()

			case "timeout":
				qrMu.Lock()
				delete(qrBySession, sessionID)
				qrMu.Unlock()
				status.Set(sessionID, "offline")
			}
		}
	}()
}

// GetQR returns the latest QR for the session as base64 PNG.
func (m *Manager) GetQR(sessionID string) (string, error) {
	qrMu.RLock()
	state, ok := qrBySession[sessionID]
	qrMu.RUnlock()
	if !ok || state == nil || state.pngBase64 == "" {
		return "", errors.New("qr not ready or session not connected")
	}
	return state.pngBase64, nil
}
