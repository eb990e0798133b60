// Package http exposes the adapter's operator API: session
// lifecycle, ticket actions, settings, and health probes.
package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"your.org/helpdesk-whatsmeow/internal/config"
	"your.org/helpdesk-whatsmeow/internal/model"
	"your.org/helpdesk-whatsmeow/internal/pipeline"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// Server wires the HTTP surface.  When Start is called it begins
// listening on cfg.HTTPAddr; Shutdown gracefully stops the listener.
type Server struct {
	cfg     *config.Config
	manager *wbot.Manager
	pipe    *pipeline.Pipeline
	db      *store.DB
	httpSrv *http.Server
	ready   bool
}

func NewServer(cfg *config.Config, manager *wbot.Manager, pipe *pipeline.Pipeline, db *store.DB) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		pipe:    pipe,
		db:      db,
	}
	router := mux.NewRouter()
	// Session management endpoints
	router.HandleFunc("/sessions/{id}/connect", s.handleConnect).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/reload", s.handleReload).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/qr", s.handleQR).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/status", s.handleStatus).Methods(http.MethodGet)

	// Ticket actions
	router.HandleFunc("/tickets", s.handleStartTicket).Methods(http.MethodPost)
	router.HandleFunc("/tickets/{id}", s.handleUpdateTicket).Methods(http.MethodPut)
	router.HandleFunc("/tickets/{id}/read", s.handleMarkTicketRead).Methods(http.MethodPost)
	router.HandleFunc("/tickets/pending-count", s.handlePendingCount).Methods(http.MethodGet)

	// Operator data
	router.HandleFunc("/queues", s.handleCreateQueue).Methods(http.MethodPost)
	router.HandleFunc("/channels/{id}/greeting", s.handleSetChannelGreeting).Methods(http.MethodPut)
	router.HandleFunc("/settings/{key}", s.handleUpsertSetting).Methods(http.MethodPut)

	// Health and readiness probes
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.ready = true
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready = false
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.Connect(id); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, err.Error())
		return
	}
	// Connect proceeds asynchronously; poll /qr and /status after.
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	_ = s.manager.Disconnect(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.Reload(id); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQR returns the current pairing QR code as a PNG image.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	qr, err := s.manager.GetQR(id)
	if err != nil {
		if strings.Contains(err.Error(), "not connected") {
			w.WriteHeader(http.StatusNotFound)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = io.WriteString(w, err.Error())
		return
	}
	buf, decErr := base64.StdEncoding.DecodeString(qr)
	if decErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, decErr.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.manager.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

type startTicketRequest struct {
	ContactID int64 `json:"contact_id"`
	ChannelID int64 `json:"channel_id"`
	UserID    int64 `json:"user_id"`
}

// handleStartTicket is the operator "start conversation" action.
func (s *Server) handleStartTicket(w http.ResponseWriter, r *http.Request) {
	var req startTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContactID == 0 {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}
	if req.ChannelID == 0 {
		ch, err := s.db.DefaultChannel(r.Context())
		if err != nil {
			http.Error(w, "no channel available", http.StatusConflict)
			return
		}
		req.ChannelID = ch.ID
	}
	ticket, err := s.pipe.StartTicket(r.Context(), req.ContactID, req.ChannelID, req.UserID)
	if err != nil {
		statusFromErr(w, err)
		return
	}
	writeJSON(w, ticket)
}

type updateTicketRequest struct {
	Status  *string `json:"status,omitempty"`
	QueueID *int64  `json:"queue_id,omitempty"`
	UserID  *int64  `json:"user_id,omitempty"`
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid ticket id", http.StatusBadRequest)
		return
	}
	var req updateTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case model.StatusOpen, model.StatusPending, model.StatusClosed:
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}
	ticket, err := s.pipe.UpdateTicket(r.Context(), id, store.TicketUpdate{
		Status:  req.Status,
		QueueID: req.QueueID,
		UserID:  req.UserID,
	})
	if err != nil {
		statusFromErr(w, err)
		return
	}
	writeJSON(w, ticket)
}

// handleMarkTicketRead flags the ticket's messages read and zeroes
// the unread counter; read receipts go out when the owning session is
// connected.
func (s *Server) handleMarkTicketRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid ticket id", http.StatusBadRequest)
		return
	}
	ticket, err := s.db.TicketByID(r.Context(), id)
	if err != nil {
		statusFromErr(w, err)
		return
	}
	var sess wbot.Session
	if channel, err := s.db.ChannelByID(r.Context(), ticket.ChannelID); err == nil {
		if live, ok := s.manager.Session(channel.SessionID); ok {
			sess = live
		}
	}
	ticket, err = s.pipe.MarkTicketRead(r.Context(), sess, id)
	if err != nil {
		statusFromErr(w, err)
		return
	}
	writeJSON(w, ticket)
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	channelID, _ := strconv.ParseInt(r.URL.Query().Get("channel_id"), 10, 64)
	if channelID == 0 {
		ch, err := s.db.DefaultChannel(r.Context())
		if err != nil {
			http.Error(w, "no channel available", http.StatusConflict)
			return
		}
		channelID = ch.ID
	}
	n, err := s.db.CountTicketsByStatus(r.Context(), channelID, model.StatusPending)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"channel_id": channelID, "pending": n})
}

type createQueueRequest struct {
	ChannelID       int64  `json:"channel_id"`
	Name            string `json:"name"`
	GreetingMessage string `json:"greeting_message,omitempty"`
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChannelID == 0 || strings.TrimSpace(req.Name) == "" {
		http.Error(w, "channel_id and name are required", http.StatusBadRequest)
		return
	}
	queue, err := s.db.CreateQueue(r.Context(), req.ChannelID, req.Name, req.GreetingMessage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, queue)
}

type setGreetingRequest struct {
	GreetingMessage string `json:"greeting_message"`
}

// handleSetChannelGreeting edits the channel-level greeting used when
// the channel has no queue-specific greeting to send.
func (s *Server) handleSetChannelGreeting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}
	var req setGreetingRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.db.ChannelByID(r.Context(), id); err != nil {
		statusFromErr(w, err)
		return
	}
	if err := s.db.SetChannelGreeting(r.Context(), id, req.GreetingMessage); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ch, err := s.db.ChannelByID(r.Context(), id)
	if err != nil {
		statusFromErr(w, err)
		return
	}
	writeJSON(w, ch)
}

type upsertSettingRequest struct {
	Value string `json:"value"`
}

// handleUpsertSetting edits an operator setting; the business-hours
// policy is read fresh per evaluation so changes apply to the next
// auto-response firing.
func (s *Server) handleUpsertSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req upsertSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.db.UpsertSetting(r.Context(), key, req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, model.Setting{Key: key, Value: req.Value})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ready")
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func statusFromErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func decodeJSON(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(target)
}
