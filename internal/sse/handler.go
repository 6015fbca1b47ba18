package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultHeartbeat = 30 * time.Second
	// writeGrace is how long one frame may take to write before the
	// connection is considered dead.
	writeGrace = 60 * time.Second
	// retryMillis is the reconnect delay suggested to browsers.
	retryMillis = 3000
)

// UserIDFunc extracts the authenticated user from a request.
type UserIDFunc func(r *http.Request) (string, bool)

// Handler serves GET requests as an event stream of the caller's events.
type Handler struct {
	manager   *Manager
	userID    UserIDFunc
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a Handler.
func NewHandler(manager *Manager, userID UserIDFunc, logger *slog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		userID:    userID,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
}

// WithHeartbeat overrides the keepalive interval.
func (h *Handler) WithHeartbeat(d time.Duration) *Handler {
	h.heartbeat = d
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := h.userID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	out := &frameWriter{w: w, rc: http.NewResponseController(w), logger: h.logger}
	if err := out.rc.Flush(); err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(userID)
	if err != nil {
		h.logger.Error("failed to open stream", "user_id", userID, "error", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With("client_id", client.ID, "user_id", userID)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryMillis); err != nil {
		return
	}
	if err := out.send("connected", map[string]string{"client_id": client.ID}); err != nil {
		log.Debug("stream closed before handshake", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := out.send(string(event.Type), event); err != nil {
				log.Debug("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := out.send(string(EventHeartbeat), NewHeartbeatEvent()); err != nil {
				log.Debug("heartbeat write failed", "error", err)
				return
			}
		case <-client.Done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// frameWriter writes numbered event frames to one response.
type frameWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
	seq    uint64
}

func (f *frameWriter) send(eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	// Not every ResponseWriter supports deadlines; httptest recorders do not.
	if err := f.rc.SetWriteDeadline(time.Now().Add(writeGrace)); err != nil {
		f.logger.Debug("write deadline unsupported", "error", err)
	}

	f.seq++
	if _, err := fmt.Fprintf(f.w, "id: %d\nevent: %s\ndata: %s\n\n", f.seq, eventType, payload); err != nil {
		return err
	}
	return f.rc.Flush()
}
