package sse

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dseinapp/dsein-server/internal/id"
)

const (
	queueSize  = 1024
	clientSize = 64
)

// Client is one open event stream. A user may hold several (one per device).
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}

	dropped atomic.Int64
}

// Dropped reports how many events this client missed because it fell behind.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Manager routes emitted events to the streams of the user they are
// addressed to. Events addressed to nobody go to every stream.
type Manager struct {
	logger *slog.Logger
	queue  chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	byUser map[string]map[string]*Client
	total  int

	closeMu sync.RWMutex
	closed  bool
}

// NewManager creates a Manager. Call Start before emitting.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		queue:  make(chan Event, queueSize),
		byUser: make(map[string]map[string]*Client),
	}
}

// Start routes queued events until ctx is cancelled or Shutdown closes the queue.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.route(event)
		case <-ctx.Done():
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued, then closes
// every stream. Calling it twice is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		for event := range m.queue {
			m.route(event)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("event queue not drained before shutdown deadline")
	}

	m.wg.Wait()
	m.closeAllClients()
	return nil
}

// Emit queues an event. It implements store.EventEmitter and never blocks:
// a full queue drops the event.
func (m *Manager) Emit(event any) {
	evt, ok := event.(Event)
	if !ok {
		m.logger.Error("ignoring event of unexpected type")
		return
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- evt:
	default:
		m.logger.Error("event queue full, dropping event", "event_type", evt.Type, "user_id", evt.UserID)
	}
}

func (m *Manager) route(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if event.UserID != "" {
		for _, c := range m.byUser[event.UserID] {
			m.offer(c, event)
		}
		return
	}
	for _, clients := range m.byUser {
		for _, c := range clients {
			m.offer(c, event)
		}
	}
}

// offer hands the event to a client without waiting on it.
func (m *Manager) offer(c *Client, event Event) {
	select {
	case c.EventChan <- event:
	default:
		if c.dropped.Add(1) == 1 {
			m.logger.Warn("client falling behind, dropping events",
				"client_id", c.ID, "user_id", c.UserID, "event_type", event.Type)
		}
	}
}

// Connect registers a stream for userID.
func (m *Manager) Connect(userID string) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:          clientID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		EventChan:   make(chan Event, clientSize),
		Done:        make(chan struct{}),
	}

	m.mu.Lock()
	streams := m.byUser[userID]
	if streams == nil {
		streams = make(map[string]*Client)
		m.byUser[userID] = streams
	}
	streams[clientID] = c
	m.total++
	total := m.total
	m.mu.Unlock()

	m.logger.Debug("stream opened", "client_id", clientID, "user_id", userID, "streams", total)
	return c, nil
}

// Disconnect unregisters a stream and closes its channels. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	var c *Client
	for userID, streams := range m.byUser {
		if found, ok := streams[clientID]; ok {
			c = found
			delete(streams, clientID)
			if len(streams) == 0 {
				delete(m.byUser, userID)
			}
			m.total--
			break
		}
	}
	m.mu.Unlock()

	if c == nil {
		return
	}
	close(c.Done)
	close(c.EventChan)

	m.logger.Debug("stream closed",
		"client_id", c.ID,
		"user_id", c.UserID,
		"duration", time.Since(c.ConnectedAt),
		"dropped", c.Dropped())
}

// ClientCount returns the number of open streams.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

// UserCount returns the number of users with at least one open stream.
func (m *Manager) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, streams := range m.byUser {
		for _, c := range streams {
			close(c.Done)
			close(c.EventChan)
		}
	}
	m.byUser = make(map[string]map[string]*Client)
	m.total = 0
}
