package sse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, context.CancelFunc) {
	t.Helper()
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	return m, cancel
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestManager_DeliversOnlyToAddressedUser(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	bob, err := m.Connect("bob")
	require.NoError(t, err)
	carol, err := m.Connect("carol")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewFollowCreatedEvent("alice", "bob", 1))

	got := receive(t, bob)
	assert.Equal(t, EventFollowCreated, got.Type)
	data, ok := got.Data.(FollowEventData)
	require.True(t, ok)
	assert.Equal(t, "alice", data.FollowerID)

	select {
	case e := <-carol.EventChan:
		t.Fatalf("carol should not receive %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_EmitIgnoresForeignTypes(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	c, err := m.Connect("bob")
	require.NoError(t, err)

	m.Emit("not an event")
	m.Emit(NewLikeCreatedEvent("bob", "alice", "p1"))

	got := receive(t, c)
	assert.Equal(t, EventLikeCreated, got.Type)
}

func TestManager_ShutdownDropsLateEvents(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx), "second shutdown is a no-op")

	assert.NotPanics(t, func() { m.Emit(NewInviteUsedEvent("ref", "new", "DSEIN-ABCDE", "")) })
}

func TestManager_FansOutAcrossDevices(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	phone, err := m.Connect("bob")
	require.NoError(t, err)
	laptop, err := m.Connect("bob")
	require.NoError(t, err)
	_, err = m.Connect("carol")
	require.NoError(t, err)

	assert.Equal(t, 3, m.ClientCount())
	assert.Equal(t, 2, m.UserCount())

	m.Emit(NewLikeCreatedEvent("bob", "alice", "p1"))
	assert.Equal(t, EventLikeCreated, receive(t, phone).Type)
	assert.Equal(t, EventLikeCreated, receive(t, laptop).Type)

	m.Disconnect(phone.ID)
	assert.Equal(t, 2, m.ClientCount())
	assert.Equal(t, 2, m.UserCount())
}

func TestManager_BroadcastWithoutAddress(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	bob, err := m.Connect("bob")
	require.NoError(t, err)
	carol, err := m.Connect("carol")
	require.NoError(t, err)

	m.Emit(NewHeartbeatEvent())
	assert.Equal(t, EventHeartbeat, receive(t, bob).Type)
	assert.Equal(t, EventHeartbeat, receive(t, carol).Type)
}

func TestManager_SlowClientDropsEvents(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	c, err := m.Connect("bob")
	require.NoError(t, err)

	for i := 0; i < clientSize+5; i++ {
		m.Emit(NewLikeCreatedEvent("bob", "alice", "p1"))
	}
	require.Eventually(t, func() bool { return c.Dropped() == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, c.EventChan, clientSize)
}

func TestManager_Disconnect(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	c, err := m.Connect("bob")
	require.NoError(t, err)
	m.Disconnect(c.ID)
	m.Disconnect(c.ID)

	assert.Equal(t, 0, m.ClientCount())
	_, open := <-c.Done
	assert.False(t, open)
}

func TestHandler_StreamsAddressedEvents(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	h := NewHandler(m, func(r *http.Request) (string, bool) {
		id := r.Header.Get("X-User-ID")
		return id, id != ""
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "ref")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" {
				return sb.String()
			}
			sb.WriteString(line)
		}
	}

	assert.Equal(t, "retry: 3000\n", readFrame())
	assert.Contains(t, readFrame(), "event: connected")

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	m.Emit(NewInviteUsedEvent("ref", "newbie", "DSEIN-ABCDE", "invite_newbie_1"))

	frame := readFrame()
	assert.Contains(t, frame, "id: 2\n")
	assert.Contains(t, frame, "event: invite.used")
	assert.Contains(t, frame, `"new_user_id":"newbie"`)
}

func TestHandler_Heartbeat(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	h := NewHandler(m, func(*http.Request) (string, bool) { return "bob", true }, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithHeartbeat(20 * time.Millisecond)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	require.Eventually(t, func() bool {
		line, err := reader.ReadString('\n')
		return err == nil && line == "event: heartbeat\n"
	}, 2*time.Second, time.Millisecond)
}

func TestHandler_RejectsAnonymous(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	h := NewHandler(m, func(*http.Request) (string, bool) { return "", false }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
