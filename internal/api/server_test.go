package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dseinapp/dsein-server/internal/avatar"
	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/ratelimit"
	"github.com/dseinapp/dsein-server/internal/service"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
	badgerstore "github.com/dseinapp/dsein-server/internal/store/badger"
	"github.com/dseinapp/dsein-server/internal/validation"
)

const (
	testHeader = "X-User-ID"
	testAdmin  = "admin-1"
)

// testServer wraps the API server for testing.
type testServer struct {
	*Server
	api   humatest.TestAPI
	store store.Store
}

type testOption func(*Deps)

func withLimiter(l *ratelimit.Limiter) testOption {
	return func(d *Deps) { d.Limiter = l }
}

// setupTestServer creates a server over an in-memory badger store.
func setupTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()

	st, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	manager := sse.NewManager(logger)

	activity := service.NewActivityService(st, m, logger)
	services := &Services{
		Directory: service.NewDirectoryService(st, nil, validation.New(), m, logger, service.DefaultInviteQuota),
		Follow:    service.NewFollowService(st, manager, m, logger),
		Like:      service.NewLikeService(st, manager, m, logger),
		Invite:    service.NewInviteService(st, activity, manager, m, logger, 0),
		Activity:  activity,
	}

	deps := Deps{
		Store:    st,
		Services: services,
		Config: &config.Config{
			Auth: config.AuthConfig{
				UserIDHeader: testHeader,
				AdminUserIDs: []string{testAdmin},
			},
		},
		Metrics:    m,
		SSEManager: manager,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	s := NewServer(deps)
	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		store:  st,
	}
}

func as(userID string) string {
	return testHeader + ": " + userID
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[Problem](t, resp).Code
}

// register creates a user whose username is derived from the id.
func (ts *testServer) register(t *testing.T, id, username string) {
	t.Helper()
	resp := ts.api.Post("/api/v1/users", as(id), map[string]any{"username": username})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}

func TestRegisterAndResolve(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", as("u-alice"), map[string]any{
		"username":     "@Alice",
		"display_name": "Alice Liddell",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	reg := decode[RegisterResponse](t, resp)
	assert.Equal(t, "u-alice", reg.User.ID)
	assert.Equal(t, "alice", reg.User.Username)
	assert.Equal(t, service.DefaultInviteQuota, reg.User.InvitesAvailable)
	assert.Equal(t, "AL", reg.User.Initials)
	assert.Equal(t, avatar.Color("u-alice"), reg.User.AvatarColor)
	assert.Nil(t, reg.Invite)

	resp = ts.api.Get("/api/v1/users/by-username/@ALICE")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u-alice", decode[UserResponse](t, resp).ID)

	resp = ts.api.Get("/api/v1/users/by-username/nobody")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))

	// Same username from another identity.
	resp = ts.api.Post("/api/v1/users", as("u-other"), map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorCode(t, resp))
}

func TestIdentityRequired(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp))

	resp = ts.api.Get("/api/v1/users/me", as("bad id!"))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestUpdateProfile(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "u-1", "first")

	resp := ts.api.Patch("/api/v1/users/me", as("u-1"), map[string]any{"username": "second"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "second", decode[ProfileResponse](t, resp).Username)

	resp = ts.api.Get("/api/v1/users/by-username/first")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFollowFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "u-a", "anna")
	ts.register(t, "u-b", "bert")

	resp := ts.api.Put("/api/v1/users/u-b/follow", as("u-a"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[service.FollowResult](t, resp)
	assert.True(t, res.Following)
	assert.Equal(t, 1, res.FollowersCount)

	// Following again is a success without double counting.
	resp = ts.api.Put("/api/v1/users/u-b/follow", as("u-a"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[service.FollowResult](t, resp).AlreadyFollowing)

	resp = ts.api.Get("/api/v1/users/u-b")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, decode[UserResponse](t, resp).FollowersCount)

	resp = ts.api.Get("/api/v1/users/u-b/follow", as("u-a"))
	assert.Equal(t, true, decode[map[string]any](t, resp)["following"])

	resp = ts.api.Get("/api/v1/users/u-b/followers")
	followers := decode[struct {
		Users []UserResponse `json:"users"`
	}](t, resp)
	require.Len(t, followers.Users, 1)
	assert.Equal(t, "u-a", followers.Users[0].ID)

	resp = ts.api.Delete("/api/v1/users/u-b/follow", as("u-a"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, decode[service.FollowResult](t, resp).FollowersCount)

	resp = ts.api.Delete("/api/v1/users/u-b/follow", as("u-a"))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "NOT_FOLLOWING", errorCode(t, resp))
}

func TestFollowSelfDenied(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "u-a", "anna")

	resp := ts.api.Put("/api/v1/users/u-a/follow", as("u-a"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "SELF_REFERENCE_DENIED", errorCode(t, resp))
}

func TestLikeFlow(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Put("/api/v1/posts/p-1/like", as("u-fan"), map[string]any{"post_owner_id": "u-author"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, decode[service.LikeResult](t, resp).Liked)

	resp = ts.api.Get("/api/v1/posts/p-1/like", as("u-fan"))
	assert.Equal(t, true, decode[map[string]any](t, resp)["liked"])

	resp = ts.api.Get("/api/v1/me/likes-received", as("u-author"))
	require.Equal(t, http.StatusOK, resp.Code)
	received := decode[struct {
		Likes []map[string]any `json:"likes"`
	}](t, resp)
	require.Len(t, received.Likes, 1)
	assert.Equal(t, "u-fan", received.Likes[0]["user_id"])

	resp = ts.api.Delete("/api/v1/posts/p-1/like", as("u-fan"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[service.LikeResult](t, resp).Liked)

	// Missing body fields are rejected before reaching the service.
	resp = ts.api.Put("/api/v1/posts/p-2/like", as("u-fan"), map[string]any{})
	assert.Equal(t, "VALIDATION", errorCode(t, resp))
}

func TestInviteFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "u-ref", "referrer")

	resp := ts.api.Post("/api/v1/invites", as("u-ref"))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[service.CreateInviteResult](t, resp)
	code := created.Invite.Code
	assert.Equal(t, service.DefaultInviteQuota-1, created.InvitesRemaining)

	resp = ts.api.Get("/api/v1/invites/" + code + "/validate")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, service.InviteValid, decode[service.ValidationResult](t, resp).Status)

	resp = ts.api.Post("/api/v1/users", as("u-new"), map[string]any{
		"username":    "newcomer",
		"invite_code": code,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	reg := decode[RegisterResponse](t, resp)
	require.NotNil(t, reg.Invite)
	assert.Equal(t, "u-ref", reg.Invite.ReferrerID)
	assert.Equal(t, "u-ref", reg.User.InvitedBy)

	resp = ts.api.Get("/api/v1/users/me", as("u-new"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u-ref", decode[ProfileResponse](t, resp).InvitedBy)

	resp = ts.api.Get("/api/v1/me/activity", as("u-ref"))
	require.Equal(t, http.StatusOK, resp.Code)
	activity := decode[struct {
		Activities []map[string]any `json:"activities"`
	}](t, resp)
	require.Len(t, activity.Activities, 1)
	assert.Equal(t, "u-new", activity.Activities[0]["user_id"])

	resp = ts.api.Post("/api/v1/invites/"+code+"/redeem", as("u-late"))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "ALREADY_REDEEMED", errorCode(t, resp))

	resp = ts.api.Get("/api/v1/invites/"+code+"/validate")
	assert.Equal(t, service.InviteAlreadyRedeemed, decode[service.ValidationResult](t, resp).Status)

	resp = ts.api.Get("/api/v1/invites", as("u-ref"))
	mine := decode[struct {
		Invites []map[string]any `json:"invites"`
	}](t, resp)
	require.Len(t, mine.Invites, 1)
	assert.Equal(t, "used", mine.Invites[0]["status"])
}

func TestRegisterWithBadInvite(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/users", as("u-new"), map[string]any{
		"username":    "newcomer",
		"invite_code": "DSEIN-ZZZZZ",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "INVITE_INVALID", errorCode(t, resp))

	// No account was created.
	resp = ts.api.Get("/api/v1/users/u-new")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "u-a", "anna")

	resp := ts.api.Post("/api/v1/admin/reconcile", as("u-a"))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	resp = ts.api.Post("/api/v1/admin/reconcile", as(testAdmin))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 1, decode[service.ReconcileReport](t, resp).UsersScanned)

	resp = ts.api.Post("/api/v1/admin/invites/purge", as(testAdmin), map[string]any{"max_age": "soon"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "INVALID_FORMAT", errorCode(t, resp))

	resp = ts.api.Post("/api/v1/admin/invites/purge", as(testAdmin), map[string]any{"referrer_id": "u-a"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.EqualValues(t, 0, decode[map[string]any](t, resp)["deleted"])

	resp = ts.api.Put("/api/v1/admin/users/u-a/ban", as(testAdmin), map[string]any{"banned": true})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, decode[ProfileResponse](t, resp).Banned)

	resp = ts.api.Post("/api/v1/invites", as("u-a"))
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.PerMinute(1, 1)
	t.Cleanup(limiter.Stop)
	ts := setupTestServer(t, withLimiter(limiter))

	resp := ts.api.Put("/api/v1/posts/p-1/like", as("u-fan"), map[string]any{"post_owner_id": "u-author"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Put("/api/v1/posts/p-2/like", as("u-fan"), map[string]any{"post_owner_id": "u-author"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, resp))
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))

	// Reads and other callers are unaffected.
	resp = ts.api.Get("/api/v1/posts/p-1/like", as("u-fan"))
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = ts.api.Put("/api/v1/posts/p-1/like", as("u-other"), map[string]any{"post_owner_id": "u-author"})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "u-a", "anna")

	resp := ts.api.Get("/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), metrics.OperationsTotal)
	assert.Contains(t, resp.Body.String(), metrics.HTTPRequestTotal)
}

func TestEventsRequireIdentity(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
