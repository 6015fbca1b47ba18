package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/service"
)

var adminSecurity = []map[string][]string{{"gateway": {}}}

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "purgeExpiredInvites",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/invites/purge",
		Summary:     "Purge expired invites",
		Description: "Deletes unused invites older than max_age for one referrer, or for every user when referrer_id is empty",
		Tags:        []string{"Admin"},
		Security:    adminSecurity,
	}, s.handlePurgeInvites)

	huma.Register(s.api, huma.Operation{
		OperationID: "reconcileCounters",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/reconcile",
		Summary:     "Reconcile follow counters",
		Description: "Recounts follower and following totals from the edges and repairs drift",
		Tags:        []string{"Admin"},
		Security:    adminSecurity,
	}, s.handleReconcile)

	huma.Register(s.api, huma.Operation{
		OperationID: "setUserBanned",
		Method:      http.MethodPut,
		Path:        "/api/v1/admin/users/{id}/ban",
		Summary:     "Ban or unban user",
		Description: "Banned users cannot follow or issue invites and are hidden from search",
		Tags:        []string{"Admin"},
		Security:    adminSecurity,
	}, s.handleSetBanned)

	huma.Register(s.api, huma.Operation{
		OperationID: "reindexSearch",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/search/reindex",
		Summary:     "Rebuild search index",
		Description: "Re-indexes every user from the store",
		Tags:        []string{"Admin"},
		Security:    adminSecurity,
	}, s.handleReindex)
}

// === DTOs ===

// PurgeInvitesInput contains the purge request.
type PurgeInvitesInput struct {
	Body struct {
		ReferrerID string `json:"referrer_id,omitempty" doc:"Only purge this user's invites"`
		MaxAge     string `json:"max_age,omitempty" doc:"Go duration such as 12h; defaults to the configured expiry"`
	}
}

// PurgeInvitesOutput reports how many invites were deleted.
type PurgeInvitesOutput struct {
	Body struct {
		Deleted int    `json:"deleted" doc:"Invites deleted"`
		Message string `json:"message" doc:"Summary"`
	}
}

// ReconcileOutput wraps a reconcile report for Huma.
type ReconcileOutput struct {
	Body *service.ReconcileReport
}

// SetBannedInput contains the ban request.
type SetBannedInput struct {
	ID   string `path:"id" doc:"User ID"`
	Body struct {
		Banned bool `json:"banned" doc:"true to ban, false to lift the ban"`
	}
}

// ReindexOutput reports how many users were indexed.
type ReindexOutput struct {
	Body struct {
		Indexed int `json:"indexed" doc:"Users indexed"`
	}
}

// === Handlers ===

func (s *Server) handlePurgeInvites(ctx context.Context, input *PurgeInvitesInput) (*PurgeInvitesOutput, error) {
	adminID, err := s.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	var maxAge time.Duration
	if input.Body.MaxAge != "" {
		maxAge, err = time.ParseDuration(input.Body.MaxAge)
		if err != nil || maxAge <= 0 {
			return nil, domainerrors.InvalidFormatf("max_age %q is not a positive duration", input.Body.MaxAge)
		}
	}

	var deleted int
	if input.Body.ReferrerID != "" {
		deleted, err = s.services.Invite.PurgeExpired(ctx, input.Body.ReferrerID, maxAge)
	} else {
		deleted, err = s.services.Invite.PurgeAllExpired(ctx, maxAge)
	}
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("admin purged invites", "admin_id", adminID, "deleted", deleted)

	out := &PurgeInvitesOutput{}
	out.Body.Deleted = deleted
	out.Body.Message = formatPurged(deleted)
	return out, nil
}

func (s *Server) handleReconcile(ctx context.Context, _ *struct{}) (*ReconcileOutput, error) {
	if _, err := s.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	report, err := s.services.Follow.ReconcileCounters(ctx)
	if err != nil {
		return nil, err
	}
	return &ReconcileOutput{Body: report}, nil
}

func (s *Server) handleSetBanned(ctx context.Context, input *SetBannedInput) (*ProfileOutput, error) {
	if _, err := s.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	user, err := s.services.Directory.SetBanned(ctx, input.ID, input.Body.Banned)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: toProfileResponse(user)}, nil
}

func (s *Server) handleReindex(ctx context.Context, _ *struct{}) (*ReindexOutput, error) {
	if _, err := s.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	n, err := s.services.Directory.Reindex(ctx)
	if err != nil {
		return nil, err
	}

	out := &ReindexOutput{}
	out.Body.Indexed = n
	return out, nil
}

func formatPurged(n int) string {
	switch n {
	case 0:
		return "No expired invites"
	case 1:
		return "Purged 1 expired invite"
	default:
		return "Purged " + strconv.Itoa(n) + " expired invites"
	}
}
