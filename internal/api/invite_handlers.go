package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/service"
)

func (s *Server) registerInviteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createInvite",
		Method:        http.MethodPost,
		Path:          "/api/v1/invites",
		Summary:       "Create invite",
		Description:   "Issues a single-use invite code and charges the caller's quota",
		Tags:          []string{"Invites"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"gateway": {}}},
	}, s.handleCreateInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "listInvites",
		Method:      http.MethodGet,
		Path:        "/api/v1/invites",
		Summary:     "List invites",
		Description: "Returns the invites the caller has issued",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleListInvites)

	// Public: prospective users validate a code before they have an account.
	huma.Register(s.api, huma.Operation{
		OperationID: "validateInvite",
		Method:      http.MethodGet,
		Path:        "/api/v1/invites/{code}/validate",
		Summary:     "Validate invite",
		Description: "Reports whether a code could be redeemed right now. Nothing is reserved",
		Tags:        []string{"Invites"},
	}, s.handleValidateInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "redeemInvite",
		Method:      http.MethodPost,
		Path:        "/api/v1/invites/{code}/redeem",
		Summary:     "Redeem invite",
		Description: "Marks the code used by the caller. Exactly one redemption of a code succeeds",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleRedeemInvite)
}

// === DTOs ===

// InviteCodeInput names an invite code.
type InviteCodeInput struct {
	Code string `path:"code" maxLength:"32" doc:"Invite code, case-insensitive"`
}

// CreateInviteOutput wraps a created invite for Huma.
type CreateInviteOutput struct {
	Body *service.CreateInviteResult
}

// ListInvitesOutput lists the caller's invites.
type ListInvitesOutput struct {
	Body struct {
		Invites []*domain.Invite `json:"invites" doc:"Invites, oldest first"`
	}
}

// ValidateInviteOutput wraps a validation result for Huma.
type ValidateInviteOutput struct {
	Body *service.ValidationResult
}

// RedeemInviteOutput wraps a redemption result for Huma.
type RedeemInviteOutput struct {
	Body *service.RedeemResult
}

// === Handlers ===

func (s *Server) handleCreateInvite(ctx context.Context, _ *struct{}) (*CreateInviteOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Invite.CreateInvite(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CreateInviteOutput{Body: result}, nil
}

func (s *Server) handleListInvites(ctx context.Context, _ *struct{}) (*ListInvitesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	invites, err := s.services.Invite.ListInvites(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &ListInvitesOutput{}
	out.Body.Invites = invites
	return out, nil
}

func (s *Server) handleValidateInvite(ctx context.Context, input *InviteCodeInput) (*ValidateInviteOutput, error) {
	result, err := s.services.Invite.ValidateCode(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	return &ValidateInviteOutput{Body: result}, nil
}

func (s *Server) handleRedeemInvite(ctx context.Context, input *InviteCodeInput) (*RedeemInviteOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Invite.Redeem(ctx, input.Code, userID)
	if err != nil {
		return nil, err
	}
	return &RedeemInviteOutput{Body: result}, nil
}
