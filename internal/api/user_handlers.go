package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dseinapp/dsein-server/internal/avatar"
	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/service"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "registerUser",
		Method:        http.MethodPost,
		Path:          "/api/v1/users",
		Summary:       "Register",
		Description:   "Creates the directory entry for the calling identity, optionally redeeming an invite code",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"gateway": {}}},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Get current user",
		Description: "Returns the caller's full profile including invite quota",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleGetCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateCurrentUser",
		Method:      http.MethodPatch,
		Path:        "/api/v1/users/me",
		Summary:     "Update profile",
		Description: "Changes the caller's username, display name or photo",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"gateway": {}}},
	}, s.handleUpdateCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchUsers",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/search",
		Summary:     "Search users",
		Description: "Finds users by username prefix or display name",
		Tags:        []string{"Users"},
	}, s.handleSearchUsers)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolveUsername",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/by-username/{username}",
		Summary:     "Resolve username",
		Description: "Looks up a user by username, ignoring case and a leading @",
		Tags:        []string{"Users"},
	}, s.handleResolveUsername)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{id}",
		Summary:     "Get user",
		Description: "Returns a user's public profile",
		Tags:        []string{"Users"},
	}, s.handleGetUser)
}

// === DTOs ===

// UserResponse is the public view of a user.
type UserResponse struct {
	ID             string    `json:"id" doc:"User ID"`
	Username       string    `json:"username" doc:"Unique lowercase username"`
	DisplayName    string    `json:"display_name" doc:"Display name"`
	PhotoURL       string    `json:"photo_url,omitempty" doc:"Profile photo URL"`
	FollowersCount int       `json:"followers_count" doc:"Number of followers"`
	FollowingCount int       `json:"following_count" doc:"Number of users followed"`
	InvitedBy      string    `json:"invited_by,omitempty" doc:"Referrer user ID"`
	AvatarColor    string    `json:"avatar_color" doc:"Placeholder avatar background color"`
	Initials       string    `json:"initials" doc:"Placeholder avatar initials"`
	CreatedAt      time.Time `json:"created_at" doc:"Registration time"`
}

// ProfileResponse is the caller's own view of their account.
type ProfileResponse struct {
	UserResponse
	InvitesAvailable int  `json:"invites_available" doc:"Remaining invite quota, -1 for unlimited"`
	Banned           bool `json:"banned" doc:"Whether the account is banned"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		PhotoURL:       u.PhotoURL,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		InvitedBy:      u.InvitedBy,
		AvatarColor:    avatar.Color(u.ID),
		Initials:       avatar.Initials(u.DisplayName, u.Username),
		CreatedAt:      u.CreatedAt,
	}
}

func toProfileResponse(u *domain.User) ProfileResponse {
	return ProfileResponse{
		UserResponse:     toUserResponse(u),
		InvitesAvailable: u.InvitesAvailable,
		Banned:           u.Banned,
	}
}

func toUserResponses(users []*domain.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return out
}

// RegisterInput contains the registration request.
type RegisterInput struct {
	Body struct {
		Username    string `json:"username" minLength:"3" maxLength:"31" doc:"Desired username, optionally prefixed with @"`
		DisplayName string `json:"display_name,omitempty" maxLength:"64" doc:"Display name, defaults to the username"`
		PhotoURL    string `json:"photo_url,omitempty" maxLength:"2048" doc:"Profile photo URL"`
		InviteCode  string `json:"invite_code,omitempty" doc:"Invite code to redeem on sign-up"`
	}
}

// RegisterResponse reports the new account and the invite it used, if any.
type RegisterResponse struct {
	User        ProfileResponse       `json:"user" doc:"The registered user"`
	Invite      *service.RedeemResult `json:"invite,omitempty" doc:"Redemption result when an invite code was supplied"`
	InviteError *domainerrors.Error   `json:"invite_error,omitempty" doc:"Why the invite could not be redeemed after registration"`
}

// RegisterOutput wraps the registration response for Huma.
type RegisterOutput struct {
	Body RegisterResponse
}

// UserOutput wraps a public user for Huma.
type UserOutput struct {
	Body UserResponse
}

// ProfileOutput wraps the caller's profile for Huma.
type ProfileOutput struct {
	Body ProfileResponse
}

// UsersOutput wraps a list of users for Huma.
type UsersOutput struct {
	Body struct {
		Users []UserResponse `json:"users" doc:"Matching users"`
	}
}

// UpdateProfileInput contains the fields to change. Absent fields are kept.
type UpdateProfileInput struct {
	Body struct {
		Username    *string `json:"username,omitempty" doc:"New username"`
		DisplayName *string `json:"display_name,omitempty" doc:"New display name"`
		PhotoURL    *string `json:"photo_url,omitempty" doc:"New photo URL, empty to clear"`
	}
}

// SearchUsersInput contains the search parameters.
type SearchUsersInput struct {
	Query string `query:"q" maxLength:"64" doc:"Search text"`
	Limit int    `query:"limit" minimum:"0" maximum:"100" doc:"Max results (default 20)"`
}

// ResolveUsernameInput names the username to look up.
type ResolveUsernameInput struct {
	Username string `path:"username" doc:"Username, with or without @"`
}

// UserIDInput names a user by ID.
type UserIDInput struct {
	ID string `path:"id" doc:"User ID"`
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*RegisterOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.RegisterRequest{
		ID:          userID,
		Username:    input.Body.Username,
		DisplayName: input.Body.DisplayName,
		PhotoURL:    input.Body.PhotoURL,
	}

	// Reject a bad code before creating the account so it does not leave a
	// half-finished sign-up behind. The check is advisory: Redeem re-reads
	// the invite and links the referrer in its own transaction.
	code := input.Body.InviteCode
	if code != "" {
		check, err := s.services.Invite.ValidateCode(ctx, code)
		if err != nil {
			return nil, err
		}
		switch check.Status {
		case service.InviteInvalid:
			return nil, domainerrors.InviteInvalid(check.Message)
		case service.InviteAlreadyRedeemed:
			return nil, domainerrors.AlreadyRedeemed(check.Message)
		}
	}

	user, err := s.services.Directory.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if code != "" {
		redeemed, err := s.services.Invite.Redeem(ctx, code, user.ID)
		if err != nil {
			logger.FromContext(ctx, s.logger).Warn("invite redemption failed after registration", "error", err)
			resp.InviteError = asDomainError(err)
		} else {
			resp.Invite = redeemed
			user.InvitedBy = redeemed.ReferrerID
		}
	}
	resp.User = toProfileResponse(user)

	return &RegisterOutput{Body: resp}, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, _ *struct{}) (*ProfileOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Directory.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ProfileOutput{Body: toProfileResponse(user)}, nil
}

func (s *Server) handleUpdateCurrentUser(ctx context.Context, input *UpdateProfileInput) (*ProfileOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Directory.UpdateProfile(ctx, userID, service.UpdateProfileRequest{
		Username:    input.Body.Username,
		DisplayName: input.Body.DisplayName,
		PhotoURL:    input.Body.PhotoURL,
	})
	if err != nil {
		return nil, err
	}

	return &ProfileOutput{Body: toProfileResponse(user)}, nil
}

func (s *Server) handleSearchUsers(ctx context.Context, input *SearchUsersInput) (*UsersOutput, error) {
	users, err := s.services.Directory.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, err
	}

	out := &UsersOutput{}
	out.Body.Users = toUserResponses(users)
	return out, nil
}

func (s *Server) handleResolveUsername(ctx context.Context, input *ResolveUsernameInput) (*UserOutput, error) {
	user, err := s.services.Directory.ResolveByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: toUserResponse(user)}, nil
}

func (s *Server) handleGetUser(ctx context.Context, input *UserIDInput) (*UserOutput, error) {
	user, err := s.services.Directory.GetUser(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: toUserResponse(user)}, nil
}

// asDomainError returns err as a domain error, hiding anything else behind INTERNAL.
func asDomainError(err error) *domainerrors.Error {
	var domainErr *domainerrors.Error
	if domainerrors.As(err, &domainErr) {
		return domainErr
	}
	return domainerrors.Internal("internal server error")
}
