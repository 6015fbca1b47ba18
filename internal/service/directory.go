package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/normalize"
	"github.com/dseinapp/dsein-server/internal/search"
	"github.com/dseinapp/dsein-server/internal/store"
	"github.com/dseinapp/dsein-server/internal/validation"
)

// DefaultInviteQuota is the quota given to new users when none is configured.
const DefaultInviteQuota = 3

// UserIndex is the search side of the directory. *search.SearchIndex implements it.
type UserIndex interface {
	IndexUser(u *domain.User) error
	IndexUsers(users []*domain.User) error
	SearchUsers(ctx context.Context, q string, limit int) ([]search.UserHit, error)
}

// RegisterRequest creates a directory entry for an id issued by the auth provider.
type RegisterRequest struct {
	ID          string `json:"id" validate:"required,entity_id"`
	Username    string `json:"username" validate:"required,username"`
	DisplayName string `json:"display_name" validate:"max=64"`
	PhotoURL    string `json:"photo_url,omitempty" validate:"omitempty,url,max=2048"`
	InvitedBy   string `json:"invited_by,omitempty" validate:"omitempty,entity_id"`
}

// UpdateProfileRequest changes the fields that are set.
type UpdateProfileRequest struct {
	Username    *string `json:"username,omitempty" validate:"omitnil,username"`
	DisplayName *string `json:"display_name,omitempty" validate:"omitnil,max=64"`
	PhotoURL    *string `json:"photo_url,omitempty" validate:"omitempty,url,max=2048"`
}

// DirectoryService maps user ids to unique lowercase usernames and owns profiles.
type DirectoryService struct {
	store        store.Store
	index        UserIndex
	validator    *validation.Validator
	metrics      *metrics.Metrics
	logger       *slog.Logger
	defaultQuota int
}

// NewDirectoryService creates a directory service. index may be nil, in which
// case Search falls back to exact username lookup.
func NewDirectoryService(
	st store.Store,
	index UserIndex,
	v *validation.Validator,
	m *metrics.Metrics,
	logger *slog.Logger,
	defaultQuota int,
) *DirectoryService {
	return &DirectoryService{
		store:        st,
		index:        index,
		validator:    v,
		metrics:      m,
		logger:       logger,
		defaultQuota: defaultQuota,
	}
}

// ResolveByUsername finds a user by username, ignoring case, surrounding
// whitespace and a leading "@". Input that can never be a username is
// reported as not found without a store round trip.
func (s *DirectoryService) ResolveByUsername(ctx context.Context, username string) (*domain.User, error) {
	name := normalize.Username(username)
	if !domain.ValidUsername(name) {
		return nil, domainerrors.NotFoundf("user @%s not found", name)
	}

	u, err := s.store.GetUserByUsername(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFoundf("user @%s not found", name)
	}
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return u, nil
}

// GetUser returns the user with the given id.
func (s *DirectoryService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !domain.ValidID(id) {
		return nil, domainerrors.NotFoundf("user %s not found", id)
	}
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return u, nil
}

// Register creates a user. The id and the username must both be unused.
func (s *DirectoryService) Register(ctx context.Context, req RegisterRequest) (u *domain.User, err error) {
	defer func() { observe(s.metrics, "register", err) }()

	req.Username = normalize.Username(req.Username)
	req.DisplayName = normalize.DisplayName(req.DisplayName)
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	user := &domain.User{
		ID:               req.ID,
		Username:         req.Username,
		DisplayName:      req.DisplayName,
		PhotoURL:         req.PhotoURL,
		InvitesAvailable: s.defaultQuota,
		InvitedBy:        req.InvitedBy,
	}
	user.InitTimestamps()

	err = s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetUser(user.ID); err == nil {
			return domainerrors.AlreadyExists("user already registered")
		} else if !errors.Is(err, store.ErrNotFound) {
			return txError("get user", err)
		}

		if _, err := tx.GetUserByUsername(user.Username); err == nil {
			return domainerrors.AlreadyExistsf("username @%s is taken", user.Username)
		} else if !errors.Is(err, store.ErrNotFound) {
			return txError("get user by username", err)
		}

		if err := tx.CreateUser(user); err != nil {
			return txError("create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "user")
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	s.indexUser(user)
	return user, nil
}

// UpdateProfile applies the set fields of req. A username change moves the
// uniqueness index in the same transaction.
func (s *DirectoryService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (u *domain.User, err error) {
	defer func() { observe(s.metrics, "update_profile", err) }()

	if req.Username != nil {
		name := normalize.Username(*req.Username)
		req.Username = &name
	}
	if req.DisplayName != nil {
		name := normalize.DisplayName(*req.DisplayName)
		req.DisplayName = &name
	}
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}
	if !domain.ValidID(id) {
		return nil, domainerrors.NotFoundf("user %s not found", id)
	}

	var updated *domain.User
	err = s.store.Update(ctx, func(tx store.Tx) error {
		updated = nil

		user, err := tx.GetUser(id)
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.NotFoundf("user %s not found", id)
		}
		if err != nil {
			return txError("get user", err)
		}

		if req.Username != nil && *req.Username != user.Username {
			other, err := tx.GetUserByUsername(*req.Username)
			if err == nil && other.ID != user.ID {
				return domainerrors.AlreadyExistsf("username @%s is taken", *req.Username)
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return txError("get user by username", err)
			}
			user.Username = *req.Username
		}
		if req.DisplayName != nil {
			user.DisplayName = *req.DisplayName
			if user.DisplayName == "" {
				user.DisplayName = user.Username
			}
		}
		if req.PhotoURL != nil {
			user.PhotoURL = *req.PhotoURL
		}

		user.Touch()
		if err := tx.UpdateUser(user); err != nil {
			return txError("update user", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "user")
	}

	s.indexUser(updated)
	return updated, nil
}

// SetBanned sets the ban flag. Banned users cannot follow or issue invites.
func (s *DirectoryService) SetBanned(ctx context.Context, id string, banned bool) (u *domain.User, err error) {
	defer func() { observe(s.metrics, "set_banned", err) }()

	if !domain.ValidID(id) {
		return nil, domainerrors.NotFoundf("user %s not found", id)
	}

	var updated *domain.User
	err = s.store.Update(ctx, func(tx store.Tx) error {
		updated = nil

		user, err := tx.GetUser(id)
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.NotFoundf("user %s not found", id)
		}
		if err != nil {
			return txError("get user", err)
		}
		if user.Banned == banned {
			updated = user
			return nil
		}

		user.Banned = banned
		user.Touch()
		if err := tx.UpdateUser(user); err != nil {
			return txError("update user", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "user")
	}

	s.logger.Info("user ban updated", "user_id", id, "banned", banned)
	s.indexUser(updated)
	return updated, nil
}

// Search returns users matching query by username prefix or display name.
func (s *DirectoryService) Search(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	limit = clampLimit(limit)

	if s.index == nil {
		u, err := s.ResolveByUsername(ctx, query)
		if errors.Is(err, domainerrors.ErrNotFound) {
			return []*domain.User{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*domain.User{u}, nil
	}

	hits, err := s.index.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "search failed")
	}

	users := make([]*domain.User, 0, len(hits))
	for _, hit := range hits {
		u, err := s.store.GetUser(ctx, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("search hit for missing user", "user_id", hit.ID)
			continue
		}
		if err != nil {
			return nil, mapStoreError(err, "user")
		}
		if u.Banned {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// Reindex rebuilds the search documents of every user from the store.
func (s *DirectoryService) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, mapStoreError(err, "user")
	}
	if err := s.index.IndexUsers(users); err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeInternal, "reindex failed")
	}
	s.logger.Info("search index rebuilt", "users", len(users))
	return len(users), nil
}

func (s *DirectoryService) indexUser(u *domain.User) {
	if s.index == nil || u == nil {
		return
	}
	if err := s.index.IndexUser(u); err != nil {
		s.logger.Warn("failed to index user", "user_id", u.ID, "error", err)
	}
}
