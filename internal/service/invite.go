package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/id"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/normalize"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Invite ledger defaults.
const (
	DefaultInviteExpiry       = 12 * time.Hour
	MaxCodeGenerationAttempts = 5
)

// InviteValidity is the advisory state reported by ValidateCode.
type InviteValidity string

const (
	InviteValid           InviteValidity = "valid"
	InviteInvalid         InviteValidity = "invalid"
	InviteAlreadyRedeemed InviteValidity = "already_redeemed"
)

// CreateInviteResult is returned by CreateInvite.
type CreateInviteResult struct {
	Invite           *domain.Invite `json:"invite"`
	InvitesRemaining int            `json:"invites_remaining"`
	Unlimited        bool           `json:"unlimited"`
	Message          string         `json:"message"`
}

// ValidationResult is returned by ValidateCode. It reserves nothing.
type ValidationResult struct {
	Status  InviteValidity `json:"status"`
	Code    string         `json:"code"`
	Invite  *domain.Invite `json:"invite,omitempty"`
	Message string         `json:"message"`
}

// RedeemResult is returned by Redeem. Activity is nil when the best-effort
// activity append failed.
type RedeemResult struct {
	Invite     *domain.Invite         `json:"invite"`
	ReferrerID string                 `json:"referrer_id"`
	Activity   *domain.ActivityRecord `json:"activity,omitempty"`
	Message    string                 `json:"message"`
}

// errCodeCollision aborts a CreateInvite transaction whose code was taken
// after the probe.
var errCodeCollision = errors.New("invite code collision")

// InviteService issues, validates, redeems and purges single-use invite codes.
type InviteService struct {
	store    store.Store
	activity *ActivityService
	emitter  store.EventEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	expiry   time.Duration

	generate func() (string, error)
	now      func() time.Time
}

// NewInviteService creates an invite service. expiry is the age after which
// unused codes are purged; zero means DefaultInviteExpiry.
func NewInviteService(
	st store.Store,
	activity *ActivityService,
	emitter store.EventEmitter,
	m *metrics.Metrics,
	logger *slog.Logger,
	expiry time.Duration,
) *InviteService {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	if expiry <= 0 {
		expiry = DefaultInviteExpiry
	}
	return &InviteService{
		store:    st,
		activity: activity,
		emitter:  emitter,
		metrics:  m,
		logger:   logger,
		expiry:   expiry,
		generate: id.InviteCode,
		now:      time.Now,
	}
}

// GenerateCode draws a fresh code. Uniqueness is not checked here.
func (s *InviteService) GenerateCode() (string, error) {
	return s.generate()
}

// CreateInvite issues a code on behalf of referrerID and charges their quota.
// A drawn code that already exists is discarded and another is drawn, up to
// MaxCodeGenerationAttempts times.
func (s *InviteService) CreateInvite(ctx context.Context, referrerID string) (res *CreateInviteResult, err error) {
	defer func() { observe(s.metrics, "create_invite", err) }()

	if !domain.ValidID(referrerID) {
		return nil, domainerrors.InvalidFormat("user id must be 1-128 letters, digits or dashes")
	}

	for attempt := 1; attempt <= MaxCodeGenerationAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to generate invite code")
		}

		// Cheap probe outside the transaction; the create below is still conditional.
		if _, err := s.store.GetInvite(ctx, code); err == nil {
			s.logger.Debug("invite code collision on probe", "attempt", attempt)
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, mapStoreError(err, "invite")
		}

		result, err := s.createWithCode(ctx, referrerID, code)
		if errors.Is(err, errCodeCollision) {
			s.logger.Debug("invite code collision on create", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, mapStoreError(err, "invite")
		}

		s.logger.Info("invite created", "created_by", referrerID, "code", code)
		return result, nil
	}

	s.logger.Warn("invite code generation exhausted", "created_by", referrerID)
	return nil, domainerrors.CodeGenerationExhausted("could not generate a unique invite code, try again")
}

func (s *InviteService) createWithCode(ctx context.Context, referrerID, code string) (*CreateInviteResult, error) {
	var result *CreateInviteResult
	err := s.store.Update(ctx, func(tx store.Tx) error {
		result = nil

		referrer, err := getUserTx(tx, referrerID)
		if err != nil {
			return err
		}
		if referrer.Banned {
			return domainerrors.Forbidden("your account cannot issue invites")
		}
		if !referrer.CanInvite() {
			return domainerrors.NoInvitesRemaining("you have no invites remaining")
		}

		invite := domain.NewInvite(code, referrerID, s.now())
		if err := tx.CreateInvite(invite); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return errCodeCollision
			}
			return txError("create invite", err)
		}

		if !referrer.HasUnlimitedInvites() {
			referrer.ConsumeInvite()
			referrer.Touch()
			if err := tx.UpdateUser(referrer); err != nil {
				return txError("update referrer", err)
			}
		}

		result = &CreateInviteResult{
			Invite:           invite,
			InvitesRemaining: referrer.InvitesAvailable,
			Unlimited:        referrer.HasUnlimitedInvites(),
		}
		if result.Unlimited {
			result.Message = fmt.Sprintf("Invite %s created", code)
		} else {
			result.Message = fmt.Sprintf("Invite %s created, %d remaining", code, referrer.InvitesAvailable)
		}
		return nil
	})
	return result, err
}

// ValidateCode reports whether rawCode could be redeemed right now.
// Malformed codes are reported invalid without a store round trip.
func (s *InviteService) ValidateCode(ctx context.Context, rawCode string) (*ValidationResult, error) {
	code := normalize.InviteCode(rawCode)
	if !domain.ValidInviteCode(code) {
		return &ValidationResult{Status: InviteInvalid, Code: code, Message: "This invite code is not valid"}, nil
	}

	invite, err := s.store.GetInvite(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return &ValidationResult{Status: InviteInvalid, Code: code, Message: "This invite code is not valid"}, nil
	}
	if err != nil {
		return nil, mapStoreError(err, "invite")
	}
	if invite.IsUsed() {
		return &ValidationResult{Status: InviteAlreadyRedeemed, Code: code, Message: "This invite code has already been used"}, nil
	}
	return &ValidationResult{Status: InviteValid, Code: code, Invite: invite, Message: "This invite code is valid"}, nil
}

// Redeem marks the code used by newUserID. Exactly one of any number of
// concurrent redemptions succeeds; the rest see AlreadyRedeemed. The activity
// record and the event that follow the commit are best effort.
func (s *InviteService) Redeem(ctx context.Context, rawCode, newUserID string) (res *RedeemResult, err error) {
	defer func() { observe(s.metrics, "redeem_invite", err) }()

	code := normalize.InviteCode(rawCode)
	if !domain.ValidInviteCode(code) {
		return nil, domainerrors.InvalidFormatf("invite codes look like %sXXXXX", domain.InviteCodePrefix)
	}
	if !domain.ValidID(newUserID) {
		return nil, domainerrors.InvalidFormat("user id must be 1-128 letters, digits or dashes")
	}

	var redeemed *domain.Invite
	err = s.store.Update(ctx, func(tx store.Tx) error {
		redeemed = nil

		invite, err := tx.GetInvite(code)
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.InviteInvalid("this invite code is not valid")
		}
		if err != nil {
			return txError("get invite", err)
		}
		if invite.IsUsed() {
			return domainerrors.AlreadyRedeemed("this invite code has already been used")
		}

		invite.MarkUsed(newUserID, s.now())
		if err := tx.UpdateInvite(invite); err != nil {
			return txError("update invite", err)
		}

		// The referrer link follows the redemption that committed. A redeemer
		// without an account is left unlinked.
		user, err := tx.GetUser(newUserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return txError("get user", err)
		case user.InvitedBy == "":
			user.InvitedBy = invite.CreatedBy
			user.Touch()
			if err := tx.UpdateUser(user); err != nil {
				return txError("link referrer", err)
			}
		}

		redeemed = invite
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "invite")
	}

	s.logger.Info("invite redeemed", "code", code, "used_by", newUserID, "created_by", redeemed.CreatedBy)

	result := &RedeemResult{
		Invite:     redeemed,
		ReferrerID: redeemed.CreatedBy,
		Message:    "Welcome! Your invite code was accepted",
	}

	var activityID string
	if s.activity != nil {
		rec, err := s.activity.RecordInviteUsed(ctx, newUserID, redeemed.CreatedBy, *redeemed.UsedAt)
		if err != nil {
			s.logger.Warn("failed to record invite activity", "code", code, "error", err)
		} else {
			result.Activity = rec
			activityID = rec.ID
		}
	}
	s.emitter.Emit(sse.NewInviteUsedEvent(redeemed.CreatedBy, newUserID, code, activityID))

	return result, nil
}

// PurgeExpired deletes referrerID's unused invites older than maxAge
// (the configured expiry when maxAge is zero). Each delete re-reads the
// invite in its own transaction so a code redeemed mid-scan is kept.
// Purged invites do not refund quota.
func (s *InviteService) PurgeExpired(ctx context.Context, referrerID string, maxAge time.Duration) (n int, err error) {
	defer func() { observe(s.metrics, "purge_invites", err) }()

	if !domain.ValidID(referrerID) {
		return 0, domainerrors.InvalidFormat("user id must be 1-128 letters, digits or dashes")
	}
	if maxAge <= 0 {
		maxAge = s.expiry
	}

	invites, err := s.store.ListInvitesByCreator(ctx, referrerID)
	if err != nil {
		return 0, mapStoreError(err, "invites")
	}

	now := s.now()
	deleted := 0
	for _, candidate := range invites {
		if !candidate.ExpiredAt(now, maxAge) {
			continue
		}

		var purged bool
		err := s.store.Update(ctx, func(tx store.Tx) error {
			purged = false

			invite, err := tx.GetInvite(candidate.Code)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return txError("get invite", err)
			}
			if !invite.ExpiredAt(now, maxAge) {
				return nil
			}
			if err := tx.DeleteInvite(invite.Code); err != nil {
				return txError("delete invite", err)
			}
			purged = true
			return nil
		})
		if err != nil {
			return deleted, mapStoreError(err, "invite")
		}
		if purged {
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info("expired invites purged", "created_by", referrerID, "deleted", deleted)
	}
	return deleted, nil
}

// PurgeAllExpired runs PurgeExpired for every user. It stops at the first
// failure and reports how many invites were deleted before it.
func (s *InviteService) PurgeAllExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, mapStoreError(err, "users")
	}

	total := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return total, domainerrors.TransientStore(err)
		}
		n, err := s.PurgeExpired(ctx, u.ID, maxAge)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ListInvites returns referrerID's invites, oldest first.
func (s *InviteService) ListInvites(ctx context.Context, referrerID string) ([]*domain.Invite, error) {
	if !domain.ValidID(referrerID) {
		return []*domain.Invite{}, nil
	}
	invites, err := s.store.ListInvitesByCreator(ctx, referrerID)
	if err != nil {
		return nil, mapStoreError(err, "invites")
	}
	return invites, nil
}
