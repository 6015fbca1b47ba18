package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/store"
)

// ActivityService appends activity records. Records are never edited.
type ActivityService struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivityService creates an activity service.
func NewActivityService(st store.Store, m *metrics.Metrics, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		store:   st,
		metrics: m,
		logger:  logger,
	}
}

// errActivityIDTaken means the deterministic id of a new record already
// names a different join.
var errActivityIDTaken = domainerrors.New(domainerrors.CodeConflict, "activity id already records another referral")

// RecordInviteUsed credits referrerID with newUserID joining at the given
// time. Recording the same join twice returns the stored record. The id is
// per user and millisecond, so a second referral in the same millisecond
// collides and is reported as an error rather than as a record nobody sees.
func (s *ActivityService) RecordInviteUsed(ctx context.Context, newUserID, referrerID string, at time.Time) (rec *domain.ActivityRecord, err error) {
	defer func() { observe(s.metrics, "record_activity", err) }()

	record := domain.NewInviteUsedActivity(newUserID, referrerID, at)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		// Read before writing: a failed insert aborts a mongo transaction.
		stored, err := tx.GetActivity(record.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			rec = record
			return txError("create activity", tx.CreateActivity(record))
		case err != nil:
			return txError("get activity", err)
		case stored.Type != record.Type || stored.TargetUserID != referrerID:
			return errActivityIDTaken
		}
		rec = stored
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "activity")
	}

	s.logger.Debug("activity recorded", "activity_id", rec.ID, "target_user_id", referrerID)
	return rec, nil
}

// ListForUser returns records shown to targetUserID, newest first.
func (s *ActivityService) ListForUser(ctx context.Context, targetUserID string, limit int) ([]*domain.ActivityRecord, error) {
	if !domain.ValidID(targetUserID) {
		return []*domain.ActivityRecord{}, nil
	}
	records, err := s.store.ListActivityForTarget(ctx, targetUserID, clampLimit(limit))
	if err != nil {
		return nil, mapStoreError(err, "activity")
	}
	return records, nil
}
