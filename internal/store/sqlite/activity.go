package sqlite

import (
	"context"
	"fmt"

	"github.com/dseinapp/dsein-server/internal/domain"
)

const activityColumns = `id, type, user_id, target_user_id, created_at`

func scanActivity(scanner interface{ Scan(dest ...any) error }) (*domain.ActivityRecord, error) {
	var (
		a         domain.ActivityRecord
		typ       string
		createdAt string
	)
	if err := scanner.Scan(&a.ID, &typ, &a.UserID, &a.TargetUserID, &createdAt); err != nil {
		return nil, err
	}
	a.Type = domain.ActivityType(typ)
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &a, nil
}

func (t *tx) GetActivity(id string) (*domain.ActivityRecord, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+activityColumns+` FROM activity WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (t *tx) CreateActivity(a *domain.ActivityRecord) error {
	return t.insert(`INSERT INTO activity (id, type, user_id, target_user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.UserID, a.TargetUserID, formatTime(a.CreatedAt))
}

// ListActivityForTarget implements store.Store.
func (s *Store) ListActivityForTarget(ctx context.Context, targetID string, limit int) ([]*domain.ActivityRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activity
		WHERE target_user_id = ? ORDER BY created_at DESC, id LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var records []*domain.ActivityRecord
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
