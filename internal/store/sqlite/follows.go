package sqlite

import (
	"context"
	"fmt"

	"github.com/dseinapp/dsein-server/internal/domain"
)

func (t *tx) GetFollow(followerID, followingID string) (*domain.FollowEdge, error) {
	var (
		e         domain.FollowEdge
		createdAt string
	)
	err := t.q.QueryRowContext(t.ctx,
		`SELECT id, follower_id, following_id, created_at FROM follows WHERE id = ?`,
		domain.FollowEdgeID(followerID, followingID),
	).Scan(&e.ID, &e.FollowerID, &e.FollowingID, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &e, nil
}

func (t *tx) CreateFollow(e *domain.FollowEdge) error {
	return t.insert(`INSERT INTO follows (id, follower_id, following_id, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.FollowerID, e.FollowingID, formatTime(e.CreatedAt))
}

func (t *tx) DeleteFollow(followerID, followingID string) error {
	return t.execOne(`DELETE FROM follows WHERE id = ?`, domain.FollowEdgeID(followerID, followingID))
}

func (t *tx) CountFollowers(userID string) (int, error) {
	return t.count(`SELECT COUNT(*) FROM follows WHERE following_id = ?`, userID)
}

func (t *tx) CountFollowing(userID string) (int, error) {
	return t.count(`SELECT COUNT(*) FROM follows WHERE follower_id = ?`, userID)
}

// listIDs runs a single-column id query.
func (s *Store) listIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFollowerIDs implements store.Store.
func (s *Store) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT follower_id FROM follows WHERE following_id = ? ORDER BY follower_id`, userID)
}

// ListFollowingIDs implements store.Store.
func (s *Store) ListFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return s.listIDs(ctx, `SELECT following_id FROM follows WHERE follower_id = ? ORDER BY following_id`, userID)
}
