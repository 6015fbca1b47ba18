package sqlite

import (
	"context"
	"fmt"

	"github.com/dseinapp/dsein-server/internal/domain"
)

const likeColumns = `id, user_id, post_id, post_owner_id, created_at`

func scanLike(scanner interface{ Scan(dest ...any) error }) (*domain.LikeEdge, error) {
	var (
		l         domain.LikeEdge
		createdAt string
	)
	if err := scanner.Scan(&l.ID, &l.UserID, &l.PostID, &l.PostOwnerID, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &l, nil
}

func (t *tx) GetLike(userID, postID string) (*domain.LikeEdge, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+likeColumns+` FROM likes WHERE id = ?`, domain.LikeEdgeID(userID, postID))
	l, err := scanLike(row)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (t *tx) CreateLike(l *domain.LikeEdge) error {
	return t.insert(`INSERT INTO likes (`+likeColumns+`) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.PostID, l.PostOwnerID, formatTime(l.CreatedAt))
}

func (t *tx) DeleteLike(userID, postID string) error {
	return t.execOne(`DELETE FROM likes WHERE id = ?`, domain.LikeEdgeID(userID, postID))
}

// ListLikesByOwner implements store.Store.
func (s *Store) ListLikesByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LikeEdge, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+likeColumns+` FROM likes WHERE post_owner_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var likes []*domain.LikeEdge
	for rows.Next() {
		l, err := scanLike(rows)
		if err != nil {
			return nil, err
		}
		likes = append(likes, l)
	}
	return likes, rows.Err()
}
