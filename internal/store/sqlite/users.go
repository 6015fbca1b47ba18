package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dseinapp/dsein-server/internal/domain"
)

// userColumns must match the scan order in scanUser.
const userColumns = `id, username, display_name, photo_url, followers_count, following_count,
	invites_available, banned, invited_by, created_at, updated_at`

func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		banned    int
		invitedBy sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.PhotoURL,
		&u.FollowersCount,
		&u.FollowingCount,
		&u.InvitesAvailable,
		&banned,
		&invitedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Banned = banned != 0
	u.InvitedBy = invitedBy.String
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (t *tx) GetUser(id string) (*domain.User, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (t *tx) GetUserByUsername(username string) (*domain.User, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (t *tx) CreateUser(u *domain.User) error {
	return t.insert(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.DisplayName,
		u.PhotoURL,
		u.FollowersCount,
		u.FollowingCount,
		u.InvitesAvailable,
		boolInt(u.Banned),
		nullString(u.InvitedBy),
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
}

func (t *tx) UpdateUser(u *domain.User) error {
	return t.execOne(`UPDATE users SET
		username = ?, display_name = ?, photo_url = ?, followers_count = ?, following_count = ?,
		invites_available = ?, banned = ?, invited_by = ?, updated_at = ?
		WHERE id = ?`,
		u.Username,
		u.DisplayName,
		u.PhotoURL,
		u.FollowersCount,
		u.FollowingCount,
		u.InvitesAvailable,
		boolInt(u.Banned),
		nullString(u.InvitedBy),
		formatTime(u.UpdatedAt),
		u.ID,
	)
}

// ListUsers implements store.Store.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
