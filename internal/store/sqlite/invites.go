package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dseinapp/dsein-server/internal/domain"
)

// inviteColumns must match the scan order in scanInvite.
const inviteColumns = `code, created_by, created_at, status, used_by, used_at`

func scanInvite(scanner interface{ Scan(dest ...any) error }) (*domain.Invite, error) {
	var (
		inv       domain.Invite
		createdAt string
		status    string
		usedBy    sql.NullString
		usedAt    sql.NullString
	)

	if err := scanner.Scan(&inv.Code, &inv.CreatedBy, &createdAt, &status, &usedBy, &usedAt); err != nil {
		return nil, err
	}

	var err error
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if inv.UsedAt, err = parseNullableTime(usedAt); err != nil {
		return nil, fmt.Errorf("parse used_at: %w", err)
	}
	inv.Status = domain.InviteStatus(status)
	inv.UsedBy = usedBy.String
	return &inv, nil
}

func (t *tx) GetInvite(code string) (*domain.Invite, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+inviteColumns+` FROM invites WHERE code = ?`, code)
	inv, err := scanInvite(row)
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

func (t *tx) CreateInvite(inv *domain.Invite) error {
	return t.insert(`INSERT INTO invites (`+inviteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		inv.Code,
		inv.CreatedBy,
		formatTime(inv.CreatedAt),
		string(inv.Status),
		nullString(inv.UsedBy),
		nullTimeString(inv.UsedAt),
	)
}

func (t *tx) UpdateInvite(inv *domain.Invite) error {
	return t.execOne(`UPDATE invites SET status = ?, used_by = ?, used_at = ? WHERE code = ?`,
		string(inv.Status),
		nullString(inv.UsedBy),
		nullTimeString(inv.UsedAt),
		inv.Code,
	)
}

func (t *tx) DeleteInvite(code string) error {
	return t.execOne(`DELETE FROM invites WHERE code = ?`, code)
}

// ListInvitesByCreator implements store.Store.
func (s *Store) ListInvitesByCreator(ctx context.Context, creatorID string) ([]*domain.Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM invites WHERE created_by = ? ORDER BY created_at, code`, creatorID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var invites []*domain.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}
