package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dseinapp/dsein-server/internal/store"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tx implements store.Tx on a queryer. Outside Update it runs against the pool.
type tx struct {
	ctx context.Context
	q   queryer
}

var _ store.Tx = (*tx)(nil)

// exec runs a mutation and reports store.ErrNotFound when no row matched.
func (t *tx) execOne(query string, args ...any) error {
	res, err := t.q.ExecContext(t.ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) insert(query string, args ...any) error {
	if _, err := t.q.ExecContext(t.ctx, query, args...); err != nil {
		return translate(err)
	}
	return nil
}

// notFound converts sql.ErrNoRows to store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return translate(err)
}

func (t *tx) count(query string, args ...any) (int, error) {
	var n int
	if err := t.q.QueryRowContext(t.ctx, query, args...).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}
