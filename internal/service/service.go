// Package service implements the social graph operations: the identity
// directory, follows, likes, the invite ledger and the activity recorder.
//
// Every mutation is one store.Update transaction. Callbacks reset their
// results at the top because the store re-runs them on conflict.
package service

import (
	"context"
	"errors"
	"fmt"

	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Page bounds shared by list operations.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// clampLimit applies the default and the cap to a caller-supplied limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// mapStoreError converts storage failures to coded errors. Coded errors
// raised inside a transaction pass through untouched.
func mapStoreError(err error, what string) error {
	if err == nil {
		return nil
	}

	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound(what + " not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.AlreadyExists(what + " already exists")
	case errors.Is(err, store.ErrTransient),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return domainerrors.TransientStore(err)
	default:
		return domainerrors.PermanentStore(err)
	}
}

// txError annotates an error raised inside a transaction callback while
// keeping the store sentinel reachable, so ErrConflict still triggers a retry.
func txError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// observe records the outcome of a service operation.
func observe(m *metrics.Metrics, op string, err error) {
	if err == nil {
		m.ObserveOperation(op, "ok")
		return
	}
	m.ObserveOperation(op, string(domainerrors.CodeOf(err)))
}
