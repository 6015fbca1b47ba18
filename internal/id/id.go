// Package id draws the random identifiers dsein hands out: connection and
// seed ids, and DSEIN-XXXXX invite codes.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dseinapp/dsein-server/internal/domain"
)

// idAlphabet has no "_" or ":" so ids never split composite or index keys.
const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idLength   = 21
)

// Generate returns kind-<21 random chars>, e.g. "sse-V1StGXR8Z5jdHi6BmyTq1".
func Generate(kind string) (string, error) {
	s, err := draw(idAlphabet, idLength)
	if err != nil {
		return "", err
	}
	return kind + "-" + s, nil
}

// InviteCode draws a fresh DSEIN-XXXXX code. Collisions are the caller's problem.
func InviteCode() (string, error) {
	s, err := draw(domain.InviteCodeAlphabet, domain.InviteCodeLength)
	if err != nil {
		return "", err
	}
	return domain.InviteCodePrefix + s, nil
}

func draw(alphabet string, n int) (string, error) {
	s, err := gonanoid.Generate(alphabet, n)
	if err != nil {
		return "", fmt.Errorf("id: read entropy: %w", err)
	}
	return s, nil
}
