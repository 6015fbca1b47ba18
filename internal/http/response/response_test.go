package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusAccepted, map[string]string{"status": "healthy"}, discard())

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestError_DomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", domainerrors.NotFound("user not found"), http.StatusNotFound, "NOT_FOUND"},
		{"self follow", domainerrors.SelfReferenceDenied("you cannot follow yourself"), http.StatusUnprocessableEntity, "SELF_REFERENCE_DENIED"},
		{"wrapped", domainerrors.Wrap(errors.New("disk"), domainerrors.CodeTransientStore, "busy"), http.StatusServiceUnavailable, "TRANSIENT_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, tt.err, discard())

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestError_UnknownErrorHidesText(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, errors.New("secret connection string"), discard())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "INTERNAL", body.Code)
	assert.NotContains(t, body.Message, "secret")
}

func TestHelpers(t *testing.T) {
	w := httptest.NewRecorder()
	Unauthorized(w, "missing identity", discard())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Code)

	w = httptest.NewRecorder()
	TooManyRequests(w, "slow down", discard())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w).Code)
}
