package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/validation"
)

type TestRequest struct {
	ID          string `json:"id" validate:"required,entity_id"`
	Username    string `json:"username" validate:"required,username"`
	DisplayName string `json:"display_name" validate:"max=10"`
	PhotoURL    string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(TestRequest{
		ID:          "usr-123",
		Username:    "alice_01",
		DisplayName: "Alice",
		PhotoURL:    "https://cdn.example.com/a.jpg",
	})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       TestRequest
		wantField string
	}{
		{
			name:      "missing id",
			req:       TestRequest{Username: "alice"},
			wantField: "id",
		},
		{
			name:      "id with separator",
			req:       TestRequest{ID: "a_b", Username: "alice"},
			wantField: "id",
		},
		{
			name:      "uppercase username",
			req:       TestRequest{ID: "u1", Username: "Alice"},
			wantField: "username",
		},
		{
			name:      "short username",
			req:       TestRequest{ID: "u1", Username: "al"},
			wantField: "username",
		},
		{
			name:      "long display name",
			req:       TestRequest{ID: "u1", Username: "alice", DisplayName: "Alice Wonderland"},
			wantField: "display_name",
		},
		{
			name:      "bad photo url",
			req:       TestRequest{ID: "u1", Username: "alice", PhotoURL: "not a url"},
			wantField: "photo_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

type redeemRequest struct {
	Code   string `json:"code" validate:"required,invite_code"`
	Secret string `json:"-" validate:"omitempty,max=3"`
}

func TestValidator_InviteCode(t *testing.T) {
	v := validation.New()

	require.NoError(t, v.Validate(redeemRequest{Code: "DSEIN-ABCDE"}))

	err := v.Validate(redeemRequest{Code: "DSEIN-ABCD0"})
	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	details := domainErr.Details.(map[string]string)
	assert.Equal(t, "must look like DSEIN-XXXXX", details["code"])
}

func TestValidator_MessagesUseRules(t *testing.T) {
	v := validation.New()

	err := v.Validate(TestRequest{ID: "u1", Username: "A"})
	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	details := domainErr.Details.(map[string]string)
	assert.Contains(t, details["username"], "lowercase letters")
}
