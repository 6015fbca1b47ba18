package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dseinapp/dsein-server/internal/domain"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id, err := Generate("sse")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{"sse", "post", "seed"} {
		t.Run(prefix, func(t *testing.T) {
			id, err := Generate(prefix)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(id, prefix+"-"))
			assert.Len(t, strings.TrimPrefix(id, prefix+"-"), idLength)

			// Must be usable as a user or post id.
			assert.True(t, domain.ValidID(id), "ID: %s", id)
			assert.NotContains(t, id, "_")
		})
	}
}

func TestInviteCode_Format(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := InviteCode()
		require.NoError(t, err)
		assert.True(t, domain.ValidInviteCode(code), "code: %s", code)
	}
}

func TestInviteCode_ExcludesAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := mustInviteCode(t)
		suffix := strings.TrimPrefix(code, domain.InviteCodePrefix)
		assert.NotContainsf(t, suffix, "0", "code %s", code)
		assert.NotContainsf(t, suffix, "O", "code %s", code)
		assert.NotContainsf(t, suffix, "1", "code %s", code)
		assert.NotContainsf(t, suffix, "I", "code %s", code)
		assert.NotContainsf(t, suffix, "L", "code %s", code)
	}
}

func mustInviteCode(t *testing.T) string {
	t.Helper()
	code, err := InviteCode()
	require.NoError(t, err)
	return code
}

func BenchmarkGenerate(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = Generate("bench")
	}
}
