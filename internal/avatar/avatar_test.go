package avatar

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexColor = regexp.MustCompile(`^#[0-9A-F]{6}$`)

func TestColor(t *testing.T) {
	c := Color("user-1")
	assert.Regexp(t, hexColor, c)
	assert.Equal(t, c, Color("user-1"), "color must be stable for an id")
	assert.Regexp(t, hexColor, Color(""))
}

func TestHSLToRGB(t *testing.T) {
	// Zero saturation is gray at the given lightness.
	r, g, b := hslToRGB(120, 0, 0.5)
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)

	// Pure red at full saturation.
	r, g, b = hslToRGB(0, 1, 0.5)
	assert.Equal(t, uint8(255), r)
	assert.Equal(t, uint8(0), g)
	assert.Equal(t, uint8(0), b)
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		username    string
		want        string
	}{
		{"two words", "Ada Lovelace", "ada", "AL"},
		{"three words", "Jean Luc Picard", "jlp", "JL"},
		{"single word", "Cher", "cher", "C"},
		{"punctuation", "  -- dana!  ", "dana", "D"},
		{"fallback to username", "", "grace_hopper", "GH"},
		{"unicode", "élodie ürs", "elodie", "ÉÜ"},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Initials(tt.displayName, tt.username))
		})
	}
}
