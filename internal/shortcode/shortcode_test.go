package shortcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	gen := NewGenerator(7)

	for i := 0; i < 100; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, code, 7)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q in %q", r, code)
		}
	}
}

func TestGenerateDefaultsLength(t *testing.T) {
	gen := NewGenerator(0)
	code, err := gen.Generate()
	require.NoError(t, err)
	assert.Len(t, code, DefaultLength)
}

func TestGeneratedCodesVary(t *testing.T) {
	gen := NewGenerator(7)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		seen[code] = true
	}
	// 50 draws from 62^7 values must not all collapse.
	assert.Greater(t, len(seen), 1)
}

func TestValid(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"abcDEF1", true},
		{"1234567", true},
		{"ZZZZZZZ", true},
		{"abcdef", false},   // too short
		{"abcdefgh", false}, // too long
		{"abc-ef1", false},  // bad rune
		{"abc ef1", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Valid(tc.code), "code %q", tc.code)
	}
}
