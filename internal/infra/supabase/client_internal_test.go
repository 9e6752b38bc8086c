package supabase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("0-9/42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = parseContentRange("*/0")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = parseContentRange("0-9/*")
	assert.Error(t, err)

	_, err = parseContentRange("")
	assert.Error(t, err)
}

func TestQuoteFilter(t *testing.T) {
	assert.Equal(t, `"*a,b*"`, quoteFilter("*a,b*"))
	assert.Equal(t, `"say \"hi\""`, quoteFilter(`say "hi"`))
}

func TestSearchPattern_MatchesLiterally(t *testing.T) {
	tests := []struct {
		search string
		want   string
	}{
		{"acme", `"acme"`},
		{"a_b", `"a_b"`},
		{"50%", `"50%"`},
		{"a*b", `"a\\*b"`},
		{"a.b", `"a\\.b"`},
		{`say "hi"`, `"say \"hi\""`},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			assert.Equal(t, tt.want, searchPattern(tt.search))
		})
	}
}
