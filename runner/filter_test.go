package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPatterns(t *testing.T, patterns ...string) PatternList {
	t.Helper()
	var list PatternList
	for _, p := range patterns {
		require.NoError(t, list.Set(p))
	}
	return list
}

func TestRegexFiltersMatchEverythingByDefault(t *testing.T) {
	var filters RegexFilters
	assert.True(t, filters.Match("goxgo_tcp_noise_yamux"))
}

func TestRegexFiltersMustMatch(t *testing.T) {
	filters := RegexFilters{MustMatch: mustPatterns(t, "_quic_", "_ws_")}
	assert.True(t, filters.Match("goxgo_quic_noise_yamux"))
	assert.True(t, filters.Match("goxjs-browser_ws_noise_yamux"))
	assert.False(t, filters.Match("goxgo_tcp_noise_yamux"))
}

func TestRegexFiltersMustNotMatch(t *testing.T) {
	filters := RegexFilters{MustNotMatch: mustPatterns(t, "^js-browserx")}
	assert.True(t, filters.Match("goxjs-browser_ws_noise_yamux"))
	assert.False(t, filters.Match("js-browserxgo_ws_noise_yamux"))
}

func TestRegexFiltersCombined(t *testing.T) {
	filters := RegexFilters{
		MustMatch:    mustPatterns(t, "_tcp_"),
		MustNotMatch: mustPatterns(t, "_tls_"),
	}
	assert.True(t, filters.Match("goxgo_tcp_noise_yamux"))
	assert.False(t, filters.Match("goxgo_tcp_tls_yamux"))
	assert.False(t, filters.Match("goxgo_ws_noise_yamux"))
}

func TestPatternListSetRejectsInvalidRegex(t *testing.T) {
	var list PatternList
	assert.Error(t, list.Set("("))
	assert.False(t, list.IsDefined())
}

func TestPatternListString(t *testing.T) {
	list := mustPatterns(t, "_tcp_", "_quic_")
	assert.Equal(t, `"_tcp_" or "_quic_"`, list.String())
}
