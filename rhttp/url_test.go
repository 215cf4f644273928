package rhttp

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveURLAbsoluteRefWins(t *testing.T) {
	u, err := resolveURL("https://api.example.com", "https://other.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x", u)
}

func TestResolveURLRejectsProtocolRelative(t *testing.T) {
	_, err := resolveURL("https://api.example.com", "//evil.example.com/x")
	assert.Error(t, err)
}

func TestResolveURLJoinsRelativeAgainstBase(t *testing.T) {
	u, err := resolveURL("https://api.example.com/v1", "/users")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users", u)
}

func TestResolveURLRequiresBaseForRelativeRef(t *testing.T) {
	_, err := resolveURL("", "/users")
	assert.Error(t, err)
}

func TestApplyQueryParamsSkipsNilValues(t *testing.T) {
	u, err := applyQueryParams("https://api.example.com/search", map[string]any{
		"q":      "go",
		"filter": nil,
	})
	require.NoError(t, err)
	assert.Contains(t, u, "q=go")
	assert.NotContains(t, u, "filter")
}

func TestApplyQueryParamsNoopOnEmpty(t *testing.T) {
	u, err := applyQueryParams("https://api.example.com/search", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/search", u)
}

func TestMergeHeadersPerRequestWins(t *testing.T) {
	defaults := http.Header{"Content-Type": []string{"application/json"}, "X-Default": []string{"1"}}
	perRequest := http.Header{"Content-Type": []string{"text/plain"}}

	merged := mergeHeaders(defaults, perRequest)
	assert.Equal(t, "text/plain", merged.Get("Content-Type"))
	assert.Equal(t, "1", merged.Get("X-Default"))

	// Neither input was mutated.
	assert.Equal(t, "application/json", defaults.Get("Content-Type"))
}
