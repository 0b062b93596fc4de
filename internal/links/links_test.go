package links

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	iss, err := NewIssuer("https://veto.example.com/", 6)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := iss.NewID()
		require.NoError(t, err)
		require.Len(t, id, 6)
		for _, r := range id {
			require.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q in %s", r, id)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestLinks(t *testing.T) {
	iss, err := NewIssuer("https://veto.example.com/app?lang=pt", 6)
	require.NoError(t, err)

	l := iss.Links("AB12CD")
	u, err := url.Parse(l.TeamB)
	require.NoError(t, err)
	assert.Equal(t, "/app", u.Path)
	assert.Equal(t, "AB12CD", u.Query().Get("session"))
	assert.Equal(t, "teamB", u.Query().Get("role"))
	assert.Equal(t, "pt", u.Query().Get("lang"))

	assert.Contains(t, l.TeamA, "role=teamA")
	assert.Contains(t, l.Spectator, "role=spectator")
	assert.Contains(t, l.Host, "role=host")
}

func TestNewIssuer_Rejects(t *testing.T) {
	_, err := NewIssuer("not a url", 6)
	assert.Error(t, err)
	_, err = NewIssuer("https://veto.example.com/", 0)
	assert.Error(t, err)
}
