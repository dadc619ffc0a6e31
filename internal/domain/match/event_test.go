package match

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", ContentHash(""))
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
}

func TestEventHash(t *testing.T) {
	h := EventHash("C1", "A1", "https://x.example.org", "ff")
	assert.Len(t, h, 64)
	assert.Equal(t, h, EventHash("C1", "A1", "https://x.example.org", "ff"))
	assert.NotEqual(t, h, EventHash("C1", "A2", "https://x.example.org", "ff"))
	assert.NotEqual(t, h, EventHash("C1", "A1", "https://x.example.org", "fe"))
	// Separators keep field boundaries distinct.
	assert.NotEqual(t, EventHash("C1", "A1x", "", ""), EventHash("C1", "A1", "x", ""))
}

func TestSiteOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://Forum.Example.org:8443/t/1", "forum.example.org"},
		{"  http://abcdefg.onion/page  ", "abcdefg.onion"},
		{"not a url", ""},
		{"", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SiteOf(tt.url), tt.url)
	}
}

func TestClassify(t *testing.T) {
	social := map[string]struct{}{"twitter.com": {}, "reddit.com": {}}

	assert.Equal(t, NetworkDark, classify("market.onion", social))
	assert.Equal(t, NetworkSocial, classify("twitter.com", social))
	assert.Equal(t, NetworkSocial, classify("www.reddit.com", social))
	assert.Equal(t, NetworkClear, classify("news.example.org", social))
	assert.Equal(t, NetworkClear, classify("", social))
}

func TestMatchEvent_Stored(t *testing.T) {
	ev := MatchEvent{
		ID:          "ev-1",
		Hash:        "h1",
		CaseID:      "C1",
		AssetID:     "A1",
		URL:         "https://x.example.org",
		ContentHash: "c1",
		Probability: 0.97,
		Cuts:        []Snippet{{Text: "window", Matches: []Candidate{{KeywordName: "email"}}}},
	}

	stored, err := ev.Stored()
	require.NoError(t, err)
	assert.Equal(t, "h1", stored.Hash)
	assert.Equal(t, "c1", stored.ContentHash)
	assert.Equal(t, "A1", stored.AssetID)
	assert.Equal(t, "C1", stored.CaseID)

	var body map[string]any
	require.NoError(t, json.Unmarshal(stored.Body, &body))
	assert.Equal(t, "ev-1", body["id"])
	assert.Equal(t, 0.97, body["probability"])
	assert.Contains(t, body, "threat_actor_matches")
}

func TestMatchEvent_ThreatActorIDs(t *testing.T) {
	ev := MatchEvent{ThreatActorMatches: []Snippet{
		{Matches: []Candidate{{AssetID: "T2"}, {AssetID: "T1"}}},
		{Matches: []Candidate{{AssetID: "T2"}, {AssetID: "T3"}}},
	}}
	assert.Equal(t, []string{"T2", "T1", "T3"}, ev.ThreatActorIDs())
	assert.Empty(t, (&MatchEvent{}).ThreatActorIDs())
}
