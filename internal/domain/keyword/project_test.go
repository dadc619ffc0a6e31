package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// =============================================================================
// Asset projection
// =============================================================================

func TestPairs_PersonAsset(t *testing.T) {
	a := &ports.Asset{
		ID:     "A1",
		CaseID: "C1",
		Name:   map[string]string{"common": "Thomas Olofsson", "last": "Olofsson", "first": "  "},
		Emails: []ports.LabeledValue{
			{Value: "thomas@example.com"},
			{Label: "Work", Value: "T.Olofsson@Corp.example"},
		},
		SocialMedia: []ports.LabeledValue{{Label: "owler", Value: "tolofsson"}, {Value: "@thomas"}},
		Location:    map[string]string{"country": "Sweden"},
	}

	assert.Equal(t, []Pair{
		{Name: "name.common", Text: "thomas olofsson"},
		{Name: "name.last", Text: "olofsson"},
		{Name: "email", Text: "thomas@example.com"},
		{Name: "email.work", Text: "t.olofsson@corp.example"},
		{Name: "social_media.owler", Text: "tolofsson"},
		{Name: "social_media.other", Text: "@thomas"},
		{Name: "location.country", Text: "sweden"},
	}, Pairs(a))
}

func TestPairs_ThreatActorAliases(t *testing.T) {
	a := &ports.Asset{ID: "A3", IsThreatActor: true, Aliases: []string{"ACME", "", "acme gang"}}
	assert.Equal(t, []Pair{
		{Name: "alias", Text: "acme"},
		{Name: "alias", Text: "acme gang"},
	}, Pairs(a))
}

func TestProject_CarriesAssetFields(t *testing.T) {
	score := 0.7
	a := &ports.Asset{
		ID: "A2", CaseID: "C2", RequiredScore: &score,
		Organization: map[string]string{"name": "Acme"},
		URLs:         []ports.LabeledValue{{Value: "acme.example"}},
	}
	recs := Project(a)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "A2", r.AssetID)
		assert.Equal(t, "C2", r.CaseID)
		assert.Equal(t, 0.7, r.RequiredScore)
	}
	assert.Equal(t, "url", recs[0].KeywordName)
	assert.Equal(t, "organization.name", recs[1].KeywordName)
}

func TestProject_DefaultThreshold(t *testing.T) {
	recs := Project(&ports.Asset{ID: "A1", Aliases: []string{"x"}})
	require.Len(t, recs, 1)
	assert.Equal(t, ports.DefaultRequiredScore, recs[0].RequiredScore)
}

func TestProjectAll(t *testing.T) {
	recs := ProjectAll([]ports.Asset{
		{ID: "A1", Aliases: []string{"one"}},
		{ID: "A2", Aliases: []string{"two", "three"}},
	})
	require.Len(t, recs, 3)
	assert.Equal(t, "A1", recs[0].AssetID)
	assert.Equal(t, "A2", recs[2].AssetID)
}
