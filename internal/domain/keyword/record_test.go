package keyword

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyeo/eventmatcher/internal/ports"
)

func TestNewRecord(t *testing.T) {
	r, err := NewRecord(ports.KeywordRecord{
		AssetID: "A1", CaseID: "C1", RequiredScore: 0.5,
		KeywordName: "url.homepage", KeywordText: "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, CategoryURLLike, r.Category)
	assert.Equal(t, 0.5, r.RequiredScore)
}

func TestNewRecord_Rejects(t *testing.T) {
	_, err := NewRecord(ports.KeywordRecord{AssetID: "A1", KeywordName: "email"})
	assert.ErrorIs(t, err, ErrEmptyKeyword)

	_, err = NewRecord(ports.KeywordRecord{AssetID: "A1", KeywordName: "email", KeywordText: "\xff\xfe"})
	assert.ErrorIs(t, err, ErrInvalidKeyword)
}

func TestNewRecord_BadScoreFallsBackToDefault(t *testing.T) {
	for _, s := range []float64{-1, math.NaN()} {
		r, err := NewRecord(ports.KeywordRecord{KeywordName: "email", KeywordText: "a@b.c", RequiredScore: s})
		require.NoError(t, err)
		assert.Equal(t, ports.DefaultRequiredScore, r.RequiredScore)
	}
}
