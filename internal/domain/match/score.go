package match

import (
	"maps"
	"unicode/utf8"
)

// DefaultMultiplier weights keyword types missing from the multiplier table.
const DefaultMultiplier = 1.0

// DefaultMultipliers reflects how distinctive each keyword type is: a full
// name or email identifies an asset, a country barely narrows it down.
var DefaultMultipliers = map[string]float64{
	"name.common":          1.0,
	"name.first":           0.55,
	"name.last":            0.75,
	"name.middle":          0.56,
	"organization.title":   0.65,
	"organization.name":    0.75,
	"organization.role":    0.65,
	"email":                1.0,
	"email.work":           1.0,
	"location.premise":     0.75,
	"location.street_name": 0.66,
	"location.country":     0.51,
	"location.postal_town": 0.55,
	"location.postal_code": 0.60,
	"location.lat":         1.0,
	"location.lng":         1.0,
	"netloc.as_number":     0.51,
	"social_media.owler":   0.55,
}

// certain is the score above which a single candidate settles the fusion.
const certain = 0.999

// Scorer assigns per-candidate confidence.
type Scorer struct {
	multipliers map[string]float64
	fallback    float64
}

// NewScorer returns a Scorer using multipliers, or DefaultMultipliers when
// multipliers is nil. fallback applies to unknown keyword types; a
// non-positive fallback means DefaultMultiplier.
func NewScorer(multipliers map[string]float64, fallback float64) *Scorer {
	if multipliers == nil {
		multipliers = DefaultMultipliers
	}
	if fallback <= 0 {
		fallback = DefaultMultiplier
	}
	return &Scorer{multipliers: maps.Clone(multipliers), fallback: fallback}
}

// Multiplier returns the weight for a keyword type.
func (s *Scorer) Multiplier(keywordName string) float64 {
	if m, ok := s.multipliers[keywordName]; ok {
		return m
	}
	return s.fallback
}

// Score is min(1, 0.2 * characters) times the keyword type's multiplier,
// clamped to [0, 1].
func (s *Scorer) Score(c Candidate) float64 {
	lenScore := min(1.0, 0.2*float64(utf8.RuneCountInString(c.MatchedText)))
	return clamp01(lenScore * s.Multiplier(c.KeywordName))
}

// Fuse combines candidate scores by sequential Bayesian update from an even
// prior. Only the first candidate of each keyword type contributes, so
// repeating one signal does not compound. A candidate scoring above 0.999 is
// taken as certain and returned as is. An empty set fuses to 0.
func Fuse(cands []Candidate) float64 {
	if len(cands) == 0 {
		return 0
	}
	pMatch, pNoMatch := 0.5, 0.5
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.KeywordName]; ok {
			continue
		}
		seen[c.KeywordName] = struct{}{}
		if c.Score > certain {
			return clamp01(c.Score)
		}
		evidence := c.Score * pMatch
		denom := evidence + (1-c.Score)*pNoMatch
		if denom == 0 {
			continue
		}
		pMatch = evidence / denom
		pNoMatch = 1 - pMatch
	}
	return clamp01(pMatch)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
