package keyword

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/fyeo/eventmatcher/internal/ports"
)

var (
	// ErrEmptyKeyword is returned for records whose keyword text is empty.
	ErrEmptyKeyword = errors.New("empty keyword text")
	// ErrInvalidKeyword is returned for keyword text that is not valid UTF-8.
	ErrInvalidKeyword = errors.New("keyword text is not valid utf-8")
)

// Record is a KeywordRecord with its boundary category resolved.
type Record struct {
	ports.KeywordRecord
	Category Category
}

// NewRecord validates r and resolves its category.
func NewRecord(r ports.KeywordRecord) (Record, error) {
	if r.KeywordText == "" {
		return Record{}, fmt.Errorf("asset %s %s: %w", r.AssetID, r.KeywordName, ErrEmptyKeyword)
	}
	if !utf8.ValidString(r.KeywordText) {
		return Record{}, fmt.Errorf("asset %s %s: %w", r.AssetID, r.KeywordName, ErrInvalidKeyword)
	}
	if r.RequiredScore < 0 || math.IsNaN(r.RequiredScore) {
		r.RequiredScore = ports.DefaultRequiredScore
	}
	return Record{KeywordRecord: r, Category: CategoryOf(r.KeywordName)}, nil
}
