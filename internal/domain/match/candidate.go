// Package match turns document text into scored, evidence-bearing match events.
//
// The pipeline per document is Find (index hits that pass boundary checks),
// Score and Fuse (per-asset Bayesian evidence fusion), Cluster (context
// windows with one candidate per keyword type) and finally the Builder,
// which applies the document-level and snippet-level thresholds and attaches
// threat-actor evidence.
package match

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/fyeo/eventmatcher/internal/domain/keyword"
)

// Source identifies which buffer a candidate was found in.
type Source uint8

const (
	// SourceText is the extracted document text.
	SourceText Source = iota
	// SourceURL is the document URL. Only the threat-actor pass scans it.
	SourceURL
)

func (s Source) String() string {
	if s == SourceURL {
		return "url"
	}
	return "text"
}

// MarshalJSON encodes the source by name.
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (s *Source) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "text", "":
		*s = SourceText
	case "url":
		*s = SourceURL
	default:
		return fmt.Errorf("unknown match source %q", name)
	}
	return nil
}

// Candidate is one validated keyword occurrence. Start and End are inclusive
// byte offsets: into the scanned buffer while clustering, and into the
// snippet's text window once the snippet is emitted.
type Candidate struct {
	AssetID       string  `json:"asset_id"`
	CaseID        string  `json:"case_id"`
	RequiredScore float64 `json:"required_score"`
	KeywordName   string  `json:"keyword_name"`
	MatchedText   string  `json:"matched_text"`
	Start         int     `json:"start_pos"`
	End           int     `json:"end_pos"`
	Score         float64 `json:"score"`
	Source        Source  `json:"source"`
}

// Find yields every occurrence of an indexed keyword in text that is delimited
// on both sides by a boundary byte of the keyword's category. A hit touching
// either end of text has nothing to inspect on that side and is rejected.
//
// Candidates are yielded unscored, tagged SourceText. A hit reported outside
// text indicates a broken index and panics.
func Find(text string, idx *keyword.Index) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for end, recs := range idx.LookupAll(text) {
			for _, r := range recs {
				start := end - len(r.KeywordText) + 1
				if start < 0 || end >= len(text) || start > end {
					panic(fmt.Sprintf("match: keyword %q reported at [%d,%d] outside text of length %d",
						r.KeywordText, start, end, len(text)))
				}
				if !bounded(text, start, end, r.Category) {
					continue
				}
				if !yield(Candidate{
					AssetID:       r.AssetID,
					CaseID:        r.CaseID,
					RequiredScore: r.RequiredScore,
					KeywordName:   r.KeywordName,
					MatchedText:   text[start : end+1],
					Start:         start,
					End:           end,
				}) {
					return
				}
			}
		}
	}
}

func bounded(text string, start, end int, c keyword.Category) bool {
	if start == 0 || end == len(text)-1 {
		return false
	}
	return c.IsBoundary(text[start-1]) && c.IsBoundary(text[end+1])
}
