package match

import (
	"cmp"
	"fmt"
	"slices"
	"unicode/utf8"
)

// DefaultRadius is how many bytes of context surround each candidate.
const DefaultRadius = 150

// Snippet is a contiguous excerpt of the scanned buffer carrying one or more
// candidates for one asset. Start and End bound the window in the buffer
// (End exclusive); candidate positions are relative to Text.
type Snippet struct {
	Start   int         `json:"start_pos"`
	End     int         `json:"end_pos"`
	Text    string      `json:"text"`
	Matches []Candidate `json:"matches"`
	Radius  int         `json:"context_radius"`
	Source  Source      `json:"source"`
}

// Score fuses the snippet's own candidates.
func (s *Snippet) Score() float64 {
	return Fuse(s.Matches)
}

// Clusterer groups candidates into context windows.
type Clusterer struct {
	radius int
}

// NewClusterer returns a Clusterer with the given context radius. A
// non-positive radius means DefaultRadius.
func NewClusterer(radius int) *Clusterer {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Clusterer{radius: radius}
}

// Cluster groups one asset's candidates found in text into snippets.
//
// Candidates are visited in start order. Only the first candidate of each
// keyword type is kept. A kept candidate starting no later than radius bytes
// past the current window's end extends that window; otherwise it opens a new
// snippet. Windows are clamped to text and widened to whole UTF-8 sequences.
func (c *Clusterer) Cluster(cands []Candidate, text string) []Snippet {
	return c.cluster(cands, text, make(map[string]struct{}))
}

// cluster is Cluster with a caller-owned seen set, so several buffers can be
// clustered for the same asset without repeating a keyword type.
func (c *Clusterer) cluster(cands []Candidate, text string, seen map[string]struct{}) []Snippet {
	if len(cands) == 0 {
		return nil
	}
	sorted := slices.Clone(cands)
	slices.SortStableFunc(sorted, func(a, b Candidate) int { return cmp.Compare(a.Start, b.Start) })

	var (
		out []Snippet
		cur *Snippet
	)
	for _, cand := range sorted {
		if cand.Start < 0 || cand.End >= len(text) || cand.Start > cand.End {
			panic(fmt.Sprintf("match: candidate %q at [%d,%d] outside buffer of length %d",
				cand.MatchedText, cand.Start, cand.End, len(text)))
		}
		if _, dup := seen[cand.KeywordName]; dup {
			continue
		}
		seen[cand.KeywordName] = struct{}{}

		if cur != nil && cand.Start <= cur.End+c.radius {
			c.extend(cur, cand, text)
			continue
		}
		if cur != nil {
			out = append(out, *cur)
		}
		cur = c.seed(cand, text)
	}
	if cur != nil {
		out = append(out, *cur)
	}

	for i := range out {
		rebase(&out[i])
	}
	return out
}

func (c *Clusterer) seed(cand Candidate, text string) *Snippet {
	s := &Snippet{Radius: c.radius, Source: cand.Source}
	s.Start, s.End = c.window(cand.Start, cand.End, text)
	s.Text = text[s.Start:s.End]
	s.Matches = []Candidate{cand}
	return s
}

func (c *Clusterer) extend(s *Snippet, cand Candidate, text string) {
	start, end := c.window(cand.Start, cand.End, text)
	s.Start = min(s.Start, start)
	s.End = max(s.End, end)
	s.Text = text[s.Start:s.End]
	s.Matches = append(s.Matches, cand)
}

// window returns the half-open context window around [start, end].
func (c *Clusterer) window(start, end int, text string) (int, int) {
	ws := max(0, start-c.radius)
	we := min(len(text), end+1+c.radius)
	for ws > 0 && !utf8.RuneStart(text[ws]) {
		ws--
	}
	for we < len(text) && !utf8.RuneStart(text[we]) {
		we++
	}
	return ws, we
}

// rebase makes candidate positions relative to the snippet's window.
func rebase(s *Snippet) {
	for i := range s.Matches {
		m := &s.Matches[i]
		m.Start -= s.Start
		m.End -= s.Start
		if m.Start < 0 || m.End >= len(s.Text) {
			panic(fmt.Sprintf("match: rebased candidate %q at [%d,%d] outside window of length %d",
				m.MatchedText, m.Start, m.End, len(s.Text)))
		}
	}
}
