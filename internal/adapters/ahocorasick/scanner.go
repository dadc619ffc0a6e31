// Package ahocorasick provides multi-pattern string matching using an Aho-Corasick automaton.
// It wraps the petar-dambovaliev/aho-corasick library for O(n + m + z) matching.
package ahocorasick

import (
	aho "github.com/petar-dambovaliev/aho-corasick"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// Scanner implements ports.PatternScanner. It reports every occurrence of every
// pattern, overlapping ones included, with byte offsets into the scanned text.
// ASCII letters compare case-insensitively so offsets never shift.
type Scanner struct {
	automaton aho.AhoCorasick
	patterns  []string
}

// NewScanner builds a scanner from the given patterns.
func NewScanner(patterns []string) *Scanner {
	builder := aho.NewAhoCorasickBuilder(aho.Opts{
		AsciiCaseInsensitive: true,
		DFA:                  true,
	})
	p := make([]string, len(patterns))
	copy(p, patterns)
	return &Scanner{
		automaton: builder.Build(p),
		patterns:  p,
	}
}

// Factory adapts NewScanner to ports.ScannerFactory.
func Factory(patterns []string) ports.PatternScanner {
	return NewScanner(patterns)
}

// Scan reports all pattern occurrences in text in order of increasing end offset.
func (s *Scanner) Scan(text string, yield func(ports.ScanHit) bool) {
	if len(s.patterns) == 0 || text == "" {
		return
	}
	iter := s.automaton.IterOverlappingByte([]byte(text))
	for next := iter.Next(); next != nil; next = iter.Next() {
		m := *next
		if !yield(ports.ScanHit{
			Pattern: m.Pattern(),
			Start:   m.Start(),
			End:     m.End(),
		}) {
			return
		}
	}
}

// PatternCount returns the number of patterns in the automaton.
func (s *Scanner) PatternCount() int {
	return len(s.patterns)
}

// Pattern returns the pattern string at the given index.
func (s *Scanner) Pattern(idx int) string {
	if idx < 0 || idx >= len(s.patterns) {
		return ""
	}
	return s.patterns[idx]
}
