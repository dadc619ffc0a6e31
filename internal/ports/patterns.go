package ports

// PatternScanner finds every occurrence of a fixed pattern set in a text using
// multi-pattern matching (Aho-Corasick). A single pass over the text reports all
// occurrences of all patterns, overlapping ones included. This is O(n + m + z)
// where n=text length, m=total pattern length, z=number of occurrences.
//
// A scanner is immutable once built. Rebuilding means constructing a new scanner
// and swapping the reference; scanners are safe for concurrent Scan calls.
type PatternScanner interface {
	// Scan calls yield for every occurrence in text, in order of increasing end
	// offset. Returning false from yield stops the scan early.
	Scan(text string, yield func(ScanHit) bool)

	// PatternCount returns the number of patterns compiled into the scanner.
	PatternCount() int
}

// ScanHit is one occurrence reported by a PatternScanner. Offsets are byte
// offsets into the scanned text.
type ScanHit struct {
	Pattern int // index into the pattern slice the scanner was built from
	Start   int // inclusive
	End     int // exclusive
}

// ScannerFactory compiles a pattern set into a PatternScanner. Patterns are
// already deduplicated and non-empty when the factory is called.
type ScannerFactory func(patterns []string) PatternScanner
