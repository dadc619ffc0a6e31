// Package keyword builds the multi-pattern keyword index that documents are
// scanned against. An Index maps every distinct keyword literal to all the
// records (asset + keyword type) that registered it, so two organizations
// sharing a domain keyword both see the hit.
//
// An Index is immutable once built and safe for concurrent lookups. Rebuilding
// produces a new Index; callers publish it by swapping a reference.
package keyword

import (
	"iter"
	"time"

	"github.com/fyeo/eventmatcher/internal/ports"
	"go.uber.org/zap"
)

// Index is the compiled keyword search structure.
type Index struct {
	scanner  ports.PatternScanner
	patterns []string   // scanner pattern index -> keyword text
	entries  [][]Record // scanner pattern index -> records sharing that text
	records  []ports.KeywordRecord
	skipped  int
	builtAt  time.Time
}

// Build compiles records into an Index. Duplicate keyword text appends to the
// existing record list instead of replacing it. Malformed records are logged
// and skipped; they never abort the build.
func Build(records []ports.KeywordRecord, newScanner ports.ScannerFactory, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}

	idx := &Index{builtAt: time.Now()}
	slot := make(map[string]int, len(records))

	for _, r := range records {
		rec, err := NewRecord(r)
		if err != nil {
			idx.skipped++
			logger.Warn("skipping malformed keyword",
				zap.String("asset_id", r.AssetID),
				zap.String("keyword_name", r.KeywordName),
				zap.Error(err))
			continue
		}
		i, ok := slot[rec.KeywordText]
		if !ok {
			i = len(idx.patterns)
			slot[rec.KeywordText] = i
			idx.patterns = append(idx.patterns, rec.KeywordText)
			idx.entries = append(idx.entries, nil)
		}
		idx.entries[i] = append(idx.entries[i], rec)
		idx.records = append(idx.records, rec.KeywordRecord)
	}

	if len(idx.patterns) > 0 {
		idx.scanner = newScanner(idx.patterns)
		logger.Debug("keyword index compiled",
			zap.Int("records", len(idx.records)),
			zap.Int("patterns", idx.scanner.PatternCount()),
			zap.Int("skipped", idx.skipped))
	}
	return idx
}

// Restore rebuilds the Index persisted in snap. BuiltAt carries over from the
// snapshot so a restored index reports when its records were compiled, not
// when they were loaded.
func Restore(snap *ports.IndexSnapshot, newScanner ports.ScannerFactory, logger *zap.Logger) *Index {
	idx := Build(snap.Records, newScanner, logger)
	if !snap.BuiltAt.IsZero() {
		idx.builtAt = snap.BuiltAt
	}
	return idx
}

// LookupAll yields (end, records) for every occurrence of every indexed keyword
// in text. end is the inclusive byte offset of the last matched byte.
func (idx *Index) LookupAll(text string) iter.Seq2[int, []Record] {
	return func(yield func(int, []Record) bool) {
		if idx == nil || idx.scanner == nil || text == "" {
			return
		}
		idx.scanner.Scan(text, func(h ports.ScanHit) bool {
			return yield(h.End-1, idx.entries[h.Pattern])
		})
	}
}

// Records returns the valid records the index was built from, in build order.
// Used to persist a snapshot.
func (idx *Index) Records() []ports.KeywordRecord {
	if idx == nil {
		return nil
	}
	return idx.records
}

// KeywordCount returns the number of distinct keyword literals.
func (idx *Index) KeywordCount() int {
	if idx == nil {
		return 0
	}
	return len(idx.patterns)
}

// RecordCount returns the number of records indexed.
func (idx *Index) RecordCount() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// Skipped returns how many malformed records were dropped during Build.
func (idx *Index) Skipped() int {
	if idx == nil {
		return 0
	}
	return idx.skipped
}

// BuiltAt returns when the index was compiled.
func (idx *Index) BuiltAt() time.Time {
	if idx == nil {
		return time.Time{}
	}
	return idx.builtAt
}

// Snapshot returns the serializable form of the index.
func (idx *Index) Snapshot() *ports.IndexSnapshot {
	return &ports.IndexSnapshot{
		Version: ports.SnapshotVersion,
		BuiltAt: idx.BuiltAt(),
		Records: idx.Records(),
	}
}
