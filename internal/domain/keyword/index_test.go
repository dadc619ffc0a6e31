package keyword_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyeo/eventmatcher/internal/adapters/ahocorasick"
	"github.com/fyeo/eventmatcher/internal/domain/keyword"
	"github.com/fyeo/eventmatcher/internal/ports"
)

// =============================================================================
// Index build
// =============================================================================

func rec(asset, name, text string) ports.KeywordRecord {
	return ports.KeywordRecord{AssetID: asset, CaseID: "C" + asset[1:], RequiredScore: 0.5, KeywordName: name, KeywordText: text}
}

func TestBuild_DuplicateTextAppends(t *testing.T) {
	idx := keyword.Build([]ports.KeywordRecord{
		rec("A2", "organization.name", "acme"),
		rec("A3", "url", "acme"),
	}, ahocorasick.Factory, nil)

	assert.Equal(t, 1, idx.KeywordCount())
	assert.Equal(t, 2, idx.RecordCount())

	var got [][]keyword.Record
	for _, recs := range idx.LookupAll("hi acme") {
		got = append(got, recs)
	}
	require.Len(t, got, 1)
	require.Len(t, got[0], 2)
	assert.Equal(t, "A2", got[0][0].AssetID)
	assert.Equal(t, "A3", got[0][1].AssetID)
	assert.Equal(t, keyword.CategoryURLLike, got[0][1].Category)
}

func TestBuild_SkipsMalformedAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	idx := keyword.Build([]ports.KeywordRecord{
		rec("A1", "email", ""),
		rec("A1", "name.common", "thomas olofsson"),
		rec("A1", "alias", "\xff"),
	}, ahocorasick.Factory, zap.New(core))

	assert.Equal(t, 1, idx.KeywordCount())
	assert.Equal(t, 2, idx.Skipped())
	assert.Equal(t, 2, logs.FilterMessage("skipping malformed keyword").Len())
}

func TestBuild_LogsCompiledPatterns(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	keyword.Build([]ports.KeywordRecord{
		rec("A1", "alias", "acme"),
		rec("A2", "alias", "acme"),
		rec("A2", "email", "a@b.c"),
	}, ahocorasick.Factory, zap.New(core))

	entries := logs.FilterMessage("keyword index compiled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 3, fields["records"])
	assert.EqualValues(t, 2, fields["patterns"])
}

func TestBuild_Empty(t *testing.T) {
	idx := keyword.Build(nil, ahocorasick.Factory, nil)
	assert.Equal(t, 0, idx.KeywordCount())
	for range idx.LookupAll("anything") {
		t.Fatal("empty index must not yield")
	}
}

// =============================================================================
// LookupAll
// =============================================================================

func TestLookupAll_EndAnchored(t *testing.T) {
	idx := keyword.Build([]ports.KeywordRecord{rec("A1", "email", "a@b.c")}, ahocorasick.Factory, nil)
	text := "x a@b.c y"
	var ends []int
	for end := range idx.LookupAll(text) {
		ends = append(ends, end)
	}
	require.Equal(t, []int{6}, ends)
	assert.Equal(t, byte('c'), text[ends[0]])
}

func TestLookupAll_EmptyTextAndNilIndex(t *testing.T) {
	idx := keyword.Build([]ports.KeywordRecord{rec("A1", "email", "a@b.c")}, ahocorasick.Factory, nil)
	for range idx.LookupAll("") {
		t.Fatal("empty text must not yield")
	}
	var nilIdx *keyword.Index
	for range nilIdx.LookupAll("a@b.c") {
		t.Fatal("nil index must not yield")
	}
	assert.Equal(t, 0, nilIdx.RecordCount())
}

func TestSnapshot_RoundTripsRecords(t *testing.T) {
	in := []ports.KeywordRecord{rec("A1", "email", "a@b.c"), rec("A2", "alias", "acme")}
	idx := keyword.Build(in, ahocorasick.Factory, nil)
	snap := idx.Snapshot()
	assert.Equal(t, ports.SnapshotVersion, snap.Version)
	assert.Equal(t, in, snap.Records)

	rebuilt := keyword.Build(snap.Records, ahocorasick.Factory, nil)
	assert.Equal(t, idx.KeywordCount(), rebuilt.KeywordCount())
}

func TestRestore_KeepsSnapshotBuiltAt(t *testing.T) {
	builtAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	snap := &ports.IndexSnapshot{
		Version: ports.SnapshotVersion,
		BuiltAt: builtAt,
		Records: []ports.KeywordRecord{rec("A1", "email", "a@b.c")},
	}
	idx := keyword.Restore(snap, ahocorasick.Factory, nil)
	assert.Equal(t, builtAt, idx.BuiltAt())
	assert.Equal(t, 1, idx.KeywordCount())

	snap.BuiltAt = time.Time{}
	assert.False(t, keyword.Restore(snap, ahocorasick.Factory, nil).BuiltAt().IsZero())
}
