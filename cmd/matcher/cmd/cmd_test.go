package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/fyeo/eventmatcher/internal/domain/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Exit codes
// =============================================================================

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(matchExit{1}))
	assert.Equal(t, 2, ExitCode(matchExit{2}))
	assert.Equal(t, -1, ExitCode(errors.New("other")))
	assert.Equal(t, "no match", matchExit{1}.Error())
}

// =============================================================================
// Document input
// =============================================================================

func resetMatchFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { matchURL, matchTitle = "", "" })
	matchURL, matchTitle = "", ""
}

func TestReadDocument_JSON(t *testing.T) {
	resetMatchFlags(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`
		{"url": "http://abc.onion/x", "text": "some text", "metadata": {"title": "T"}}`), 0644))

	doc, err := readDocument(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://abc.onion/x", doc.URL)
	assert.Equal(t, "some text", doc.Text)
	assert.Equal(t, "T", doc.Metadata.Title)
}

func TestReadDocument_PlainTextFromStdin(t *testing.T) {
	resetMatchFlags(t)
	matchURL = "https://paste.example.org/abc"
	matchTitle = "paste"

	doc, err := readDocument("-", strings.NewReader("leaked credentials for acme"))
	require.NoError(t, err)
	assert.Equal(t, "https://paste.example.org/abc", doc.URL)
	assert.Equal(t, "leaked credentials for acme", doc.Text)
	assert.Equal(t, "paste", doc.Metadata.Title)
	assert.Equal(t, "text/plain", doc.Metadata.ContentType)
}

func TestReadDocument_Errors(t *testing.T) {
	resetMatchFlags(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"text": `), 0644))
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"url": "https://x.example.org"}`), 0644))

	_, err := readDocument(bad, nil)
	assert.Error(t, err)
	_, err = readDocument(empty, nil)
	assert.ErrorContains(t, err, "no text")
	_, err = readDocument(filepath.Join(dir, "missing.json"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// Output
// =============================================================================

func TestFormatMatchResult(t *testing.T) {
	result := &socket.MatchResult{
		Count:   1,
		Written: 1,
		Elapsed: "2ms",
		Events: []match.MatchEvent{{
			AssetID:       "A1",
			CaseID:        "C1",
			Site:          "forum.example.org",
			SourceNetwork: match.NetworkClear,
			Probability:   0.9987,
			Cuts: []match.Snippet{{
				Start: 10, End: 60,
				Text:    "contact thomas olofsson\nat the office",
				Matches: []match.Candidate{{KeywordName: "name.common", MatchedText: "thomas olofsson"}},
			}},
			ThreatActorMatches: []match.Snippet{{
				Matches: []match.Candidate{{AssetID: "T1"}, {AssetID: "T1"}},
			}},
		}},
	}

	out := formatMatchResult(result, false)
	assert.Contains(t, out, "1 events")
	assert.Contains(t, out, "1 written")
	assert.Contains(t, out, "A1")
	assert.Contains(t, out, "0.999")
	assert.Contains(t, out, "forum.example.org")
	assert.Contains(t, out, "[text 10-60]")
	assert.Contains(t, out, "=thomas olofsson")
	assert.Contains(t, out, "contact thomas olofsson at the office")
	assert.Contains(t, out, "threat actors:"+colorReset+" T1\n")

	assert.Contains(t, formatMatchResult(result, true), "dry run")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine(" a\n b\t\tc ", 10))
	assert.Equal(t, "abcdefg...", oneLine("abcdefghijklmnop", 10))
}

func TestFormatHealth(t *testing.T) {
	out := formatHealth(&socket.HealthResult{
		Status: "ok", Ready: true, AssetKeywords: 12, ThreatActorKeywords: 3,
		SkippedKeywords: 2, IndexBuiltAt: "2024-05-01T12:00:00Z", Uptime: "1m0s",
	})
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "Asset keywords: 12")
	assert.Contains(t, out, "Threat actors:  3")
	assert.Contains(t, out, "2024-05-01T12:00:00Z")
	assert.Contains(t, out, "Skipped")

	out = formatHealth(&socket.HealthResult{Status: "loading"})
	assert.NotContains(t, out, "Skipped")
	assert.NotContains(t, out, "Index built")
}

func TestFormatReindex(t *testing.T) {
	out := formatReindex(&socket.ReindexResult{Assets: 4, AssetKeywords: 20, ThreatActors: 1, ThreatActorKeywords: 2, ElapsedMs: 15})
	assert.Contains(t, out, "15ms")
	assert.Contains(t, out, "4 (20 keywords)")
	assert.Contains(t, out, "1 (2 keywords)")
	assert.NotContains(t, out, "Skipped")
}

func TestFormatConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/srv/matcher"
	cfg.Assets.SQLitePath = "/srv/matcher/matcher.db"
	cfg.Index.Snapshot.Backend = "s3"
	cfg.Index.Snapshot.Bucket = "indexes"
	cfg.Index.Snapshot.Prefix = "prod/"
	cfg.Server.Port = 8080

	out := formatConfig(cfg, "/srv/matcher/run/matcher.sock", "running")
	assert.Contains(t, out, "/srv/matcher")
	assert.Contains(t, out, "sqlite (/srv/matcher/matcher.db)")
	assert.Contains(t, out, "s3 (s3://indexes/prod/)")
	assert.Contains(t, out, "http://localhost:8080")
	assert.Contains(t, out, "running")
	assert.NotContains(t, out, "Inbox")
}

func TestBackendTarget(t *testing.T) {
	assert.Equal(t, "bbolt (/x.db)", backendTarget("bbolt", "/x.db", "r"))
	assert.Equal(t, "mongo (db.c)", backendTarget("mongo", "/x.db", "db.c"))
	assert.Equal(t, "none", backendTarget("none", "/x.db", "r"))
}

// =============================================================================
// Commands
// =============================================================================

func TestRootCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"daemon", "match", "reindex", "health", "config"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestDiagnoseDBLock_NoDaemon(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "matcher.sock")
	assert.Contains(t, diagnoseDBLock(sock), "another process")

	require.NoError(t, os.WriteFile(sock, nil, 0600))
	msg := diagnoseDBLock(sock)
	assert.Contains(t, msg, "not responding")
	assert.Contains(t, msg, sock)
}

func TestIsDBLockError(t *testing.T) {
	assert.False(t, isDBLockError(nil))
	assert.True(t, isDBLockError(errors.New("open snapshot store: timeout")))
	assert.False(t, isDBLockError(errors.New("permission denied")))
}
