package socket

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyeo/eventmatcher/internal/domain/match"
	"github.com/fyeo/eventmatcher/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Unix socket daemon: newline-delimited JSON for health, match, reindex, shutdown
// =============================================================================

const defaultTestTimeout = 5 * time.Second

type fakeQueries struct {
	matches  atomic.Int32
	reindex  atomic.Int32
	matchErr error
	lastDoc  atomic.Pointer[MatchParams]
}

func (f *fakeQueries) Health() HealthResult {
	return HealthResult{Status: "ok", Ready: true, AssetKeywords: 12, ThreatActorKeywords: 3, Uptime: "1s"}
}

func (f *fakeQueries) Match(_ context.Context, p MatchParams) (MatchResult, error) {
	f.matches.Add(1)
	f.lastDoc.Store(&p)
	if f.matchErr != nil {
		return MatchResult{}, f.matchErr
	}
	events := []match.MatchEvent{{
		ID:            "ev-1",
		AssetID:       "A1",
		CaseID:        "C1",
		URL:           p.Document.URL,
		SourceNetwork: match.NetworkClear,
		Probability:   1,
	}}
	written := len(events)
	if p.DryRun {
		written = 0
	}
	return MatchResult{Events: events, Count: len(events), Written: written, Elapsed: "1ms"}, nil
}

func (f *fakeQueries) Reindex(context.Context) (ReindexResult, error) {
	f.reindex.Add(1)
	return ReindexResult{Assets: 2, AssetKeywords: 7, ThreatActors: 1, ThreatActorKeywords: 2}, nil
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.sock")
}

func startServer(t *testing.T, q AppQueries) (*Server, string) {
	t.Helper()
	sockPath := testSocketPath(t)
	srv := NewServer(q, sockPath, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv, sockPath
}

func TestSocketPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/var/run/matcher", "matcher.sock"), SocketPath("/var/run/matcher"))
}

func TestServer_Health(t *testing.T) {
	_, sockPath := startServer(t, &fakeQueries{})

	health, err := NewClient(sockPath).Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Ready)
	assert.Equal(t, 12, health.AssetKeywords)
	assert.Equal(t, 3, health.ThreatActorKeywords)
}

func TestServer_MatchRoundtrip(t *testing.T) {
	q := &fakeQueries{}
	_, sockPath := startServer(t, q)

	doc := ports.Document{
		URL:      "https://example.com/leak",
		Text:     "thomas olofsson",
		Metadata: ports.DocumentMetadata{Title: "leak", ContentType: "text/html"},
	}
	result, err := NewClient(sockPath).Match(doc, true)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, "A1", result.Events[0].AssetID)
	assert.Equal(t, "https://example.com/leak", result.Events[0].URL)
	assert.Equal(t, match.NetworkClear, result.Events[0].SourceNetwork)

	got := q.lastDoc.Load()
	require.NotNil(t, got)
	assert.Equal(t, doc, got.Document)
	assert.True(t, got.DryRun)
}

func TestServer_MatchError(t *testing.T) {
	_, sockPath := startServer(t, &fakeQueries{matchErr: errors.New("asset index not loaded")})

	_, err := NewClient(sockPath).Match(ports.Document{Text: "x"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Contains(t, err.Error(), "asset index not loaded")
}

func TestServer_Reindex(t *testing.T) {
	q := &fakeQueries{}
	_, sockPath := startServer(t, q)

	result, err := NewClient(sockPath).Reindex()
	require.NoError(t, err)
	assert.Equal(t, 7, result.AssetKeywords)
	assert.Equal(t, int32(1), q.reindex.Load())
}

func TestServer_UnknownMethod(t *testing.T) {
	_, sockPath := startServer(t, &fakeQueries{})

	err := NewClient(sockPath).call("wipe", nil, nil, defaultTestTimeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method: wipe")
}

func TestServer_MissingMatchParams(t *testing.T) {
	q := &fakeQueries{}
	_, sockPath := startServer(t, q)

	err := NewClient(sockPath).call(MethodMatch, nil, nil, defaultTestTimeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing match params")
	assert.Equal(t, int32(0), q.matches.Load())
}

func TestServer_Shutdown(t *testing.T) {
	sockPath := testSocketPath(t)
	srv := NewServer(&fakeQueries{}, sockPath, nil)
	require.NoError(t, srv.Start())

	client := NewClient(sockPath)
	assert.True(t, client.Ping())

	require.NoError(t, client.Shutdown())

	select {
	case <-srv.ShutdownCh():
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownCh should be closed after Shutdown request")
	}

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())

	_, err := os.Stat(sockPath)
	assert.True(t, os.IsNotExist(err), "socket file should be removed after shutdown")
	assert.False(t, client.Ping())
}

func TestServer_ConcurrentClients(t *testing.T) {
	q := &fakeQueries{}
	_, sockPath := startServer(t, q)

	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := NewClient(sockPath)
			for j := 0; j < 10; j++ {
				result, err := client.Match(ports.Document{URL: "https://a.b", Text: "x"}, false)
				if err != nil {
					errs <- err
					return
				}
				if result.Count != 1 {
					errs <- assert.AnError
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent client error: %v", err)
	}
	assert.Equal(t, int32(100), q.matches.Load())
}

func TestServer_StaleSocket(t *testing.T) {
	sockPath := testSocketPath(t)
	require.NoError(t, os.WriteFile(sockPath, []byte("stale"), 0600))

	srv := NewServer(&fakeQueries{}, sockPath, nil)
	require.NoError(t, srv.Start(), "should replace stale socket")
	defer srv.Stop()

	health, err := NewClient(sockPath).Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}

func TestServer_AlreadyRunning(t *testing.T) {
	_, sockPath := startServer(t, &fakeQueries{})

	second := NewServer(&fakeQueries{}, sockPath, nil)
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}
