package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// Load
// =============================================================================

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
data_dir: ./data
server:
  host: "127.0.0.1"
  port: 9000
matcher:
  context_radius: 80
  multipliers:
    email: 0.9
index:
  max_age: 2h
  snapshot:
    backend: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 80, cfg.Matcher.ContextRadius)
	assert.Equal(t, map[string]float64{"email": 0.9}, cfg.Matcher.Multipliers, "explicit table replaces defaults")
	assert.Equal(t, 2*time.Hour, cfg.Index.MaxAge)
	assert.Equal(t, "none", cfg.Index.Snapshot.Backend)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "data", "matcher.db"), cfg.Assets.SQLitePath)
	assert.Equal(t, filepath.Join(dir, "data", "snapshots.db"), cfg.Index.Snapshot.Path)
	assert.False(t, cfg.Debug)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "data_dir: ./d\n"))
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Matcher.ContextRadius)
	assert.Equal(t, 0.95, cfg.Matcher.DefaultRequiredScore)
	assert.Equal(t, 32, cfg.Matcher.ThreatActorCacheSize)
	assert.Equal(t, 1.0, cfg.Matcher.DefaultMultiplier)
	assert.Equal(t, 0.51, cfg.Matcher.Multipliers["location.country"])
	assert.Equal(t, 4*time.Hour, cfg.Index.MaxAge)
	assert.Equal(t, "@every 4h", cfg.Index.RebuildSchedule)
	assert.Equal(t, "bbolt", cfg.Index.Snapshot.Backend)
	assert.Equal(t, "asset_matcher", cfg.Index.Snapshot.AssetKey)
	assert.Equal(t, "threat_actor_matcher", cfg.Index.Snapshot.ThreatActorKey)
	assert.Equal(t, "sqlite", cfg.Assets.Backend)
	assert.Equal(t, "sqlite", cfg.Events.Backend)
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Inbox.Workers)
	assert.Contains(t, cfg.Matcher.SocialMediaSites, "twitter.com")
}

func TestLoad_DefaultsDoNotShareTable(t *testing.T) {
	cfg, err := Load(writeConfig(t, "data_dir: ./d\n"))
	require.NoError(t, err)
	cfg.Matcher.Multipliers["email"] = 0
	assert.Equal(t, 1.0, DefaultMultipliers["email"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoad_EnvOverlay(t *testing.T) {
	path := writeConfig(t, "data_dir: ./d\nassets:\n  backend: mongo\n")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"),
		[]byte("MATCHER_MONGO_URI=mongodb://db.internal:27017\n"), 0600))
	t.Setenv(EnvMongoURI, "")
	os.Unsetenv(EnvMongoURI)
	t.Setenv(EnvDebug, "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.internal:27017", cfg.Assets.MongoURI)
	assert.True(t, cfg.Debug)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown snapshot backend": "index:\n  snapshot:\n    backend: redis\n",
		"s3 without bucket":        "index:\n  snapshot:\n    backend: s3\n",
		"mongo without uri":        "assets:\n  backend: mongo\n",
		"unknown events backend":   "events:\n  backend: kafka\n",
		"amqp without queue":       "events:\n  amqp_url: amqp://localhost\n",
		"score out of range":       "matcher:\n  default_required_score: 1.5\n",
		"negative max age":         "index:\n  max_age: -1h\n",
	}
	t.Setenv(EnvMongoURI, "")
	t.Setenv(EnvS3Bucket, "")
	t.Setenv(EnvAMQPURL, "")
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "data_dir: ./d\n"+content))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Server.Port = 8181
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, loaded.Server.Port)
	assert.Equal(t, cfg.Index.MaxAge, loaded.Index.MaxAge)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "/abs/x", expandPath("/abs/x", "/cfg"))
	assert.Equal(t, "/cfg/x", expandPath("./x", "/cfg"))
	assert.Equal(t, filepath.Join(home, "x"), expandPath("~/x", "/cfg"))
	assert.Equal(t, filepath.Join(home, "x"), expandPath("x", "/cfg"))
	assert.Equal(t, "", expandPath("", "/cfg"))
}
