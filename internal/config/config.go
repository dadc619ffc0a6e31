// Package config provides configuration loading and structs for the matcher daemon.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	DataDir string        `yaml:"data_dir"`
	Matcher MatcherConfig `yaml:"matcher"`
	Index   IndexConfig   `yaml:"index"`
	Assets  AssetsConfig  `yaml:"assets"`
	Events  EventsConfig  `yaml:"events"`
	Server  ServerConfig  `yaml:"server"`
	Inbox   InboxConfig   `yaml:"inbox"`
}

// MatcherConfig tunes scoring and clustering.
type MatcherConfig struct {
	ContextRadius        int                `yaml:"context_radius"`
	DefaultRequiredScore float64            `yaml:"default_required_score"`
	ThreatActorCacheSize int                `yaml:"threat_actor_cache_size"`
	Multipliers          map[string]float64 `yaml:"multipliers"`
	DefaultMultiplier    float64            `yaml:"default_multiplier"`
	SocialMediaSites     []string           `yaml:"social_media_sites"`
}

// IndexConfig controls index freshness and snapshot storage.
type IndexConfig struct {
	MaxAge          time.Duration  `yaml:"max_age"`
	RebuildSchedule string         `yaml:"rebuild_schedule"`
	Snapshot        SnapshotConfig `yaml:"snapshot"`
}

// SnapshotConfig selects where serialized indexes live.
type SnapshotConfig struct {
	Backend        string `yaml:"backend"` // bbolt, s3, none
	Path           string `yaml:"path"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	Region         string `yaml:"region"`
	AssetKey       string `yaml:"asset_key"`
	ThreatActorKey string `yaml:"threat_actor_key"`
}

// AssetsConfig selects the asset catalog.
type AssetsConfig struct {
	Backend         string `yaml:"backend"` // sqlite, mongo
	SQLitePath      string `yaml:"sqlite_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// EventsConfig selects where match events go.
type EventsConfig struct {
	Backend         string `yaml:"backend"` // sqlite, mongo, none
	MongoCollection string `yaml:"mongo_collection"`
	AMQPURL         string `yaml:"amqp_url"`
	AMQPQueue       string `yaml:"amqp_queue"`
}

// ServerConfig holds HTTP server settings. Port 0 disables the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// InboxConfig holds the document inbox settings. An empty directory disables it.
type InboxConfig struct {
	Directory string `yaml:"directory"`
	Workers   int    `yaml:"workers"`
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.DataDir = expandPath(cfg.DataDir, ".")
	resolvePaths(&cfg, ".")
	return &cfg
}

// Load reads and parses the config file at path, overlays the environment,
// expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.DataDir = expandPath(cfg.DataDir, configDir)
	resolvePaths(&cfg, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults plus
// environment otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if err := LoadEnv(".env"); err != nil {
		return nil, err
	}
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.DataDir = expandPath(cfg.DataDir, ".")
	resolvePaths(&cfg, ".")
	return &cfg, cfg.Validate()
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error; variables already set are not overwritten.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Environment variables that override the config file. They carry secrets
// that should not live in YAML.
const (
	EnvMongoURI = "MATCHER_MONGO_URI"
	EnvAMQPURL  = "MATCHER_AMQP_URL"
	EnvS3Bucket = "MATCHER_S3_BUCKET"
	EnvDebug    = "MATCHER_DEBUG"
)

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvMongoURI); v != "" {
		cfg.Assets.MongoURI = v
	}
	if v := os.Getenv(EnvAMQPURL); v != "" {
		cfg.Events.AMQPURL = v
	}
	if v := os.Getenv(EnvS3Bucket); v != "" {
		cfg.Index.Snapshot.Bucket = v
	}
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "1", "true", "yes":
		cfg.Debug = true
	}
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Index.Snapshot.Backend {
	case "bbolt", "none":
	case "s3":
		if c.Index.Snapshot.Bucket == "" {
			return errors.New("index.snapshot.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown index.snapshot.backend %q", c.Index.Snapshot.Backend)
	}
	switch c.Assets.Backend {
	case "sqlite":
	case "mongo":
		if c.Assets.MongoURI == "" {
			return errors.New("assets.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown assets.backend %q", c.Assets.Backend)
	}
	switch c.Events.Backend {
	case "sqlite", "none":
	case "mongo":
		if c.Assets.MongoURI == "" {
			return errors.New("assets.mongo_uri is required for the mongo event backend")
		}
	default:
		return fmt.Errorf("unknown events.backend %q", c.Events.Backend)
	}
	if c.Events.AMQPURL != "" && c.Events.AMQPQueue == "" {
		return errors.New("events.amqp_queue is required when amqp_url is set")
	}
	if c.Matcher.DefaultRequiredScore < 0 || c.Matcher.DefaultRequiredScore > 1 {
		return fmt.Errorf("matcher.default_required_score %v outside [0, 1]", c.Matcher.DefaultRequiredScore)
	}
	if c.Index.MaxAge <= 0 {
		return errors.New("index.max_age must be positive")
	}
	return nil
}

func resolvePaths(cfg *Config, configDir string) {
	if cfg.Index.Snapshot.Path == "" {
		cfg.Index.Snapshot.Path = filepath.Join(cfg.DataDir, "snapshots.db")
	} else {
		cfg.Index.Snapshot.Path = expandPath(cfg.Index.Snapshot.Path, configDir)
	}
	if cfg.Assets.SQLitePath == "" {
		cfg.Assets.SQLitePath = filepath.Join(cfg.DataDir, "matcher.db")
	} else {
		cfg.Assets.SQLitePath = expandPath(cfg.Assets.SQLitePath, configDir)
	}
	if cfg.Inbox.Directory != "" {
		cfg.Inbox.Directory = expandPath(cfg.Inbox.Directory, configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		path = strings.TrimPrefix(path, "~/")
	} else if strings.HasPrefix(path, "./") || path == "." {
		abs, err := filepath.Abs(filepath.Join(configDir, path))
		if err != nil {
			return filepath.Join(configDir, path)
		}
		return abs
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
