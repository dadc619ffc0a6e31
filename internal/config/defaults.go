package config

import (
	"maps"
	"time"
)

// DefaultMultipliers weights each keyword type by how much it identifies an asset.
var DefaultMultipliers = map[string]float64{
	"name.common":          1.0,
	"name.first":           0.55,
	"name.last":            0.75,
	"name.middle":          0.56,
	"organization.title":   0.65,
	"organization.name":    0.75,
	"organization.role":    0.65,
	"email":                1.0,
	"email.work":           1.0,
	"location.premise":     0.75,
	"location.street_name": 0.66,
	"location.country":     0.51,
	"location.postal_town": 0.55,
	"location.postal_code": 0.60,
	"location.lat":         1.0,
	"location.lng":         1.0,
	"netloc.as_number":     0.51,
	"social_media.owler":   0.55,
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = ".eventmatcher"
	}
	if cfg.Matcher.ContextRadius == 0 {
		cfg.Matcher.ContextRadius = 150
	}
	if cfg.Matcher.DefaultRequiredScore == 0 {
		cfg.Matcher.DefaultRequiredScore = 0.95
	}
	if cfg.Matcher.ThreatActorCacheSize == 0 {
		cfg.Matcher.ThreatActorCacheSize = 32
	}
	if cfg.Matcher.Multipliers == nil {
		cfg.Matcher.Multipliers = maps.Clone(DefaultMultipliers)
	}
	if cfg.Matcher.DefaultMultiplier == 0 {
		cfg.Matcher.DefaultMultiplier = 1.0
	}
	if cfg.Matcher.SocialMediaSites == nil {
		cfg.Matcher.SocialMediaSites = []string{
			"twitter.com", "x.com", "facebook.com", "instagram.com",
			"linkedin.com", "reddit.com", "t.me", "vk.com",
		}
	}
	if cfg.Index.MaxAge == 0 {
		cfg.Index.MaxAge = 4 * time.Hour
	}
	if cfg.Index.RebuildSchedule == "" {
		cfg.Index.RebuildSchedule = "@every 4h"
	}
	if cfg.Index.Snapshot.Backend == "" {
		cfg.Index.Snapshot.Backend = "bbolt"
	}
	if cfg.Index.Snapshot.AssetKey == "" {
		cfg.Index.Snapshot.AssetKey = "asset_matcher"
	}
	if cfg.Index.Snapshot.ThreatActorKey == "" {
		cfg.Index.Snapshot.ThreatActorKey = "threat_actor_matcher"
	}
	if cfg.Assets.Backend == "" {
		cfg.Assets.Backend = "sqlite"
	}
	if cfg.Assets.MongoDatabase == "" {
		cfg.Assets.MongoDatabase = "threatfinder_api"
	}
	if cfg.Assets.MongoCollection == "" {
		cfg.Assets.MongoCollection = "asset"
	}
	if cfg.Events.Backend == "" {
		cfg.Events.Backend = "sqlite"
	}
	if cfg.Events.MongoCollection == "" {
		cfg.Events.MongoCollection = "events"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Inbox.Workers == 0 {
		cfg.Inbox.Workers = 4
	}
}
