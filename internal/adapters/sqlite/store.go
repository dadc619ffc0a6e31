// Package sqlite implements the asset catalog (ports.AssetSource) and an
// idempotent event store (ports.EventSink) on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyeo/eventmatcher/internal/ports"
)

// migrations are applied in order; index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE assets (
		id              TEXT PRIMARY KEY,
		case_id         TEXT NOT NULL,
		monitored       INTEGER NOT NULL DEFAULT 0,
		is_threat_actor INTEGER NOT NULL DEFAULT 0,
		body            TEXT NOT NULL,
		updated_at      DATETIME NOT NULL
	);
	CREATE INDEX idx_assets_monitored ON assets(monitored);
	CREATE INDEX idx_assets_threat_actor ON assets(is_threat_actor);
	CREATE TABLE events (
		hash         TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		asset_id     TEXT NOT NULL,
		case_id      TEXT NOT NULL,
		url          TEXT NOT NULL,
		body         TEXT NOT NULL,
		created_at   DATETIME NOT NULL
	);
	CREATE INDEX idx_events_asset ON events(asset_id);`,
}

// Store is a SQLite-backed asset catalog and event store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (or creates) the database file at path and migrates it.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL lets the matcher read assets while events are written
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// PutAsset inserts or replaces an asset.
func (s *Store) PutAsset(ctx context.Context, a ports.Asset) error {
	if a.ID == "" {
		return errors.New("asset id is required")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal asset %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (id, case_id, monitored, is_threat_actor, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			case_id = excluded.case_id,
			monitored = excluded.monitored,
			is_threat_actor = excluded.is_threat_actor,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, a.ID, a.CaseID, a.Monitored, a.IsThreatActor, string(body), s.now().UTC())
	if err != nil {
		return fmt.Errorf("saving asset %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAsset removes an asset. Deleting a missing asset is not an error.
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting asset %s: %w", id, err)
	}
	return nil
}

// ListAssets implements ports.AssetSource. Assets come back in id order.
func (s *Store) ListAssets(ctx context.Context, filter ports.AssetFilter) ([]ports.Asset, error) {
	query := "SELECT id, case_id, body FROM assets"
	switch {
	case filter.Monitored && filter.ThreatActor:
		query += " WHERE monitored = 1 AND is_threat_actor = 1"
	case filter.Monitored:
		query += " WHERE monitored = 1"
	case filter.ThreatActor:
		query += " WHERE is_threat_actor = 1"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []ports.Asset
	for rows.Next() {
		var id, caseID, body string
		if err := rows.Scan(&id, &caseID, &body); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		var a ports.Asset
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, fmt.Errorf("unmarshal asset %s: %w", id, err)
		}
		a.ID, a.CaseID = id, caseID
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// WriteEvent implements ports.EventSink. An event whose hash is already
// stored is ignored and reported as not inserted.
func (s *Store) WriteEvent(ctx context.Context, ev ports.StoredEvent) (bool, error) {
	if ev.Hash == "" {
		return false, errors.New("event hash is required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (hash, content_hash, asset_id, case_id, url, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Hash, ev.ContentHash, ev.AssetID, ev.CaseID, ev.URL, string(ev.Body), s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("writing event %s: %w", ev.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("writing event %s: %w", ev.Hash, err)
	}
	return n == 1, nil
}

// Event returns the stored event with the given hash, or sql.ErrNoRows.
func (s *Store) Event(ctx context.Context, hash string) (ports.StoredEvent, error) {
	var ev ports.StoredEvent
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT hash, content_hash, asset_id, case_id, url, body FROM events WHERE hash = ?
	`, hash).Scan(&ev.Hash, &ev.ContentHash, &ev.AssetID, &ev.CaseID, &ev.URL, &body)
	if err != nil {
		return ports.StoredEvent{}, err
	}
	ev.Body = json.RawMessage(body)
	return ev, nil
}

// CountEvents returns how many events are stored for assetID, or in total
// when assetID is empty.
func (s *Store) CountEvents(ctx context.Context, assetID string) (int, error) {
	var n int
	var err error
	if assetID == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE asset_id = ?", assetID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}
