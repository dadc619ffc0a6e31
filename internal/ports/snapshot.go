package ports

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned by SnapshotStore.Load when no snapshot exists
// for the key (fresh deployment).
var ErrSnapshotNotFound = errors.New("index snapshot not found")

// SnapshotStore persists the flat keyword records an index was built from, so
// a restarted process can skip querying the asset catalog while the snapshot
// is fresh. Any Load error (not found, corrupt, unreachable) is recoverable:
// the caller rebuilds from the AssetSource.
type SnapshotStore interface {
	// Load returns the snapshot stored under key and the time it was written.
	Load(ctx context.Context, key string) (*IndexSnapshot, time.Time, error)

	// Save stores snap under key, overwriting any prior snapshot.
	Save(ctx context.Context, key string, snap *IndexSnapshot) error
}

// IndexSnapshot is the serialized form of a keyword index.
type IndexSnapshot struct {
	Version int             `json:"version"`
	BuiltAt time.Time       `json:"built_at"`
	Records []KeywordRecord `json:"records"`
}

// SnapshotVersion is bumped whenever the record layout changes; snapshots with
// another version are treated as unreadable.
const SnapshotVersion = 1

// KeywordRecord is one searchable literal derived from an asset. One asset
// yields many records sharing AssetID, CaseID and RequiredScore.
type KeywordRecord struct {
	AssetID       string  `json:"asset_id"`
	CaseID        string  `json:"case_id"`
	RequiredScore float64 `json:"required_score"`
	KeywordName   string  `json:"keyword_name"`
	KeywordText   string  `json:"keyword_text"`
}
