// Package mongo implements ports.AssetSource and ports.EventSink on MongoDB,
// the document store the asset catalog and event history live in.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// Config locates the asset and event collections.
type Config struct {
	URI             string
	Database        string
	AssetCollection string
	EventCollection string
	Timeout         time.Duration
}

// Store reads assets from and writes events to MongoDB.
type Store struct {
	client *mongo.Client
	assets *mongo.Collection
	events *mongo.Collection
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{client: client, assets: db.Collection(cfg.AssetCollection)}
	if cfg.EventCollection != "" {
		s.events = db.Collection(cfg.EventCollection)
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ListAssets implements ports.AssetSource.
func (s *Store) ListAssets(ctx context.Context, filter ports.AssetFilter) ([]ports.Asset, error) {
	cur, err := s.assets.Find(ctx, assetQuery(filter))
	if err != nil {
		return nil, fmt.Errorf("find assets: %w", err)
	}
	defer cur.Close(ctx)

	var assets []ports.Asset
	for cur.Next(ctx) {
		a, err := decodeAsset(cur.Current)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// WriteEvent implements ports.EventSink with an upsert on the event hash, so
// concurrent writers of the same event store it once.
func (s *Store) WriteEvent(ctx context.Context, ev ports.StoredEvent) (bool, error) {
	if s.events == nil {
		return false, errors.New("mongo event collection not configured")
	}
	doc, err := eventDocument(ev)
	if err != nil {
		return false, err
	}
	res, err := s.events.UpdateOne(ctx,
		bson.M{"hash": ev.Hash},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert event %s: %w", ev.Hash, err)
	}
	return res.UpsertedCount == 1, nil
}

func assetQuery(filter ports.AssetFilter) bson.M {
	q := bson.M{}
	if filter.Monitored {
		q["monitored"] = true
	}
	if filter.ThreatActor {
		q["is_threat_actor"] = true
	}
	return q
}

// decodeAsset maps an asset document onto ports.Asset. _id and case_id may
// be ObjectIDs or strings.
func decodeAsset(raw bson.Raw) (ports.Asset, error) {
	var a ports.Asset
	if err := bson.Unmarshal(raw, &a); err != nil {
		return ports.Asset{}, fmt.Errorf("decode asset: %w", err)
	}
	a.ID = idString(raw.Lookup("_id"))
	a.CaseID = idString(raw.Lookup("case_id"))
	if a.ID == "" {
		return ports.Asset{}, errors.New("decode asset: missing _id")
	}
	return a, nil
}

func idString(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return ""
}

// eventDocument converts the JSON event body to BSON. Hex ids are stored as
// ObjectIDs so events join against assets and cases.
func eventDocument(ev ports.StoredEvent) (bson.M, error) {
	if ev.Hash == "" {
		return nil, errors.New("event hash is required")
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(ev.Body, false, &doc); err != nil {
		return nil, fmt.Errorf("convert event %s: %w", ev.Hash, err)
	}
	delete(doc, "hash")
	for _, field := range []string{"asset_id", "case_id"} {
		if s, ok := doc[field].(string); ok {
			if oid, err := primitive.ObjectIDFromHex(s); err == nil {
				doc[field] = oid
			}
		}
	}
	doc["created_at"] = time.Now().UTC()
	return doc, nil
}
