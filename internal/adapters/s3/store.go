// Package s3 implements ports.SnapshotStore on an S3 bucket. Snapshots are
// stored as JSON objects; the object's LastModified drives staleness.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Config locates the snapshot objects.
type Config struct {
	Bucket string
	Prefix string
	Region string
}

// Store implements ports.SnapshotStore backed by S3.
type Store struct {
	client objectAPI
	bucket string
	prefix string
}

// NewStore builds a Store using the default AWS credential chain.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 snapshot store: bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(awss3.NewFromConfig(awsCfg), cfg), nil
}

func newStore(client objectAPI, cfg Config) *Store {
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Load fetches the snapshot under key. LastModified of the object is returned
// as the snapshot time; a missing object is ports.ErrSnapshotNotFound.
func (s *Store) Load(ctx context.Context, key string) (*ports.IndexSnapshot, time.Time, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, time.Time{}, fmt.Errorf("snapshot %s: %w", key, ports.ErrSnapshotNotFound)
		}
		return nil, time.Time{}, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	var snap ports.IndexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if snap.Version != ports.SnapshotVersion {
		return nil, time.Time{}, fmt.Errorf("snapshot %s: unsupported version %d", key, snap.Version)
	}
	return &snap, aws.ToTime(out.LastModified), nil
}

// Save writes the snapshot under key, replacing any previous object.
func (s *Store) Save(ctx context.Context, key string, snap *ports.IndexSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}
