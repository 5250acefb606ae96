// Package storage provides the object-store collaborator used by the
// dispatch engine and its plugins: a source bucket where observation files
// arrive and a public bucket where transform output is published. Buckets
// are JetStream object stores.
package storage

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/wmo-im/wis2node/config"
	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/natsclient"
)

// Bucket is the minimal object-store surface the engine needs
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// jetstreamBucket adapts a JetStream object store to Bucket
type jetstreamBucket struct {
	name string
	os   jetstream.ObjectStore
}

func (b *jetstreamBucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.os.GetBytes(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, errors.WrapInvalid(errors.ErrObjectNotFound,
				"Bucket", "Get", "get "+b.name+"/"+key)
		}
		return nil, errors.WrapTransient(err, "Bucket", "Get", "get "+b.name+"/"+key)
	}
	return data, nil
}

func (b *jetstreamBucket) Put(ctx context.Context, key string, data []byte) error {
	if _, err := b.os.PutBytes(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "Bucket", "Put", "put "+b.name+"/"+key)
	}
	return nil
}

func (b *jetstreamBucket) List(ctx context.Context, prefix string) ([]string, error) {
	infos, err := b.os.List(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "Bucket", "List", "list "+b.name)
	}

	var keys []string
	for _, info := range infos {
		if prefix == "" || strings.HasPrefix(info.Name, prefix) {
			keys = append(keys, info.Name)
		}
	}
	return keys, nil
}

// Store bundles the source and public buckets with the archive prefix
type Store struct {
	Source Bucket
	Public Bucket

	archivePrefix string
}

// NewStore opens the configured buckets on the broker connection
func NewStore(ctx context.Context, client *natsclient.Client, cfg config.StorageConfig) (*Store, error) {
	source, err := client.ObjectStore(ctx, cfg.SourceBucket)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "NewStore", "open source bucket")
	}
	public, err := client.ObjectStore(ctx, cfg.PublicBucket)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "NewStore", "open public bucket")
	}

	return &Store{
		Source:        &jetstreamBucket{name: cfg.SourceBucket, os: source},
		Public:        &jetstreamBucket{name: cfg.PublicBucket, os: public},
		archivePrefix: cfg.ArchivePrefix,
	}, nil
}

// NewStoreWithBuckets builds a store over explicit buckets (for testing)
func NewStoreWithBuckets(source, public Bucket, archivePrefix string) *Store {
	return &Store{Source: source, Public: public, archivePrefix: archivePrefix}
}

// IsArchived reports whether an object key falls under the archive prefix.
// Archived objects have already been processed and are never re-dispatched.
func (s *Store) IsArchived(key string) bool {
	if s.archivePrefix == "" {
		return false
	}
	return strings.HasPrefix(strings.TrimPrefix(key, "/"), s.archivePrefix)
}
