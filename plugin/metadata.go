package plugin

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/pubsub"
)

// Metadata publishes discovery-metadata records arriving as GeoJSON
// objects. The record is validated as JSON, copied to the public bucket
// and always announced with a notification.
type Metadata struct {
	deps  Deps
	files []string
}

// NewMetadata is the metadata plugin factory
func NewMetadata(deps Deps) Plugin {
	return &Metadata{deps: deps}
}

// Transform implements Plugin
func (m *Metadata) Transform(ctx context.Context, job Job) error {
	data, err := m.deps.Store.Source.Get(ctx, job.Key)
	if err != nil {
		return errors.Wrap(err, "Metadata", "Transform", "read source object")
	}

	if !json.Valid(data) {
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Metadata", "Transform", "validate metadata record "+job.Key)
	}

	filename := path.Base(job.Key)
	publicKey := job.Topic.DirPath + "/" + filename
	if err := m.deps.Store.Public.Put(ctx, publicKey, data); err != nil {
		return errors.Wrap(err, "Metadata", "Transform", "write public object")
	}
	m.files = append(m.files, publicKey)

	if m.deps.Notifier != nil {
		msg := pubsub.New(pubsub.Params{
			Identifier: identifierFor(filename),
			Topic:      job.Topic.DotPath,
			Key:        publicKey,
			Data:       data,
			Datetime:   time.Now().UTC(),
			PublicURL:  m.deps.PublicURL,
		})
		if err := m.deps.Notifier.Notify(ctx, msg); err != nil {
			return errors.Wrap(err, "Metadata", "Transform", "publish notification")
		}
	}

	return nil
}

// Files implements Plugin
func (m *Metadata) Files() []string {
	return m.files
}
