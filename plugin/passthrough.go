package plugin

import (
	"context"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/pubsub"
)

// obsTimePattern extracts a YYYYMMDDTHHMM or YYYYMMDDHHMM timestamp token
// from incoming file names.
var obsTimePattern = regexp.MustCompile(`\d{8}T?\d{4}(?:\d{2})?`)

// Passthrough publishes an incoming data object unchanged: it copies the
// object from the source bucket to the public bucket under its topic
// directory and emits a WIS notification. It is the transform for data
// that already arrives in an exchange format.
type Passthrough struct {
	deps  Deps
	files []string
}

// NewPassthrough is the passthrough plugin factory
func NewPassthrough(deps Deps) Plugin {
	return &Passthrough{deps: deps}
}

// Transform implements Plugin
func (p *Passthrough) Transform(ctx context.Context, job Job) error {
	filename := path.Base(job.Key)

	if job.Def.FilePattern != "" {
		re, err := regexp.Compile(job.Def.FilePattern)
		if err != nil {
			return errors.WrapInvalid(err, "Passthrough", "Transform", "compile file pattern")
		}
		if !re.MatchString(filename) {
			return errors.WrapInvalid(errors.ErrInvalidKey,
				"Passthrough", "Transform", "match "+filename+" against "+job.Def.FilePattern)
		}
	}

	data, err := p.deps.Store.Source.Get(ctx, job.Key)
	if err != nil {
		return errors.Wrap(err, "Passthrough", "Transform", "read source object")
	}

	publicKey := job.Topic.DirPath + "/" + filename
	if err := p.deps.Store.Public.Put(ctx, publicKey, data); err != nil {
		return errors.Wrap(err, "Passthrough", "Transform", "write public object")
	}
	p.files = append(p.files, publicKey)

	if job.Def.Notify && p.deps.Notifier != nil {
		msg := pubsub.New(pubsub.Params{
			Identifier: identifierFor(filename),
			Topic:      job.Topic.DotPath,
			Key:        publicKey,
			Data:       data,
			Datetime:   observationTime(filename),
			PublicURL:  p.deps.PublicURL,
		})
		if err := p.deps.Notifier.Notify(ctx, msg); err != nil {
			return errors.Wrap(err, "Passthrough", "Transform", "publish notification")
		}
	}

	p.deps.Logger.Debug("Passthrough published object", "key", publicKey, "bytes", len(data))
	return nil
}

// Files implements Plugin
func (p *Passthrough) Files() []string {
	return p.files
}

// identifierFor derives a data identifier from a file name
func identifierFor(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		return filename[:idx]
	}
	return filename
}

// observationTime extracts the observation timestamp embedded in the file
// name, falling back to the current time when none parses.
func observationTime(filename string) time.Time {
	token := obsTimePattern.FindString(filename)
	for _, layout := range []string{"20060102T150405", "20060102T1504", "200601021504", "20060102150405"} {
		if token == "" {
			break
		}
		if ts, err := time.Parse(layout, token); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}
