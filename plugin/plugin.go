// Package plugin provides the transform-plugin capability table. Plugins
// are resolved from a static registry at startup rather than loaded
// dynamically; each plugin turns an incoming data object into public
// output artifacts and optional WIS notifications.
package plugin

import (
	"context"
	"log/slog"

	"github.com/wmo-im/wis2node/mapping"
	"github.com/wmo-im/wis2node/pubsub"
	"github.com/wmo-im/wis2node/storage"
	"github.com/wmo-im/wis2node/topics"
)

// Job is one transform invocation: a source object plus the plugin
// definition selected from the data mappings.
type Job struct {
	Key   string // object key in the source bucket
	Topic topics.Hierarchy
	Def   mapping.PluginDef
}

// Notifier publishes WIS notification messages for published objects
type Notifier interface {
	Notify(ctx context.Context, msg *pubsub.Message) error
}

// Deps are the collaborators handed to every plugin instance
type Deps struct {
	Store     *storage.Store
	Notifier  Notifier
	PublicURL string
	Logger    *slog.Logger
}

// Plugin is a transform worker step. Transform runs the conversion;
// Files reports the output object keys it produced, for observability.
type Plugin interface {
	Transform(ctx context.Context, job Job) error
	Files() []string
}

// Factory constructs a plugin instance with its dependencies
type Factory func(deps Deps) Plugin
