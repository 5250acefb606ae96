// Package handler runs the transform-plugin chain for one incoming data
// object. It is the worker body the dispatcher starts per admitted task:
// it selects the plugins registered for the object's file type, runs them
// and reports the outcome through the error taxonomy.
package handler

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/mapping"
	"github.com/wmo-im/wis2node/plugin"
	"github.com/wmo-im/wis2node/topics"
)

// Handler processes one object with its mapping snapshot
type Handler struct {
	key      string
	topic    topics.Hierarchy
	def      mapping.Definition
	registry *plugin.Registry
	deps     plugin.Deps
	logger   *slog.Logger

	plugins []plugin.Plugin
}

// New creates a handler for one dispatch task. The mapping definition is
// the snapshot resolved at dispatch time; a later cache refresh does not
// affect it.
func New(key string, topic topics.Hierarchy, def mapping.Definition,
	registry *plugin.Registry, deps plugin.Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}
	return &Handler{
		key:      key,
		topic:    topic,
		def:      def,
		registry: registry,
		deps:     deps,
		logger:   logger,
	}
}

// Handle runs the plugin chain registered for the object's file type.
// ErrNotHandled (wrapped) is returned when no plugin claims the file;
// that is an expected condition, not a failure.
func (h *Handler) Handle(ctx context.Context) error {
	fileType := fileTypeOf(h.key)
	if fileType == "" {
		return errors.WrapInvalid(errors.ErrInvalidKey,
			"Handler", "Handle", "determine file type of "+h.key)
	}

	chain, ok := h.def.Plugins[fileType]
	if !ok {
		return errors.WrapExpected(errors.ErrNotHandled,
			"Handler", "Handle", "select plugins for file type "+fileType)
	}

	filename := path.Base(h.key)
	handled := false
	for _, def := range chain {
		if def.FilePattern != "" {
			re, err := regexp.Compile(def.FilePattern)
			if err != nil {
				return errors.WrapInvalid(err,
					"Handler", "Handle", "compile file pattern for plugin "+def.Name)
			}
			if !re.MatchString(filename) {
				h.logger.Debug("Plugin skipped, file pattern does not match",
					"plugin", def.Name, "key", h.key, "pattern", def.FilePattern)
				continue
			}
		}

		p, err := h.registry.New(def.Name, h.deps)
		if err != nil {
			return errors.Wrap(err, "Handler", "Handle", "instantiate plugin "+def.Name)
		}

		h.logger.Debug("Running transform plugin",
			"plugin", def.Name, "key", h.key, "topic", h.topic.DotPath)

		if err := p.Transform(ctx, plugin.Job{Key: h.key, Topic: h.topic, Def: def}); err != nil {
			return errors.Wrap(err, "Handler", "Handle", "run plugin "+def.Name)
		}

		handled = true
		h.plugins = append(h.plugins, p)
	}

	if !handled {
		return errors.WrapExpected(errors.ErrNotHandled,
			"Handler", "Handle", "run plugin chain for "+h.key)
	}
	return nil
}

// Plugins returns the plugin instances that ran, for output observability
func (h *Handler) Plugins() []plugin.Plugin {
	return h.plugins
}

// fileTypeOf returns the lower-case suffix of an object key
func fileTypeOf(key string) string {
	base := path.Base(key)
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}
