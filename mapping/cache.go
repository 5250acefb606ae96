package mapping

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/wmo-im/wis2node/errors"
)

// Source fetches the full topic-hierarchy to data-mapping table. The
// catalog client is the production implementation.
type Source interface {
	DataMappings(ctx context.Context) (map[string]json.RawMessage, error)
}

// Table is an immutable snapshot of the mapping table. It is never mutated
// after construction; Refresh builds a new one and swaps it in.
type Table map[string]Definition

// Cache holds the active mapping table and reloads it on demand
type Cache struct {
	source Source
	table  atomic.Pointer[Table]
	logger *slog.Logger

	// onSwap, when set, observes the entry count after each swap
	onSwap func(entries int)
}

// NewCache creates a cache with an empty table. Call Load before first use;
// a dispatcher running against an empty table drops every storage event.
func NewCache(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{source: source, logger: logger}
	empty := Table{}
	c.table.Store(&empty)
	return c
}

// OnSwap registers an observer invoked with the entry count after each
// successful table swap.
func (c *Cache) OnSwap(fn func(entries int)) {
	c.onSwap = fn
}

// Load fetches the full table from the source and swaps it in. On failure
// the previously loaded table is retained and ErrSourceUnavailable (wrapped)
// is returned; the cache never runs with a partially loaded table.
func (c *Cache) Load(ctx context.Context) error {
	raw, err := c.source.DataMappings(ctx)
	if err != nil {
		c.logger.Error("Mapping table load failed, retaining previous table",
			"entries", len(*c.table.Load()), "error", err)
		return errors.WrapTransient(err, "Cache", "Load", "fetch data mappings")
	}

	next := make(Table, len(raw))
	for topic, doc := range raw {
		def, err := ParseDefinition(doc)
		if err != nil {
			// one bad record invalidates the load, not the running table
			c.logger.Error("Invalid mapping document", "topic", topic, "error", err)
			return errors.WrapInvalid(err, "Cache", "Load", "parse mapping for "+topic)
		}
		next[topic] = def
	}

	c.table.Store(&next)
	c.logger.Info("Mapping table loaded", "entries", len(next))
	if c.onSwap != nil {
		c.onSwap(len(next))
	}
	return nil
}

// Refresh is Load under its directive name; it exists so call sites read
// like the broker protocol they implement.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

// Lookup returns the mapping definition for a topic hierarchy key.
// A miss is reported as ErrNoMapping: it means no transform is registered
// for that data category, which is not an error condition for the caller.
func (c *Cache) Lookup(topicKey string) (Definition, error) {
	table := *c.table.Load()
	def, ok := table[topicKey]
	if !ok {
		return Definition{}, errors.WrapExpected(errors.ErrNoMapping,
			"Cache", "Lookup", "lookup "+topicKey)
	}
	return def, nil
}

// Snapshot returns the active table. The returned map must not be mutated.
func (c *Cache) Snapshot() Table {
	return *c.table.Load()
}

// Len returns the number of entries in the active table
func (c *Cache) Len() int {
	return len(*c.table.Load())
}
