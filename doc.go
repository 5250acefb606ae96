// Package wis2node implements a notification-driven dispatch node for
// meteorological observation data. It subscribes to a NATS broker,
// classifies incoming messages and turns storage events for new data
// objects into transform-worker runs that publish WIS notification
// messages.
//
// # Architecture
//
// The node is a single dispatch loop feeding a bounded worker pool:
//
//	┌──────────────────────────────────────┐
//	│          NATS Broker                 │  wis2node.> subjects,
//	│  (pub/sub + JetStream object store)  │  source/public buckets
//	└──────────────────┬───────────────────┘
//	                   ↓
//	┌──────────────────────────────────────┐
//	│          Dispatcher                  │  Classify by subject,
//	│  (directives inline, data admitted)  │  resolve data mappings
//	└──────────────────┬───────────────────┘
//	                   ↓ admission (counting semaphore)
//	┌──────────────────────────────────────┐
//	│       Transform Workers              │  Plugin chains per file
//	│  (copy, convert, notify)             │  type, WIS notifications
//	└──────────────────────────────────────┘
//
// Message classes:
//   - storage events: a new object landed in the source bucket; the
//     dispatcher resolves the topic hierarchy from the object key, looks
//     up its data mapping and admits a transform worker
//   - notifications: published WIS messages, persisted to the catalog's
//     messages collection for replay
//   - directives: mapping refresh, dataset publication and unpublication
//
// Backpressure is structural: the dispatch loop blocks on worker
// admission when the ceiling is reached, the broker callback blocks on
// the loop, and the broker client's pending buffers absorb the rest.
// Nothing queues without bound inside the node.
//
// # Packages
//
// Dispatch core:
//   - dispatch: message classification, admission, worker lifecycle
//   - admission: counting-semaphore worker ceiling
//   - handler: per-object plugin chain execution
//   - plugin: transform plugin contract and built-ins
//
// Domain:
//   - mapping: refreshable topic-hierarchy to data-mapping cache
//   - topics: topic hierarchy derivation from object keys
//   - pubsub: WIS notification message construction
//   - catalog: discovery-metadata catalog HTTP client
//   - storage: source/public object buckets over JetStream
//
// Infrastructure:
//   - natsclient: NATS connection management
//   - metric: Prometheus metrics and the /metrics and /healthz listener
//   - config: YAML configuration with WIS2NODE_* overrides
//   - errors: classified error handling
//   - pkg/retry: retry policies with backoff
//
// # Binary
//
// Run the node:
//
//	wis2node --config /etc/wis2node/config.yaml
//
// Configuration can also come entirely from WIS2NODE_* environment
// variables; see the config package.
package wis2node
