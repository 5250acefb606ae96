// Package dispatch implements the notification-driven dispatch engine.
// The dispatcher consumes broker messages on the configured subject tree,
// classifies them, and either executes control directives inline or admits
// a transform worker for incoming data objects. Worker concurrency is
// bounded by the admission controller; when the ceiling is reached the
// dispatch loop blocks, pushing backpressure into the broker client.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wmo-im/wis2node/admission"
	"github.com/wmo-im/wis2node/catalog"
	"github.com/wmo-im/wis2node/config"
	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/handler"
	"github.com/wmo-im/wis2node/mapping"
	"github.com/wmo-im/wis2node/metric"
	"github.com/wmo-im/wis2node/natsclient"
	"github.com/wmo-im/wis2node/plugin"
	"github.com/wmo-im/wis2node/pubsub"
	"github.com/wmo-im/wis2node/storage"
	"github.com/wmo-im/wis2node/topics"
)

// ObjectCreatedEvent is the storage event name that triggers dispatch
const ObjectCreatedEvent = "s3:ObjectCreated:Put"

// Message classes used for metrics and logging
const (
	ClassNotification = "notification"
	ClassStorage      = "storage"
	ClassDirective    = "directive"
	ClassUnclassified = "unclassified"
)

// Broker is the subset of the broker client the dispatcher needs
type Broker interface {
	Subscribe(subject string, handler natsclient.MsgHandler) error
	Publish(ctx context.Context, subject string, data []byte) error
}

// Catalog is the subset of the catalog client the dispatcher needs
type Catalog interface {
	UpsertItem(ctx context.Context, collection string, item any) error
	PublishMetadata(ctx context.Context, record json.RawMessage) error
	SetupCollection(ctx context.Context, meta catalog.CollectionMeta) error
	RemoveCollection(ctx context.Context, id string) error
}

// ObjectEvent is the storage notification payload for a new object
type ObjectEvent struct {
	EventName string `json:"EventName"`
	Key       string `json:"Key"`
}

// Deps are the dispatcher collaborators
type Deps struct {
	Broker    Broker
	Cache     *mapping.Cache
	Store     *storage.Store
	Catalog   Catalog
	Registry  *plugin.Registry
	Metrics   *metric.Metrics
	Logger    *slog.Logger
	PublicURL string
}

// Dispatcher routes broker messages to directives and transform workers
type Dispatcher struct {
	prefix    string
	admission *admission.Controller
	deps      Deps
	logger    *slog.Logger

	messages chan brokerMsg
	faults   chan error
	workers  sync.WaitGroup
	loopDone chan struct{}
}

type brokerMsg struct {
	subject string
	payload []byte
}

// New creates a dispatcher. The worker ceiling and subject prefix come
// from the configuration; all collaborators are required except Logger.
func New(cfg *config.Config, deps Deps) (*Dispatcher, error) {
	if deps.Broker == nil || deps.Cache == nil || deps.Store == nil ||
		deps.Catalog == nil || deps.Metrics == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Dispatcher", "New", "check collaborators")
	}
	if deps.Registry == nil {
		deps.Registry = plugin.Builtin()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctrl := admission.New(cfg.Dispatch.WorkerCeiling)
	deps.Metrics.WorkerCeiling.Set(float64(ctrl.Ceiling()))
	ctrl.OnChange(func(active int64) {
		deps.Metrics.WorkersActive.Set(float64(active))
	})
	deps.Cache.OnSwap(func(entries int) {
		deps.Metrics.MappingEntries.Set(float64(entries))
	})

	return &Dispatcher{
		prefix:    cfg.Broker.SubjectPrefix,
		admission: ctrl,
		deps:      deps,
		logger:    deps.Logger.With("component", "dispatcher"),
		messages:  make(chan brokerMsg),
		faults:    make(chan error, 16),
		loopDone:  make(chan struct{}),
	}, nil
}

// Faults delivers unexpected worker and directive failures. These signal
// environment trouble or defects, not bad input; the caller decides
// whether to keep running.
func (d *Dispatcher) Faults() <-chan error {
	return d.faults
}

// Active returns the number of currently running transform workers
func (d *Dispatcher) Active() int64 {
	return d.admission.Active()
}

// Start subscribes to the dispatch subject tree and runs the dispatch
// loop until ctx is cancelled. The broker callback blocks on the message
// channel, so a stalled loop backs up into the broker client rather than
// queuing without bound.
func (d *Dispatcher) Start(ctx context.Context) error {
	subject := d.prefix + ".>"
	err := d.deps.Broker.Subscribe(subject, func(subj string, payload []byte) {
		select {
		case d.messages <- brokerMsg{subject: subj, payload: payload}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return errors.Wrap(err, "Dispatcher", "Start", "subscribe to "+subject)
	}

	d.logger.Info("Dispatcher started",
		"subject", subject, "worker_ceiling", d.admission.Ceiling())

	go d.loop(ctx)
	return nil
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.messages:
			d.route(ctx, msg)
		}
	}
}

// Stop waits for the dispatch loop and all in-flight workers to finish
func (d *Dispatcher) Stop(ctx context.Context) error {
	select {
	case <-d.loopDone:
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Dispatcher", "Stop", "wait for dispatch loop")
	}

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Dispatcher", "Stop", "wait for workers")
	}
}

// route classifies one message by subject and executes it. Directives run
// inline; storage events go through admission and run in a worker.
func (d *Dispatcher) route(ctx context.Context, msg brokerMsg) {
	rest, ok := strings.CutPrefix(msg.subject, d.prefix+".")
	if !ok {
		d.deps.Metrics.RecordReceived(ClassUnclassified)
		d.deps.Metrics.RecordDropped("foreign_subject")
		d.logger.Debug("Ignoring message outside subject tree", "subject", msg.subject)
		return
	}

	switch {
	case rest == "notifications":
		d.deps.Metrics.RecordReceived(ClassNotification)
		d.persistNotification(ctx, msg.payload)

	case rest == "storage":
		d.deps.Metrics.RecordReceived(ClassStorage)
		d.dispatchObject(ctx, msg.payload)

	case rest == "data_mappings.refresh":
		d.deps.Metrics.RecordReceived(ClassDirective)
		d.refreshMappings(ctx)

	case rest == "dataset.publication":
		d.deps.Metrics.RecordReceived(ClassDirective)
		d.publishDataset(ctx, msg.payload)

	case strings.HasPrefix(rest, "dataset.unpublication."):
		d.deps.Metrics.RecordReceived(ClassDirective)
		d.unpublishDataset(ctx, strings.TrimPrefix(rest, "dataset.unpublication."))

	default:
		d.deps.Metrics.RecordReceived(ClassUnclassified)
		d.deps.Metrics.RecordDropped("unclassified")
		d.logger.Debug("Ignoring unclassified message", "subject", msg.subject)
	}
}

// persistNotification stores a published WIS notification in the
// notifications collection so the catalog can replay recent messages.
func (d *Dispatcher) persistNotification(ctx context.Context, payload []byte) {
	if !json.Valid(payload) {
		d.deps.Metrics.RecordDropped("invalid_notification")
		d.logger.Error("Discarding malformed notification payload")
		return
	}
	if err := d.deps.Catalog.UpsertItem(ctx, catalog.MessagesCollection, json.RawMessage(payload)); err != nil {
		d.deps.Metrics.RecordError("notification_store")
		d.fault(errors.Wrap(err, "Dispatcher", "persistNotification", "store notification"))
		return
	}
	d.deps.Metrics.RecordProcessed(ClassNotification, "success")
}

// refreshMappings reloads the whole mapping table from the catalog. On
// failure the previous table stays in effect.
func (d *Dispatcher) refreshMappings(ctx context.Context) {
	if err := d.deps.Cache.Refresh(ctx); err != nil {
		d.deps.Metrics.MappingRefreshes.WithLabelValues("failure").Inc()
		d.logger.Error("Mapping refresh failed, keeping previous table", "error", err)
		if !errors.IsTransient(err) {
			d.fault(err)
		}
		return
	}
	d.deps.Metrics.MappingRefreshes.WithLabelValues("success").Inc()
	d.deps.Metrics.RecordProcessed(ClassDirective, "success")
	d.logger.Info("Mapping table refreshed", "entries", d.deps.Cache.Len())
}

// publishDataset upserts a discovery-metadata record and creates its
// dataset collection in the catalog.
func (d *Dispatcher) publishDataset(ctx context.Context, payload []byte) {
	var record struct {
		ID    string `json:"id"`
		Title string `json:"title,omitempty"`
	}
	if err := json.Unmarshal(payload, &record); err != nil || record.ID == "" {
		d.deps.Metrics.RecordDropped("invalid_publication")
		d.logger.Error("Discarding dataset publication without an id", "error", err)
		return
	}

	if err := d.deps.Catalog.PublishMetadata(ctx, json.RawMessage(payload)); err != nil {
		d.deps.Metrics.RecordError("dataset_publication")
		d.fault(errors.Wrap(err, "Dispatcher", "publishDataset", "publish metadata "+record.ID))
		return
	}
	meta := catalog.CollectionMeta{ID: record.ID, Title: record.Title}
	if err := d.deps.Catalog.SetupCollection(ctx, meta); err != nil {
		d.deps.Metrics.RecordError("dataset_publication")
		d.fault(errors.Wrap(err, "Dispatcher", "publishDataset", "setup collection "+record.ID))
		return
	}
	d.deps.Metrics.RecordProcessed(ClassDirective, "success")
	d.logger.Info("Dataset published", "id", record.ID)
}

// unpublishDataset removes the dataset collection named by the subject tail
func (d *Dispatcher) unpublishDataset(ctx context.Context, id string) {
	if id == "" {
		d.deps.Metrics.RecordDropped("invalid_unpublication")
		d.logger.Error("Discarding dataset unpublication without an id")
		return
	}
	if err := d.deps.Catalog.RemoveCollection(ctx, id); err != nil {
		d.deps.Metrics.RecordError("dataset_unpublication")
		d.fault(errors.Wrap(err, "Dispatcher", "unpublishDataset", "remove collection "+id))
		return
	}
	d.deps.Metrics.RecordProcessed(ClassDirective, "success")
	d.logger.Info("Dataset unpublished", "id", id)
}

// dispatchObject validates a storage event, resolves its mapping and
// admits a transform worker. Acquire blocks the dispatch loop when the
// worker ceiling is reached.
func (d *Dispatcher) dispatchObject(ctx context.Context, payload []byte) {
	var event ObjectEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.deps.Metrics.RecordDropped("invalid_event")
		d.logger.Error("Discarding malformed storage event", "error", err)
		return
	}

	if event.EventName != ObjectCreatedEvent {
		d.deps.Metrics.RecordDropped("event_name")
		d.logger.Debug("Ignoring storage event", "event", event.EventName, "key", event.Key)
		return
	}

	if d.deps.Store.IsArchived(event.Key) {
		d.deps.Metrics.RecordDropped("archived")
		d.logger.Debug("Ignoring archived object", "key", event.Key)
		return
	}

	topic, err := topics.FromObjectKey(event.Key)
	if err != nil {
		d.deps.Metrics.RecordDropped("invalid_key")
		d.logger.Error("Discarding object with unusable key", "key", event.Key, "error", err)
		return
	}

	// Resolve the mapping before taking a worker slot: unmapped topics
	// must never consume admission capacity.
	def, err := d.deps.Cache.Lookup(topic.DotPath)
	if err != nil {
		d.deps.Metrics.RecordDropped("no_mapping")
		d.logger.Debug("No data mapping for topic", "topic", topic.DotPath, "key", event.Key)
		return
	}

	waitStart := time.Now()
	if err := d.admission.Acquire(ctx); err != nil {
		d.logger.Debug("Admission aborted", "key", event.Key, "error", err)
		return
	}
	d.deps.Metrics.RecordSlotWait(time.Since(waitStart))

	d.workers.Add(1)
	go d.runWorker(ctx, event.Key, topic, def)
}

// runWorker executes the transform chain for one object. The admission
// slot is released on every exit path, including panic.
func (d *Dispatcher) runWorker(ctx context.Context, key string, topic topics.Hierarchy, def mapping.Definition) {
	start := time.Now()
	defer d.workers.Done()
	defer d.admission.Release()
	defer func() {
		if r := recover(); r != nil {
			d.deps.Metrics.RecordError("panic")
			d.deps.Metrics.RecordDispatch("panic", time.Since(start))
			d.fault(errors.WrapFatal(errors.ErrWorkerPanic,
				"Dispatcher", "runWorker", fmt.Sprintf("transform %s: %v", key, r)))
		}
	}()

	h := handler.New(key, topic, def, d.deps.Registry, plugin.Deps{
		Store:     d.deps.Store,
		Notifier:  d,
		PublicURL: d.deps.PublicURL,
		Logger:    d.logger,
	})

	err := h.Handle(ctx)
	switch {
	case err == nil:
		d.deps.Metrics.RecordProcessed(ClassStorage, "success")
		d.deps.Metrics.RecordDispatch("success", time.Since(start))
		d.logger.Info("Object processed",
			"key", key, "topic", topic.DotPath, "outputs", outputFiles(h))

	case errors.IsExpected(err):
		d.deps.Metrics.RecordProcessed(ClassStorage, "not_handled")
		d.deps.Metrics.RecordDispatch("not_handled", time.Since(start))
		d.logger.Debug("Object not handled", "key", key, "topic", topic.DotPath, "reason", err)

	case errors.IsInvalid(err):
		d.deps.Metrics.RecordDropped("invalid_input")
		d.deps.Metrics.RecordError("invalid_input")
		d.deps.Metrics.RecordDispatch("invalid", time.Since(start))
		d.logger.Error("Discarding invalid object", "key", key, "topic", topic.DotPath, "error", err)

	default:
		d.deps.Metrics.RecordError("worker")
		d.deps.Metrics.RecordDispatch("failure", time.Since(start))
		d.fault(errors.Wrap(err, "Dispatcher", "runWorker", "transform "+key))
	}
}

// Notify publishes a WIS notification on the notifications subject.
// Workers use this to announce objects they copied to the public bucket.
func (d *Dispatcher) Notify(ctx context.Context, msg *pubsub.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return errors.Wrap(err, "Dispatcher", "Notify", "encode notification")
	}
	subject := d.prefix + ".notifications"
	if err := d.deps.Broker.Publish(ctx, subject, data); err != nil {
		return errors.Wrap(err, "Dispatcher", "Notify", "publish to "+subject)
	}
	d.deps.Metrics.Published.WithLabelValues(ClassNotification).Inc()
	return nil
}

// fault reports an unexpected failure without ever blocking a worker
func (d *Dispatcher) fault(err error) {
	select {
	case d.faults <- err:
	default:
		d.logger.Error("Fault channel full, dropping fault", "error", err)
	}
}

func outputFiles(h *handler.Handler) []string {
	var files []string
	for _, p := range h.Plugins() {
		files = append(files, p.Files()...)
	}
	return files
}
