// Package catalog provides the HTTP client for the discovery-metadata
// catalog API. The catalog is the source of the topic-hierarchy to
// data-mapping table and the registry of published dataset collections;
// it also backs the notifications store.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/pkg/retry"
)

// DiscoveryCollection is the catalog collection holding discovery metadata
const DiscoveryCollection = "discovery-metadata"

// MessagesCollection is the catalog collection holding notification messages
const MessagesCollection = "messages"

// Record is a discovery-metadata record as returned by the catalog
type Record struct {
	ID         string          `json:"id"`
	Properties json.RawMessage `json:"properties,omitempty"`
	WIS2Node   *RecordExt      `json:"wis2node,omitempty"`
}

// RecordExt carries the wis2node-specific record block
type RecordExt struct {
	TopicHierarchy string          `json:"topic_hierarchy"`
	DataMappings   json.RawMessage `json:"data_mappings"`
}

// featureCollection is the catalog items response envelope
type featureCollection struct {
	Features []Record `json:"features"`
}

// Client is the discovery-metadata catalog HTTP client
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
	logger  *slog.Logger
}

// NewClient creates a catalog client for the given API base URL
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry.DefaultConfig(),
		logger:  logger,
	}
}

// DataMappings queries the discovery-metadata collection and returns the
// full topic-hierarchy to data-mapping table.
func (c *Client) DataMappings(ctx context.Context) (map[string]json.RawMessage, error) {
	var fc featureCollection
	err := retry.Do(ctx, c.retry, func() error {
		return c.getJSON(ctx,
			fmt.Sprintf("%s/collections/%s/items", c.baseURL, DiscoveryCollection), &fc)
	})
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrSourceUnavailable,
			"Catalog", "DataMappings", fmt.Sprintf("query discovery metadata: %v", err))
	}

	mappings := make(map[string]json.RawMessage, len(fc.Features))
	for _, record := range fc.Features {
		if record.WIS2Node == nil || record.WIS2Node.TopicHierarchy == "" {
			c.logger.Debug("Skipping record without topic hierarchy", "id", record.ID)
			continue
		}
		mappings[record.WIS2Node.TopicHierarchy] = record.WIS2Node.DataMappings
	}

	return mappings, nil
}

// CollectionMeta describes a catalog collection to create
type CollectionMeta struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// SetupCollection creates a collection, tolerating one that already exists
func (c *Client) SetupCollection(ctx context.Context, meta CollectionMeta) error {
	status, err := c.send(ctx, http.MethodPost,
		c.baseURL+"/collections", meta)
	if err != nil {
		return errors.WrapTransient(err, "Catalog", "SetupCollection", "create collection "+meta.ID)
	}
	if status == http.StatusConflict {
		c.logger.Debug("Collection already exists", "collection", meta.ID)
		return nil
	}
	if status >= 300 {
		return errors.WrapTransient(errors.ErrCatalogStatus,
			"Catalog", "SetupCollection", fmt.Sprintf("create collection %s: status %d", meta.ID, status))
	}
	return nil
}

// RemoveCollection removes a collection by identifier
func (c *Client) RemoveCollection(ctx context.Context, id string) error {
	status, err := c.send(ctx, http.MethodDelete,
		fmt.Sprintf("%s/collections/%s", c.baseURL, id), nil)
	if err != nil {
		return errors.WrapTransient(err, "Catalog", "RemoveCollection", "delete collection "+id)
	}
	if status >= 300 && status != http.StatusNotFound {
		return errors.WrapTransient(errors.ErrCatalogStatus,
			"Catalog", "RemoveCollection", fmt.Sprintf("delete collection %s: status %d", id, status))
	}
	return nil
}

// UpsertItem inserts or replaces an item in a collection
func (c *Client) UpsertItem(ctx context.Context, collection string, item any) error {
	status, err := c.send(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/items", c.baseURL, collection), item)
	if err != nil {
		return errors.WrapTransient(err, "Catalog", "UpsertItem", "upsert item into "+collection)
	}
	if status >= 300 {
		return errors.WrapTransient(errors.ErrCatalogStatus,
			"Catalog", "UpsertItem", fmt.Sprintf("upsert into %s: status %d", collection, status))
	}
	return nil
}

// PublishMetadata upserts a discovery-metadata record
func (c *Client) PublishMetadata(ctx context.Context, record json.RawMessage) error {
	return c.UpsertItem(ctx, DiscoveryCollection, record)
}

// getJSON performs a GET request and decodes the JSON response body
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d from %s", errors.ErrCatalogStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return retry.NonRetryable(fmt.Errorf("decode catalog response: %w", err))
	}
	return nil
}

// send performs a request with an optional JSON body and returns the status
func (c *Client) send(ctx context.Context, method, url string, body any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
