// Package natsclient provides the broker adapter: a managed NATS connection
// used for inbound notification subscriptions, outbound publishes and
// JetStream object-store access.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wmo-im/wis2node/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned when an operation requires an open connection
var ErrNotConnected = stderrors.New("not connected to NATS")

// MsgHandler receives an inbound broker message. The handler may block;
// blocking propagates backpressure into the NATS pending buffers rather
// than growing an unbounded in-process queue.
type MsgHandler func(subject string, payload []byte)

// Client manages a NATS connection for the wis2node process
type Client struct {
	url        string
	status     atomic.Value // stores ConnectionStatus
	reconnects atomic.Int32

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	username   string
	password   string
	token      string
	clientName string

	// Callbacks
	onDisconnect func(error)
	onReconnect  func()

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		clientName:    "wis2node",
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsConnected returns true if the connection is established
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Reconnects returns the number of reconnections since Connect
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

// Connect establishes the connection to the NATS server
func (c *Client) Connect(ctx context.Context) error {
	c.status.Store(StatusConnecting)

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.status.Store(StatusConnected)
			c.reconnects.Add(1)
			if c.onReconnect != nil {
				c.onReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(StatusDisconnected)
		}),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.js = js
		c.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			c.status.Store(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "establish connection")
	}

	c.status.Store(StatusConnected)
	return nil
}

// SetConnection injects an established connection (for testing)
func (c *Client) SetConnection(conn *nats.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	if conn != nil && conn.IsConnected() {
		c.status.Store(StatusConnected)
	}
}

// Subscribe subscribes to a subject pattern. The handler is invoked from the
// NATS delivery goroutine and receives the concrete subject plus payload.
func (c *Client) Subscribe(subject string, handler MsgHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Subscribe", "subscribe "+subject)
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+subject)
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Publish publishes a message to a subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", "publish "+subject)
	}

	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

// JetStream returns the JetStream handle
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// ObjectStore opens a named object-store bucket, creating it if absent
func (c *Client) ObjectStore(ctx context.Context, bucket string) (jetstream.ObjectStore, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "ObjectStore", "open bucket "+bucket)
	}

	os, err := js.ObjectStore(ctx, bucket)
	if err == nil {
		return os, nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, errors.WrapTransient(err, "Client", "ObjectStore", "open bucket "+bucket)
	}

	os, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "ObjectStore", "create bucket "+bucket)
	}
	return os, nil
}

// Close drains subscriptions and closes the connection. Safe to call once;
// subsequent calls are no-ops.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if c.conn != nil {
		drainTimeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() {
			drainDone <- c.conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(drainTimeout):
			errs = append(errs, fmt.Errorf("drain timeout after %v", drainTimeout))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain connection"))
		}

		c.conn.Close()
		c.conn = nil
	}

	// Clear credentials
	c.username = ""
	c.password = ""
	c.token = ""

	c.status.Store(StatusDisconnected)

	return stderrors.Join(errs...)
}
