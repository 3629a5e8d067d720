package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client records state history to an InfluxDB v2 bucket.
//
// Writes are batched by the library and never block the caller. The client
// is safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected   atomic.Bool
	onError     atomic.Pointer[func(error)]
	writeErrors atomic.Uint64
}

// Connect pings the server at cfg.URL and, if it answers healthy, opens a
// batched write API on cfg.Org/cfg.Bucket.
//
// The ping is bounded by ctx and an internal ten second limit.
// ErrDisabled is returned when cfg.Enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushInterval := batchSettings(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)). // #nosec G115 -- batchSettings guarantees a positive value
		SetFlushInterval(uint(flushInterval.Milliseconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return newClient(client, client.WriteAPI(cfg.Org, cfg.Bucket), cfg), nil
}

// newClient marks the client connected and starts draining writeAPI's error
// channel; an undrained channel stalls the library's writer.
func newClient(client influxdb2.Client, writeAPI api.WriteAPI, cfg config.InfluxDBConfig) *Client {
	c := &Client{client: client, writeAPI: writeAPI, cfg: cfg}
	c.connected.Store(true)
	go c.drainErrors(writeAPI.Errors())
	return c
}

// batchSettings applies defaults to non-positive batch size and flush
// interval values.
func batchSettings(cfg config.InfluxDBConfig) (int, time.Duration) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := time.Duration(cfg.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return batchSize, flushInterval
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// Close flushes buffered points and releases the connection. Later calls
// are no-ops. The returned error is always nil.
func (c *Client) Close() error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck actively pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not yet been called. It does not
// contact the server; use HealthCheck for that.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetOnError registers fn to receive asynchronous batch write failures.
// A nil fn removes the callback.
func (c *Client) SetOnError(fn func(error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// WriteErrors returns the number of batch write failures reported so far.
func (c *Client) WriteErrors() uint64 {
	return c.writeErrors.Load()
}

// Flush blocks until buffered points are sent. It does nothing after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
