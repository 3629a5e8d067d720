package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// defaultBuffer is the async observer queue size when Options.Buffer is unset.
const defaultBuffer = 256

// Publisher sends MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Subscriber manages MQTT subscriptions.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTClient is the subset of *mqtt.Client the bridge needs.
// Tests substitute an in-memory implementation.
type MQTTClient interface {
	Publisher
	Subscriber
}

// Logger is the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds the dependencies for New.
type Options struct {
	// Table is the state table to mirror. Required.
	Table *statestore.Table

	// MQTT is the broker client. Required.
	MQTT MQTTClient

	// Room scopes every topic. Required.
	Room string

	// QoS for all publishes and subscriptions.
	QoS byte

	// Buffer is the queue size for the table observer. Defaults to 256.
	Buffer int

	// Logger is optional.
	Logger Logger
}

// Bridge connects a State Table to MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	table  *statestore.Table
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte
	buffer int
	logger Logger

	subID   statestore.SubscriptionID
	started bool
	mu      sync.Mutex

	// pubMu orders state publishes between the observer and snapshots.
	pubMu sync.Mutex

	published atomic.Uint64
	applied   atomic.Uint64
	queries   atomic.Uint64
	failures  atomic.Uint64
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Published uint64 `json:"published"`
	Applied   uint64 `json:"applied"`
	Queries   uint64 `json:"queries"`
	Failures  uint64 `json:"failures"`
}

// New creates a bridge. Call Start to begin mirroring.
func New(opts Options) (*Bridge, error) {
	if opts.Table == nil {
		return nil, ErrMissingTable
	}
	if opts.MQTT == nil {
		return nil, ErrMissingClient
	}
	if opts.Room == "" {
		return nil, ErrMissingRoom
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Bridge{
		table:  opts.Table,
		mqtt:   opts.MQTT,
		topics: mqtt.Topics{Room: opts.Room},
		qos:    opts.QoS,
		buffer: buffer,
		logger: opts.Logger,
	}, nil
}

// Start publishes the current table contents, subscribes to the set and
// query topics, and registers an async table observer for later changes.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	// Subscribe before the snapshot so no change falls between the two.
	id, err := b.table.Subscribe(b.publishChange, statestore.WithAsync(b.buffer))
	if err != nil {
		return fmt.Errorf("subscribe to table: %w", err)
	}
	b.subID = id

	b.publishSnapshot()

	if err := b.mqtt.Subscribe(b.topics.Set(), b.qos, b.handleSet); err != nil {
		b.table.Unsubscribe(id)
		return fmt.Errorf("subscribe to %s: %w", b.topics.Set(), err)
	}
	if err := b.mqtt.Subscribe(b.topics.Query(), b.qos, b.handleQuery); err != nil {
		b.table.Unsubscribe(id)
		b.unsubscribe(b.topics.Set())
		return fmt.Errorf("subscribe to %s: %w", b.topics.Query(), err)
	}

	b.started = true
	b.logInfo("bridge started",
		"room", b.topics.Room,
		"set_topic", b.topics.Set(),
		"query_topic", b.topics.Query(),
		"keys", b.table.Len())
	return nil
}

// Stop removes the table observer and MQTT subscriptions. It is safe to
// call more than once.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return
	}
	b.table.Unsubscribe(b.subID)
	b.unsubscribe(b.topics.Set())
	b.unsubscribe(b.topics.Query())
	b.started = false
	b.logInfo("bridge stopped")
}

// Resync republishes every state topic. It is registered as the MQTT
// reconnect callback, since a broker restart may have lost retained messages.
func (b *Bridge) Resync() {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	if !started {
		return
	}
	b.logInfo("republishing state after reconnect", "keys", b.table.Len())
	b.publishSnapshot()
}

// publishSnapshot publishes the current value of every key.
//
// The table is read while pubMu is held, so the observer cannot publish a
// newer value in between. A change committed after the read is already
// queued for the observer and is published once the snapshot finishes.
func (b *Bridge) publishSnapshot() {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	now := time.Now()
	for _, e := range b.table.Entries() {
		b.publishLocked(statestore.Change{Key: e.Key, Value: e.Value, At: now})
	}
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Applied:   b.applied.Load(),
		Queries:   b.queries.Load(),
		Failures:  b.failures.Load(),
	}
}

func (b *Bridge) unsubscribe(topic string) {
	if err := b.mqtt.Unsubscribe(topic); err != nil {
		b.logWarn("unsubscribe failed", "topic", topic, "error", err)
	}
}

// publishChange publishes c retained on its state topic. It is the table
// observer.
func (b *Bridge) publishChange(c statestore.Change) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.publishLocked(c)
}

func (b *Bridge) publishLocked(c statestore.Change) {
	payload, err := json.Marshal(StateMessage{
		Key:       c.Key,
		Value:     c.Value,
		Timestamp: c.At.UTC(),
	})
	if err != nil {
		b.failures.Add(1)
		b.logError("failed to marshal state", "key", c.Key, "error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.State(c.Key), payload, b.qos, true); err != nil {
		b.failures.Add(1)
		b.logWarn("failed to publish state", "key", c.Key, "error", err)
		return
	}
	b.published.Add(1)
}

// handleSet applies a SetMessage to the table.
func (b *Bridge) handleSet(_ string, payload []byte) error {
	msg, err := decodeSet(payload)
	if err != nil {
		b.failures.Add(1)
		return err
	}

	result := SetResult{ID: msg.ID, Timestamp: time.Now().UTC()}

	switch changed, err := b.table.UpdateAny(msg.Key, msg.Value); {
	case errors.Is(err, statestore.ErrUnsupportedValue):
		result.Error = &ResponseError{Code: ErrCodeUnsupportedValue, Message: err.Error()}
	case err != nil:
		result.Error = &ResponseError{Code: ErrCodeInvalidMessage, Message: err.Error()}
	case !changed && (msg.Key == "" || msg.Value == nil):
		result.Error = &ResponseError{Code: ErrCodeInvalidKey, Message: "key and value are required"}
	default:
		result.Success = true
		result.Changed = changed
		if changed {
			b.applied.Add(1)
		}
		b.logDebug("set applied",
			"key", msg.Key,
			"changed", changed,
			"source", msg.Source)
	}

	if result.Error != nil {
		b.failures.Add(1)
	}
	if msg.ID != "" {
		b.respond(msg.ID, result)
	}
	if result.Error != nil {
		return fmt.Errorf("set %q: %s", msg.Key, result.Error.Message)
	}
	return nil
}

// handleQuery answers a QueryMessage on its response topic.
func (b *Bridge) handleQuery(_ string, payload []byte) error {
	msg, err := decodeQuery(payload)
	if err != nil {
		b.failures.Add(1)
		return err
	}
	b.queries.Add(1)

	resp := QueryResponse{ID: msg.ID, Timestamp: time.Now().UTC()}

	if len(msg.Match) > 0 {
		if doc, ok := b.table.FindByAllSubstrings(msg.Match); ok {
			resp.Success = true
			resp.Match = &doc
		} else {
			resp.Error = &ResponseError{Code: ErrCodeNotFound, Message: "no key contains all substrings"}
		}
	} else {
		doc, err := b.table.ListFiltered(msg.Filter)
		if err != nil {
			resp.Error = &ResponseError{Code: ErrCodeInvalidPattern, Message: err.Error()}
		} else {
			resp.Success = true
			resp.Result = &doc
		}
	}

	b.respond(msg.ID, resp)
	return nil
}

func (b *Bridge) respond(id string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal response", "id", id, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Response(id), payload, b.qos, false); err != nil {
		b.failures.Add(1)
		b.logWarn("failed to publish response", "id", id, "error", err)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Error(msg, args...)
	}
}
