package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
)

// Client is a paho connection scoped to one room's State Store topics.
//
// Subscriptions made through Subscribe survive reconnects. All methods are
// safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions is replayed by handleConnect after every reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	hooksMu sync.RWMutex
	hooks   hooks
}

// hooks are the optional observers of connection events.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. paho calls handlers on its own
// goroutines; a returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker for roomID and blocks until the first
// connection succeeds or the connect timeout passes.
//
// A retained offline will is registered on the room status topic before
// dialling, and a retained online status is published on every connect.
// Failures are wrapped in ErrConnectionFailed.
func Connect(cfg config.MQTTConfig, roomID string) (*Client, error) {
	c := newClient(cfg, roomID)
	configureLWT(c.options, c.topics, cfg.Broker.ClientID)

	c.options.
		SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.logInfo("MQTT reconnecting", "broker", cfg.Broker.Host)
		})

	c.client = pahomqtt.NewClient(c.options)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// handleConnect may not have run yet.
	c.connected.Store(true)
	return c, nil
}

// newClient builds an unconnected Client; Connect attaches the paho client.
func newClient(cfg config.MQTTConfig, roomID string) *Client {
	return &Client{
		cfg:           cfg,
		options:       buildClientOptions(cfg),
		topics:        Topics{Room: roomID},
		subscriptions: make(map[string]subscription),
	}
}

// Topics returns the topic builders for this client's room.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

func (c *Client) currentHooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	c.client.Publish(c.topics.Status(), c.QoS(), true, buildOnlinePayload(c.cfg.Broker.ClientID))

	if fn := c.currentHooks().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	h := c.currentHooks()
	if h.logger != nil {
		h.logger.Warn("MQTT connection lost", "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

// Close publishes a retained graceful-shutdown status, then disconnects.
// A client that never connected closes without error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.client.Publish(c.topics.Status(), c.QoS(), true, buildOfflinePayload(c.cfg.Broker.ClientID)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state, confirmed with paho.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers fn to run after the initial connect and after
// every reconnect, once subscriptions are restored.
func (c *Client) SetOnConnect(fn func()) {
	c.hooksMu.Lock()
	c.hooks.onConnect = fn
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hooksMu.Lock()
	c.hooks.onDisconnect = fn
	c.hooksMu.Unlock()
}

// SetLogger enables logging of connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.hooks.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) logInfo(msg string, args ...any) {
	if l := c.currentHooks().logger; l != nil {
		l.Info(msg, args...)
	}
}

// wrapHandler adapts handler to paho, logging returned errors and
// recovering panics so one bad message cannot kill paho's router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		logger := c.currentHooks().logger

		defer func() {
			if r := recover(); r != nil && logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()

		if err := handler(topic, msg.Payload()); err != nil && logger != nil {
			logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
