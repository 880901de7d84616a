package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
)

// Client is the gateway's broker connection.
//
// It owns the availability topic: "online" is published (retained) on every
// connect and the broker publishes "offline" through the will when the
// gateway drops. Subscriptions survive reconnects.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	statusTopic string
	connected   atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu sync.RWMutex
	hooks  hooks
}

// hooks are the optional observers set after construction.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures and reconnect notices.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. topic is the concrete topic, never
// the filter. A returned error is logged and the message is still
// acknowledged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first CONNACK.
//
// statusTopic is the availability topic used for the will and the online
// marker; "" selects DefaultStatusTopic. After a successful Connect paho
// keeps reconnecting on its own with the configured backoff.
func Connect(cfg config.MQTTConfig, statusTopic string) (*Client, error) {
	c := newClient(cfg, statusTopic)

	c.client = pahomqtt.NewClient(c.options)
	if err := wait(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs on its own goroutine and may lag behind the
	// token.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, statusTopic string) *Client {
	if statusTopic == "" {
		statusTopic = DefaultStatusTopic
	}

	c := &Client{
		cfg:           cfg,
		statusTopic:   statusTopic,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	opts.SetWill(statusTopic, PayloadOffline, 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.observers().logger; log != nil {
			log.Warn("mqtt reconnecting", "broker", cfg.Broker.Host, "port", cfg.Broker.Port)
		}
	})
	c.options = opts

	return c
}

func (c *Client) observers() hooks {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.hooks
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.resubscribe()
	c.client.Publish(c.statusTopic, byte(c.cfg.QoS), true, PayloadOnline)

	if fn := c.observers().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	if fn := c.observers().onDisconnect; fn != nil {
		fn(err)
	}
}

// resubscribe replays tracked filters after a reconnect. The broker forgets
// them because sessions are clean.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subMu.RUnlock()

	for _, s := range subs {
		token := c.client.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
		go func(topic string) {
			if err := wait(token, defaultPublishTimeout, ErrSubscribeFailed); err != nil {
				if log := c.observers().logger; log != nil {
					log.Warn("mqtt resubscribe failed", "topic", topic, "error", err)
				}
			}
		}(s.topic)
	}
}

// StatusTopic returns the availability topic.
func (c *Client) StatusTopic() string {
	return c.statusTopic
}

// Close marks the gateway offline and disconnects. A client that never
// connected closes without error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.client.Publish(c.statusTopic, byte(c.cfg.QoS), true, PayloadOffline).
			WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers fn to run after every connect, including
// reconnects, once subscriptions are restored.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.hooks.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect registers fn to run when the link is lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.hooks.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets where handler failures are reported. Without one they are
// dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.hooks.logger = logger
	c.hookMu.Unlock()
}

// wrapHandler adapts a MessageHandler to paho, logging returned errors and
// recovering panics so one bad message cannot kill the router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		log := c.observers().logger
		defer func() {
			if r := recover(); r != nil && log != nil {
				log.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil && log != nil {
			log.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
