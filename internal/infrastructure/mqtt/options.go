package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	defaultRetryDelay    = time.Second
	defaultMaxRetryDelay = 2 * time.Minute

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Availability payloads. These are Home Assistant's defaults, so discovery
// configs do not need to name them.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// DefaultStatusTopic is the availability topic when Connect gets none.
const DefaultStatusTopic = "tellstick/status"

// brokerURL returns tcp://host:port, or ssl:// with TLS on.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// seconds converts a config value, falling back for non-positive values.
func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

// buildClientOptions maps the gateway config onto paho options. Sessions
// are clean; the client restores its own subscriptions.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay, defaultRetryDelay)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay, defaultMaxRetryDelay)).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}
