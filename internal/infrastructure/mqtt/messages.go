package mqtt

import (
	"fmt"
	"slices"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize bounds one publish. Discovery configs are the largest
// payloads the gateway sends and stay far below it.
const maxPayloadSize = 256 << 10

// Publish sends payload to topic and waits for the broker's
// acknowledgement (at QoS 1 and 2). Publish topics must not contain
// wildcards.
//
// Retain discovery configs and availability; never retain commands or
// sensor states.
//
// Example:
//
//	err := client.Publish(topics.State(uid), []byte("turnon"), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, false); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return wait(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// Subscribe registers handler for a topic filter. Filters may use + for
// one level and a trailing # for the rest.
//
// Handlers run on paho's goroutines with panic recovery. Subscriptions are
// tracked and restored after a reconnect.
//
// Example:
//
//	err := client.Subscribe(topics.AllSets(), 1, bridge.handleSet)
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, true); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(subscription{topic: topic, qos: qos, handler: handler})
	if err := wait(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		c.untrack(topic)
		return err
	}
	return nil
}

// Unsubscribe drops a filter. Messages already in flight may still reach
// the handler.
func (c *Client) Unsubscribe(topic string) error {
	if err := checkTopic(topic, true); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(topic)
	return wait(c.client.Unsubscribe(topic), defaultPublishTimeout, ErrSubscribeFailed)
}

// SubscriptionCount returns the number of tracked filters.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// Subscriptions returns the tracked filters, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	topics := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	c.subMu.RUnlock()

	slices.Sort(topics)
	return topics
}

func (c *Client) track(s subscription) {
	c.subMu.Lock()
	c.subscriptions[s.topic] = s
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// wait blocks on a paho token and wraps a timeout or failure in kind.
func wait(token pahomqtt.Token, timeout time.Duration, kind error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no ack within %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// checkTopic validates a topic name, or a topic filter when filter is set.
// In a filter + must fill a whole level and # must be the last level.
func checkTopic(topic string, filter bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if !strings.ContainsAny(level, "+#") {
			continue
		}
		if !filter {
			return fmt.Errorf("%w: wildcard in %q", ErrInvalidTopic, topic)
		}
		if level == "+" || (level == "#" && i == len(levels)-1) {
			continue
		}
		return fmt.Errorf("%w: misplaced wildcard in %q", ErrInvalidTopic, topic)
	}
	return nil
}
