package mqtt

import (
	"fmt"
	"strings"
)

// Default topic prefixes.
const (
	// DefaultDiscoveryPrefix is where Home Assistant listens for entity configs.
	DefaultDiscoveryPrefix = "homeassistant"

	// DefaultStatePrefix is the root of every gateway-owned topic.
	DefaultStatePrefix = "tellstick"
)

// Topics provides builders for the gateway's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Entity topics hang off {state_prefix}/{mac}/{uid}; discovery configs live
// under the Home Assistant discovery prefix:
//
//	topics := mqtt.NewTopics("", "", "ACCA54000000")
//	topics.State("command_arctech_selflearning_1_1")
//	// Returns: "tellstick/ACCA54000000/command_arctech_selflearning_1_1/state"
type Topics struct {
	DiscoveryPrefix string
	StatePrefix     string
	MAC             string
}

// NewTopics returns topic builders for one appliance. Empty prefixes take
// their defaults.
func NewTopics(discoveryPrefix, statePrefix, mac string) Topics {
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	if statePrefix == "" {
		statePrefix = DefaultStatePrefix
	}
	return Topics{
		DiscoveryPrefix: discoveryPrefix,
		StatePrefix:     statePrefix,
		MAC:             mac,
	}
}

// =============================================================================
// Entity Topics
// =============================================================================

// NodeID identifies the appliance in discovery topics.
//
// Example: tellstick_ACCA54000000
func (t Topics) NodeID() string {
	return t.StatePrefix + "_" + t.MAC
}

// Base returns the root topic of one entity.
//
// Example: tellstick/ACCA54000000/command_arctech_selflearning_1_1
func (t Topics) Base(uid string) string {
	return fmt.Sprintf("%s/%s/%s", t.StatePrefix, t.MAC, uid)
}

// State returns the topic an entity's state is published on.
func (t Topics) State(uid string) string {
	return t.Base(uid) + "/state"
}

// Avail returns the availability topic of an entity.
func (t Topics) Avail(uid string) string {
	return t.Base(uid) + "/avail"
}

// Set returns the command topic of an entity.
func (t Topics) Set(uid string) string {
	return t.Base(uid) + "/set"
}

// Ack returns the topic command acknowledgements are published on.
func (t Topics) Ack(uid string) string {
	return t.Base(uid) + "/ack"
}

// Discovery returns the config topic for an entity.
//
// Example: homeassistant/switch/tellstick_ACCA54000000/command_arctech_selflearning_1_1/config
func (t Topics) Discovery(component, uid string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.DiscoveryPrefix, component, t.NodeID(), uid)
}

// =============================================================================
// Gateway Topics
// =============================================================================

// Status returns the gateway availability topic, also used as the LWT.
//
// Example: tellstick/ACCA54000000/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", t.StatePrefix, t.MAC)
}

// Health returns the topic for periodic health reports.
//
// Example: tellstick/ACCA54000000/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/%s/health", t.StatePrefix, t.MAC)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSets returns a pattern matching every entity command topic.
//
// Pattern: tellstick/ACCA54000000/+/set
func (t Topics) AllSets() string {
	return fmt.Sprintf("%s/%s/+/set", t.StatePrefix, t.MAC)
}

// UIDFromSet extracts the entity uid from a concrete set topic.
// It reports false when topic is not a set topic of this appliance.
func (t Topics) UIDFromSet(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/", t.StatePrefix, t.MAC)
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", false
	}
	uid, ok := strings.CutSuffix(rest, "/set")
	if !ok || uid == "" || strings.Contains(uid, "/") {
		return "", false
	}
	return uid, true
}
