package hass

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
)

// MQTT message types exchanged with Home Assistant and other clients.

// CommandMessage is the JSON form of a set payload. A bare method name
// ("turnon") is accepted as well.
// Topic: {state_prefix}/{mac}/{uid}/set
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. Generated when empty.
	ID string `json:"id,omitempty"`

	// Method is the method name (e.g., "turnon", "dim").
	Method string `json:"method"`

	// Param is the dim level (0-255) for "dim".
	Param int `json:"param,omitempty"`

	// Source indicates where the command originated.
	// Values: "mqtt", "api", "schedule", "nats"
	Source string `json:"source,omitempty"`
}

// ParseCommandMessage decodes a set payload.
func ParseCommandMessage(payload []byte) (CommandMessage, error) {
	text := strings.TrimSpace(string(payload))
	var cmd CommandMessage
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
	} else {
		cmd.Method = text
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}
	return cmd, nil
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was handed to the session.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: {state_prefix}/{mac}/{uid}/ack
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Entity    string    `json:"entity"`
	Method    string    `json:"method,omitempty"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeNotConfigured  = "NOT_CONFIGURED"
	ErrCodeSessionError   = "SESSION_ERROR"
)

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, uid string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Entity:    uid,
		Method:    cmd.Method,
		Status:    status,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, uid, code, message string) AckMessage {
	ack := NewAckMessage(cmd, uid, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// DeviceInfo groups entities under one device in Home Assistant.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryConfig is the retained Home Assistant discovery payload.
// Topic: {discovery_prefix}/{component}/{node_id}/{uid}/config
type DiscoveryConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	CommandTopic        string     `json:"command_topic,omitempty"`
	Optimistic          bool       `json:"optimistic,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	Icon                string     `json:"icon,omitempty"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	PayloadOn           string     `json:"payload_on,omitempty"`
	PayloadOff          string     `json:"payload_off,omitempty"`
	Device              DeviceInfo `json:"device"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: {state_prefix}/{mac}/health
// QoS: 1, Retained: Yes
// Interval: Every 30 seconds
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Session contains appliance session details.
	Session *SessionStatus `json:"session,omitempty"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// EntitiesManaged counts configured and spawned entities.
	EntitiesManaged int `json:"entities_managed"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// SessionStatus describes the appliance session.
type SessionStatus struct {
	State            string     `json:"state"`
	LastRegistration *time.Time `json:"last_registration,omitempty"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	PacketsReceived uint64 `json:"packets_received"`
	CommandsSent    uint64 `json:"commands_sent"`
	DecodeErrors    uint64 `json:"decode_errors"`
	SendErrors      uint64 `json:"send_errors"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats controller.Stats, entityCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:          bridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         version,
		UptimeSeconds:   int64(time.Since(startTime).Seconds()),
		EntitiesManaged: entityCount,
	}

	msg.Session = &SessionStatus{State: stats.State.String()}
	if !stats.LastRegistration.IsZero() {
		t := stats.LastRegistration.UTC()
		msg.Session.LastRegistration = &t
	}
	if !stats.LastActivity.IsZero() {
		t := stats.LastActivity.UTC()
		msg.Session.LastActivity = &t
	}

	msg.Statistics = &BridgeStatistics{
		PacketsReceived: stats.PacketsRx,
		CommandsSent:    stats.CommandsTx,
		DecodeErrors:    stats.DecodeErrors,
		SendErrors:      stats.SendErrors,
	}

	return msg
}
