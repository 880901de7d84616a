package hass

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// Home Assistant components an entity may be announced as.
const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
	ComponentSwitch       = "switch"
	ComponentLight        = "light"
)

// Config is the root configuration for the Home Assistant bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Entities []EntityConfig `yaml:"entities"`
}

// BridgeConfig contains bridge identity and topic settings.
type BridgeConfig struct {
	// ID identifies this bridge in health reports.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`

	// DiscoveryPrefix is the Home Assistant discovery root.
	// Default: "homeassistant"
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// StatePrefix is the root of state, availability and command topics.
	// Default: "tellstick"
	StatePrefix string `yaml:"state_prefix"`
}

// EntityConfig describes one Home Assistant entity.
//
// Command entities match received commands by protocol, model, house and
// unit. Sensor entities match by protocol, model and sensorId and fan out
// into one entity per reported quantity.
type EntityConfig struct {
	Name     string `yaml:"name"`
	Class    string `yaml:"class"`
	Protocol string `yaml:"protocol"`
	Model    string `yaml:"model"`
	House    string `yaml:"house"`
	Unit     *int   `yaml:"unit"`
	SensorID *int   `yaml:"sensorId"`

	// Component is the Home Assistant platform. Default: "switch" for
	// commands, "sensor" for sensors.
	Component string `yaml:"component"`

	// Invert swaps turnon and turnoff between Home Assistant and the radio.
	Invert bool `yaml:"invert"`

	Optimistic  bool   `yaml:"optimistic"`
	DeviceClass string `yaml:"device_class"`
	Icon        string `yaml:"icon"`

	// AvailabilityTimeout marks sensor entities offline when no reading
	// arrived for this many seconds. 0 disables the check.
	AvailabilityTimeout int `yaml:"availability_timeout"`
}

// IsCommand reports whether the entity is a command entity.
func (e EntityConfig) IsCommand() bool {
	return e.Class == string(protocol.ClassCommand)
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TELLSTICK_HASS_KEY
// For example: TELLSTICK_HASS_STATE_PREFIX
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)
	cfg.applyEntityDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:              "tellstick-hass",
			HealthInterval:  30,
			DiscoveryPrefix: mqtt.DefaultDiscoveryPrefix,
			StatePrefix:     mqtt.DefaultStatePrefix,
		},
		Entities: []EntityConfig{},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TELLSTICK_HASS_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELLSTICK_HASS_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("TELLSTICK_HASS_DISCOVERY_PREFIX"); v != "" {
		cfg.Bridge.DiscoveryPrefix = v
	}
	if v := os.Getenv("TELLSTICK_HASS_STATE_PREFIX"); v != "" {
		cfg.Bridge.StatePrefix = v
	}
}

func (c *Config) applyEntityDefaults() {
	for i := range c.Entities {
		e := &c.Entities[i]
		if e.Component != "" {
			continue
		}
		if e.IsCommand() {
			e.Component = ComponentSwitch
		} else {
			e.Component = ComponentSensor
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateEntities()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBridge validates bridge settings.
func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	if c.Bridge.DiscoveryPrefix == "" {
		errs = append(errs, "bridge.discovery_prefix is required")
	}
	if c.Bridge.StatePrefix == "" || strings.ContainsAny(c.Bridge.StatePrefix, "+#") {
		errs = append(errs, "bridge.state_prefix must be a non-empty topic without wildcards")
	}
	return errs
}

var validComponents = map[string]bool{
	ComponentSensor:       true,
	ComponentBinarySensor: true,
	ComponentSwitch:       true,
	ComponentLight:        true,
}

// validateEntities validates entity configurations.
func (c *Config) validateEntities() []string {
	var errs []string
	uids := make(map[string]bool)

	for i, e := range c.Entities {
		switch protocol.Class(e.Class) {
		case protocol.ClassCommand:
			if e.House == "" {
				errs = append(errs, fmt.Sprintf("entities[%d].house is required for command entities", i))
			}
		case protocol.ClassSensor:
			if e.SensorID == nil {
				errs = append(errs, fmt.Sprintf("entities[%d].sensorId is required for sensor entities", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("entities[%d].class %q is invalid (use command or sensor)", i, e.Class))
			continue
		}

		if e.Protocol == "" {
			errs = append(errs, fmt.Sprintf("entities[%d].protocol is required", i))
		}
		if e.Component != "" && !validComponents[e.Component] {
			errs = append(errs, fmt.Sprintf("entities[%d].component %q is invalid", i, e.Component))
		}
		if e.AvailabilityTimeout < 0 {
			errs = append(errs, fmt.Sprintf("entities[%d].availability_timeout must not be negative", i))
		}

		uid := newEntity(e, "").UniqueID()
		if uids[uid] {
			errs = append(errs, fmt.Sprintf("entities[%d] duplicates unique id %q", i, uid))
		}
		uids[uid] = true
	}

	return errs
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// Topics returns the topic builders for the appliance with the given MAC.
func (c *Config) Topics(mac string) mqtt.Topics {
	return mqtt.NewTopics(c.Bridge.DiscoveryPrefix, c.Bridge.StatePrefix, mac)
}
