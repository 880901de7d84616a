//nolint:goconst // Test files use repeated literals for clarity
package hass

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entities.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "test-hass-bridge"
  health_interval: 15
  discovery_prefix: "ha"
  state_prefix: "rf"

entities:
  - name: "Hallway"
    class: command
    protocol: arctech
    model: selflearning
    house: "1234"
    unit: 1
    component: light
  - name: "Outdoor"
    class: sensor
    protocol: fineoffset
    model: temperaturehumidity
    sensorId: 135
    availability_timeout: 900
  - class: command
    protocol: everflourish
    model: selflearning
    house: "5"
    unit: 2
    invert: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Bridge.ID != "test-hass-bridge" {
		t.Errorf("Bridge.ID = %q, want test-hass-bridge", cfg.Bridge.ID)
	}
	if cfg.GetHealthInterval() != 15*time.Second {
		t.Errorf("GetHealthInterval() = %v, want 15s", cfg.GetHealthInterval())
	}
	if len(cfg.Entities) != 3 {
		t.Fatalf("len(Entities) = %d, want 3", len(cfg.Entities))
	}

	hall := cfg.Entities[0]
	if !hall.IsCommand() || hall.Component != ComponentLight || *hall.Unit != 1 {
		t.Errorf("Entities[0] = %+v", hall)
	}
	out := cfg.Entities[1]
	if out.IsCommand() || out.Component != ComponentSensor || *out.SensorID != 135 || out.AvailabilityTimeout != 900 {
		t.Errorf("Entities[1] = %+v", out)
	}
	if cfg.Entities[2].Component != ComponentSwitch || !cfg.Entities[2].Invert {
		t.Errorf("Entities[2] = %+v", cfg.Entities[2])
	}

	topics := cfg.Topics("ACCA54000000")
	if got := topics.Health(); got != "rf/ACCA54000000/health" {
		t.Errorf("Topics().Health() = %q", got)
	}
	if got := topics.Discovery("light", "x"); got != "ha/light/rf_ACCA54000000/x/config" {
		t.Errorf("Topics().Discovery() = %q", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "entities: []\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Bridge.ID != "tellstick-hass" {
		t.Errorf("Default Bridge.ID = %q", cfg.Bridge.ID)
	}
	if cfg.Bridge.HealthInterval != 30 {
		t.Errorf("Default HealthInterval = %d, want 30", cfg.Bridge.HealthInterval)
	}
	if cfg.Bridge.DiscoveryPrefix != "homeassistant" || cfg.Bridge.StatePrefix != "tellstick" {
		t.Errorf("Default prefixes = %q, %q", cfg.Bridge.DiscoveryPrefix, cfg.Bridge.StatePrefix)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "from-file"
`)

	t.Setenv("TELLSTICK_HASS_ID", "from-env")
	t.Setenv("TELLSTICK_HASS_DISCOVERY_PREFIX", "hass")
	t.Setenv("TELLSTICK_HASS_STATE_PREFIX", "rf433")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Bridge.ID != "from-env" {
		t.Errorf("Bridge.ID = %q, want from-env", cfg.Bridge.ID)
	}
	if cfg.Bridge.DiscoveryPrefix != "hass" || cfg.Bridge.StatePrefix != "rf433" {
		t.Errorf("prefixes = %q, %q", cfg.Bridge.DiscoveryPrefix, cfg.Bridge.StatePrefix)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig should fail for a missing file")
	}

	path := writeConfig(t, "entities: [unclosed\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig should fail for invalid YAML")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "missing bridge id",
			modify:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: "bridge.id is required",
		},
		{
			name:    "zero health interval",
			modify:  func(c *Config) { c.Bridge.HealthInterval = 0 },
			wantErr: "health_interval",
		},
		{
			name:    "wildcard state prefix",
			modify:  func(c *Config) { c.Bridge.StatePrefix = "tell/#" },
			wantErr: "state_prefix",
		},
		{
			name: "unknown class",
			modify: func(c *Config) {
				c.Entities = append(c.Entities, EntityConfig{Class: "remote", Protocol: "arctech"})
			},
			wantErr: `class "remote" is invalid`,
		},
		{
			name: "command without house",
			modify: func(c *Config) {
				c.Entities = append(c.Entities, EntityConfig{Class: "command", Protocol: "arctech"})
			},
			wantErr: "house is required",
		},
		{
			name: "sensor without id",
			modify: func(c *Config) {
				c.Entities = append(c.Entities, EntityConfig{Class: "sensor", Protocol: "mandolyn"})
			},
			wantErr: "sensorId is required",
		},
		{
			name: "missing protocol",
			modify: func(c *Config) {
				c.Entities = append(c.Entities, EntityConfig{Class: "command", House: "1"})
			},
			wantErr: "protocol is required",
		},
		{
			name: "bad component",
			modify: func(c *Config) {
				c.Entities[0].Component = "fan"
			},
			wantErr: `component "fan" is invalid`,
		},
		{
			name: "negative timeout",
			modify: func(c *Config) {
				c.Entities[2].AvailabilityTimeout = -1
			},
			wantErr: "availability_timeout",
		},
		{
			name: "duplicate unique id",
			modify: func(c *Config) {
				dup := c.Entities[0]
				dup.Name = "Hallway again"
				c.Entities = append(c.Entities, dup)
			},
			wantErr: "duplicates unique id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidationSuccess(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
