package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// ===== Load =====

func TestLoad_ValidConfig(t *testing.T) {
	content := `
tellstick:
  host: "192.168.1.20"
  mac: "ACCA54000000"
  repeat_count: 3
  repeat_delay_ms: 250
homeassistant:
  enabled: true
  entities_file: "/etc/tellstick/entities.yaml"
database:
  enabled: true
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
schedules:
  - spec: "0 7 * * *"
    entity: "hall"
    method: "turnon"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Tellstick.Host != "192.168.1.20" {
		t.Errorf("Tellstick.Host = %q, want %q", cfg.Tellstick.Host, "192.168.1.20")
	}
	if cfg.Tellstick.RepeatCount != 3 {
		t.Errorf("Tellstick.RepeatCount = %d, want 3", cfg.Tellstick.RepeatCount)
	}
	if got := cfg.GetRepeatDelay(); got != 250*time.Millisecond {
		t.Errorf("GetRepeatDelay() = %v, want 250ms", got)
	}
	if !cfg.HomeAssistant.Enabled {
		t.Error("HomeAssistant.Enabled = false, want true")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Entity != "hall" {
		t.Errorf("Schedules = %+v, want one entry for hall", cfg.Schedules)
	}

	// Untouched fields keep their defaults.
	if cfg.Tellstick.CommandPort != 42314 {
		t.Errorf("Tellstick.CommandPort = %d, want 42314", cfg.Tellstick.CommandPort)
	}
	if got := cfg.GetRegistrationInterval(); got != 10*time.Minute {
		t.Errorf("GetRegistrationInterval() = %v, want 10m", got)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Tellstick.DiscoveryPort != 30303 {
		t.Errorf("DiscoveryPort = %d, want 30303", cfg.Tellstick.DiscoveryPort)
	}
	if got := cfg.GetRecvTimeout(); got != 5*time.Second {
		t.Errorf("GetRecvTimeout() = %v, want 5s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
tellstick:
  repeat_count: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for repeat_count 0, got nil")
	}
	if !strings.Contains(err.Error(), "repeat_count") {
		t.Errorf("error = %v, want mention of repeat_count", err)
	}
}

// ===== Environment =====

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELLSTICK_HOST", "10.0.0.5")
	t.Setenv("TELLSTICK_REPEAT_COUNT", "5")
	t.Setenv("TELLSTICK_MQTT_HOST", "mqtt.env")
	t.Setenv("TELLSTICK_MQTT_PORT", "8883")
	t.Setenv("TELLSTICK_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "tellstick:\n  host: \"192.168.1.20\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tellstick.Host != "10.0.0.5" {
		t.Errorf("Tellstick.Host = %q, want env value", cfg.Tellstick.Host)
	}
	if cfg.Tellstick.RepeatCount != 5 {
		t.Errorf("RepeatCount = %d, want 5", cfg.Tellstick.RepeatCount)
	}
	if cfg.MQTT.Broker.Host != "mqtt.env" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT broker = %s:%d, want mqtt.env:8883", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvServiceOverrides(t *testing.T) {
	t.Setenv("TELLSTICK_API_PORT", "9090")
	t.Setenv("TELLSTICK_INFLUXDB_URL", "http://influx.lan:8086")
	t.Setenv("TELLSTICK_ENTITIES_FILE", "/etc/tellstick/entities.yaml")
	t.Setenv("TELLSTICK_NATS_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.URL != "http://influx.lan:8086" {
		t.Errorf("InfluxDB.URL = %q", cfg.InfluxDB.URL)
	}
	if cfg.HomeAssistant.EntitiesFile != "/etc/tellstick/entities.yaml" {
		t.Errorf("EntitiesFile = %q", cfg.HomeAssistant.EntitiesFile)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("NATS.URL = %q, empty override should keep default", cfg.NATS.URL)
	}
}

func TestLoad_EnvIgnoresBadInt(t *testing.T) {
	t.Setenv("TELLSTICK_MQTT_PORT", "not-a-port")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("TELLSTICK_MAC=ACCA54112233\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	// Preset variables are not overwritten.
	t.Setenv("TELLSTICK_MAC", "")
	os.Unsetenv("TELLSTICK_MAC")
	t.Setenv("TELLSTICK_HOST", "preset")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("TELLSTICK_MAC") })

	if got := os.Getenv("TELLSTICK_MAC"); got != "ACCA54112233" {
		t.Errorf("TELLSTICK_MAC = %q, want value from .env", got)
	}
	if got := os.Getenv("TELLSTICK_HOST"); got != "preset" {
		t.Errorf("TELLSTICK_HOST = %q, want preset", got)
	}
}

// ===== Validate =====

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad command port",
			mutate:  func(c *Config) { c.Tellstick.CommandPort = 70000 },
			wantErr: "tellstick.command_port",
		},
		{
			name:    "zero recv timeout",
			mutate:  func(c *Config) { c.Tellstick.RecvTimeout = 0 },
			wantErr: "tellstick.recv_timeout",
		},
		{
			name:    "negative repeat delay",
			mutate:  func(c *Config) { c.Tellstick.RepeatDelayMS = -1 },
			wantErr: "tellstick.repeat_delay_ms",
		},
		{
			name: "bridge without entities file",
			mutate: func(c *Config) {
				c.HomeAssistant.Enabled = true
				c.HomeAssistant.EntitiesFile = ""
			},
			wantErr: "homeassistant.entities_file",
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.HomeAssistant.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name:    "influx without bucket",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://influx:8086" },
			wantErr: "influxdb.url and influxdb.bucket",
		},
		{
			name:    "api without secret",
			mutate:  func(c *Config) { c.API.Enabled = true },
			wantErr: "security.jwt.secret is required",
		},
		{
			name: "api with short secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: "at least 32 characters",
		},
		{
			name: "api with valid secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = validJWTSecret
			},
		},
		{
			name:    "schedule missing method",
			mutate:  func(c *Config) { c.Schedules = []ScheduleConfig{{Spec: "@daily", Entity: "hall"}} },
			wantErr: "schedules[0].method",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "file output without path",
			mutate:  func(c *Config) { c.Logging.Output = "file"; c.Logging.File.Path = "" },
			wantErr: "logging.file.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Tellstick.RepeatCount = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want errors")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration errors: ") {
		t.Errorf("error = %q, want configuration errors prefix", msg)
	}
	if !strings.Contains(msg, "repeat_count") || !strings.Contains(msg, "logging.format") {
		t.Errorf("error = %q, want both failures reported", msg)
	}
}

// ===== Durations =====

func TestConfig_Durations(t *testing.T) {
	cfg := Default()
	cfg.API.Timeouts = APITimeoutConfig{Read: 1, Write: 2, Idle: 3}
	cfg.Database.RetentionDays = 2

	if got := cfg.GetReadTimeout(); got != time.Second {
		t.Errorf("GetReadTimeout() = %v", got)
	}
	if got := cfg.GetWriteTimeout(); got != 2*time.Second {
		t.Errorf("GetWriteTimeout() = %v", got)
	}
	if got := cfg.GetIdleTimeout(); got != 3*time.Second {
		t.Errorf("GetIdleTimeout() = %v", got)
	}
	if got := cfg.GetDiscoveryTimeout(); got != 5*time.Second {
		t.Errorf("GetDiscoveryTimeout() = %v", got)
	}
	if got := cfg.GetRetention(); got != 48*time.Hour {
		t.Errorf("GetRetention() = %v", got)
	}
}
