package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Tellstick gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Tellstick     TellstickConfig     `yaml:"tellstick"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	NATS          NATSConfig          `yaml:"nats"`
	Schedules     []ScheduleConfig    `yaml:"schedules"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
}

// TellstickConfig contains appliance connection settings.
type TellstickConfig struct {
	// Host is the appliance IP. Empty means discover it by broadcast.
	Host string `yaml:"host"`

	// MAC selects one appliance when discovery finds several.
	MAC string `yaml:"mac"`

	CommandPort   int `yaml:"command_port"`
	DiscoveryPort int `yaml:"discovery_port"`

	// ListenAddr is the local bind address for the session socket.
	ListenAddr string `yaml:"listen_addr"`

	// Timeouts and intervals in seconds.
	DiscoveryTimeout     int `yaml:"discovery_timeout"`
	RecvTimeout          int `yaml:"recv_timeout"`
	RegistrationInterval int `yaml:"registration_interval"`

	// Command repetition: datagrams per command and the pause between them.
	RepeatCount   int `yaml:"repeat_count"`
	RepeatDelayMS int `yaml:"repeat_delay_ms"`
}

// HomeAssistantConfig enables the MQTT bridge.
type HomeAssistantConfig struct {
	Enabled bool `yaml:"enabled"`

	// EntitiesFile is the bridge configuration with the entity list.
	EntitiesFile string `yaml:"entities_file"`
}

// DatabaseConfig contains SQLite settings for the capture journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes captured packets older than this. 0 keeps all.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// NATSConfig contains NATS event fan-out settings.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ScheduleConfig is one cron-driven command.
type ScheduleConfig struct {
	// Spec is a five-field cron expression or a descriptor such as "@daily".
	Spec   string `yaml:"spec"`
	Entity string `yaml:"entity"`
	Method string `yaml:"method"`
	Param  int    `yaml:"param"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Variables that are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TELLSTICK_SECTION_KEY
// For example: TELLSTICK_HOST, TELLSTICK_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Tellstick: TellstickConfig{
			CommandPort:          42314,
			DiscoveryPort:        30303,
			ListenAddr:           ":42314",
			DiscoveryTimeout:     5,
			RecvTimeout:          5,
			RegistrationInterval: 600,
			RepeatCount:          2,
			RepeatDelayMS:        1000,
		},
		HomeAssistant: HomeAssistantConfig{
			EntitiesFile: "./configs/entities.yaml",
		},
		Database: DatabaseConfig{
			Path:          "./data/tellstick.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 7,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tellstick-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "tellstick",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/tellstick.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// envPrefix starts every override variable.
const envPrefix = "TELLSTICK_"

// envStrings and envInts map override variables, without the prefix, onto
// config fields. Empty values are ignored and so are integers that do not
// parse.
var (
	envStrings = map[string]func(*Config) *string{
		"HOST":           func(c *Config) *string { return &c.Tellstick.Host },
		"MAC":            func(c *Config) *string { return &c.Tellstick.MAC },
		"ENTITIES_FILE":  func(c *Config) *string { return &c.HomeAssistant.EntitiesFile },
		"DATABASE_PATH":  func(c *Config) *string { return &c.Database.Path },
		"MQTT_HOST":      func(c *Config) *string { return &c.MQTT.Broker.Host },
		"MQTT_USERNAME":  func(c *Config) *string { return &c.MQTT.Auth.Username },
		"MQTT_PASSWORD":  func(c *Config) *string { return &c.MQTT.Auth.Password },
		"API_HOST":       func(c *Config) *string { return &c.API.Host },
		"INFLUXDB_URL":   func(c *Config) *string { return &c.InfluxDB.URL },
		"INFLUXDB_TOKEN": func(c *Config) *string { return &c.InfluxDB.Token },
		"NATS_URL":       func(c *Config) *string { return &c.NATS.URL },
		"LOG_LEVEL":      func(c *Config) *string { return &c.Logging.Level },
		"JWT_SECRET":     func(c *Config) *string { return &c.Security.JWT.Secret },
	}
	envInts = map[string]func(*Config) *int{
		"REPEAT_COUNT": func(c *Config) *int { return &c.Tellstick.RepeatCount },
		"MQTT_PORT":    func(c *Config) *int { return &c.MQTT.Broker.Port },
		"API_PORT":     func(c *Config) *int { return &c.API.Port },
	}
)

// applyEnvOverrides copies TELLSTICK_* variables into cfg.
func applyEnvOverrides(cfg *Config) {
	for key, field := range envStrings {
		if v := os.Getenv(envPrefix + key); v != "" {
			*field(cfg) = v
		}
	}
	for key, field := range envInts {
		if v := os.Getenv(envPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*field(cfg) = n
			}
		}
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateTellstick()...)
	errs = append(errs, c.validateServices()...)
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateTellstick() []string {
	var errs []string
	t := c.Tellstick

	if !validPort(t.CommandPort) {
		errs = append(errs, "tellstick.command_port must be between 1 and 65535")
	}
	if !validPort(t.DiscoveryPort) {
		errs = append(errs, "tellstick.discovery_port must be between 1 and 65535")
	}
	if t.DiscoveryTimeout < 1 {
		errs = append(errs, "tellstick.discovery_timeout must be at least 1 second")
	}
	if t.RecvTimeout < 1 {
		errs = append(errs, "tellstick.recv_timeout must be at least 1 second")
	}
	if t.RegistrationInterval < 1 {
		errs = append(errs, "tellstick.registration_interval must be at least 1 second")
	}
	if t.RepeatCount < 1 {
		errs = append(errs, "tellstick.repeat_count must be at least 1")
	}
	if t.RepeatDelayMS < 0 {
		errs = append(errs, "tellstick.repeat_delay_ms must not be negative")
	}

	for i, s := range c.Schedules {
		if s.Spec == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].spec is required", i))
		}
		if s.Entity == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].entity is required", i))
		}
		if s.Method == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].method is required", i))
		}
	}
	return errs
}

func (c *Config) validateServices() []string {
	var errs []string

	if c.HomeAssistant.Enabled && c.HomeAssistant.EntitiesFile == "" {
		errs = append(errs, "homeassistant.entities_file is required when the bridge is enabled")
	}
	if c.HomeAssistant.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}

	if c.API.Enabled {
		if !validPort(c.API.Port) {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// The command endpoint actuates real devices; forged tokens must
		// not be possible.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set TELLSTICK_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}
	return errs
}

func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		errs = append(errs, fmt.Sprintf("logging.output %q is invalid (use stdout, stderr, or file)", c.Logging.Output))
	} else if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when output is file")
	}
	return errs
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetDiscoveryTimeout returns the discovery quiet period as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Tellstick.DiscoveryTimeout) * time.Second
}

// GetRecvTimeout returns the session idle timeout as a Duration.
func (c *Config) GetRecvTimeout() time.Duration {
	return time.Duration(c.Tellstick.RecvTimeout) * time.Second
}

// GetRegistrationInterval returns the keep-alive period as a Duration.
func (c *Config) GetRegistrationInterval() time.Duration {
	return time.Duration(c.Tellstick.RegistrationInterval) * time.Second
}

// GetRepeatDelay returns the pause between command repeats as a Duration.
func (c *Config) GetRepeatDelay() time.Duration {
	return time.Duration(c.Tellstick.RepeatDelayMS) * time.Millisecond
}

// GetRetention returns the capture retention window, or 0 to keep all.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}
