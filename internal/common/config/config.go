package config

import (
	"os"
	"regexp"
	"time"

	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the root configuration of the signpad client.
	Config struct {
		Server     ServerConfig     `yaml:"server"`
		Connection ConnectionConfig `yaml:"connection"`
		Device     DeviceConfig     `yaml:"device"`
		Status     StatusConfig     `yaml:"status"`
		Logger     LoggerConfig     `yaml:"logger"`
		Metrics    MetricsConfig    `yaml:"metrics"`
	}

	// ServerConfig addresses the CRM backend.
	ServerConfig struct {
		WSBaseURL  string `yaml:"ws_base_url"`  // e.g. wss://crm.example.com
		APIBaseURL string `yaml:"api_base_url"` // e.g. https://crm.example.com/api/v1
	}

	// ConnectionConfig tunes the WebSocket session state machine.
	ConnectionConfig struct {
		ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	}

	// DeviceConfig locates the paired device credentials on disk.
	DeviceConfig struct {
		CredentialsPath string `yaml:"credentials_path"`
		FriendlyName    string `yaml:"friendly_name"`
	}

	// StatusConfig tunes the periodic tablet_status telemetry.
	StatusConfig struct {
		UpdateInterval time.Duration `yaml:"update_interval"`
	}

	// LoggerConfig represents the logger configuration.
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
	}

	// MetricsConfig controls the optional Prometheus endpoint.
	MetricsConfig struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr"`
		Namespace string `yaml:"namespace"`
	}
)

// LoadConfig loads configuration from a YAML file with environment variable
// support. Placeholders of the form ${VAR} or ${VAR:default} are resolved
// before unmarshalling; a .env file in the working directory is honored.
func LoadConfig(filename string) (*Config, string, error) {
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	cfg.setDefaults()
	return &cfg, cfgPath, nil
}

// setDefaults fills zero values with the application defaults.
func (c *Config) setDefaults() {
	if c.Connection.ReconnectInterval <= 0 {
		c.Connection.ReconnectInterval = cnst.DefaultReconnectInterval
	}
	if c.Connection.MaxReconnectAttempts <= 0 {
		c.Connection.MaxReconnectAttempts = cnst.DefaultMaxReconnectAttempts
	}
	if c.Connection.HeartbeatInterval <= 0 {
		c.Connection.HeartbeatInterval = cnst.DefaultHeartbeatInterval
	}
	if c.Status.UpdateInterval <= 0 {
		c.Status.UpdateInterval = cnst.DefaultStatusUpdateInterval
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "signpad"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
