// Package config handles Herald configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./herald.yaml, ~/.config/herald/config.yaml, /etc/herald/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"herald.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "herald", "config.yaml"))
	}

	paths = append(paths, "/etc/herald/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Herald configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Forward   ForwardConfig   `yaml:"forward"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	DataDir   string          `yaml:"data_dir"`
	// ScheduleFile overrides the schedule store location. Defaults to
	// <data_dir>/schedules.json.
	ScheduleFile string `yaml:"schedule_file"`
	// Prefix is the leading marker character for text commands (default "!").
	Prefix string `yaml:"prefix"`
	// HistoryLimit bounds how many recent messages the roulette text
	// strategy scans (default 1000).
	HistoryLimit int    `yaml:"history_limit"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"` // "text" or "json"
}

// GatewayConfig defines the chat platform gateway connection.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Configured reports whether the gateway connection settings are present.
func (g GatewayConfig) Configured() bool {
	return g.URL != "" && g.Token != ""
}

// BroadcastConfig defines the lifecycle announcement behavior. Herald
// resolves a channel with this name in every connected community and
// posts the greeting on startup and the farewell on shutdown.
type BroadcastConfig struct {
	Channel  string `yaml:"channel"`
	Greeting string `yaml:"greeting"`
	Farewell string `yaml:"farewell"`
}

// ForwardConfig defines question forwarding. Messages posted in the
// named channel are relayed to the handler user via direct message.
// Empty UserID disables forwarding.
type ForwardConfig struct {
	Channel string `yaml:"channel"`
	UserID  string `yaml:"user_id"`
}

// MQTTConfig defines the optional status publisher. When Broker is
// empty, MQTT publishing is disabled.
type MQTTConfig struct {
	Broker             string `yaml:"broker"` // e.g. mqtt://host:1883 or mqtts://host:8883
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DeviceName         string `yaml:"device_name"`
	PublishIntervalSec int    `yaml:"publish_interval_sec"`
}

// Configured reports whether MQTT publishing is enabled.
func (m MQTTConfig) Configured() bool {
	return m.Broker != ""
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so tokens can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.ScheduleFile == "" {
		c.ScheduleFile = filepath.Join(c.DataDir, "schedules.json")
	}
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 1000
	}
	if c.Broadcast.Channel == "" {
		c.Broadcast.Channel = "log"
	}
	if c.Broadcast.Greeting == "" {
		c.Broadcast.Greeting = "Good morning... zzz"
	}
	if c.Broadcast.Farewell == "" {
		c.Broadcast.Farewell = "Aww... I was in the middle of a game..."
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "herald"
	}
	if c.MQTT.PublishIntervalSec == 0 {
		c.MQTT.PublishIntervalSec = 60
	}
}

// Validate checks the configuration for errors that would prevent a
// clean start. It does not require the gateway section; subcommands
// that never connect (version) work without one.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	if utf8.RuneCountInString(c.Prefix) != 1 {
		return fmt.Errorf("prefix must be a single character, got %q", c.Prefix)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}
