package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the receiver looks for its configuration when
// no -config flag is given.
const DefaultConfigPath = "config/receiver.yaml"

// Config is the receiver configuration. It is built once at startup and
// passed by value into each component's constructor.
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
	Debug  DebugConfig  `yaml:"debug"`
}

// SerialConfig describes the link to the coordinator node.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
	// ReadTimeout is a duration string like "1s". "0" disables the deadline.
	ReadTimeout string `yaml:"read_timeout"`
}

// StoreConfig describes the SQLite database holding the sensor directory and
// readings.
type StoreConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DebugConfig configures the optional admin HTTP listener. Empty Listen
// disables it.
type DebugConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0",
			BaudRate:    115200,
			DataBits:    8,
			StopBits:    1,
			Parity:      "N",
			ReadTimeout: "1s",
		},
		Store: StoreConfig{
			Path:         "sensor_data.db",
			MaxOpenConns: 1,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file. Fields omitted from the file keep
// their Default values, so partial configs are safe.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return cfg, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
// Any other error (bad YAML, failed validation) is returned.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Serial.Port) == "" {
		return fmt.Errorf("serial.port is required")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.ReadTimeout != "" {
		d, err := time.ParseDuration(c.Serial.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid serial.read_timeout '%s': %w", c.Serial.ReadTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("serial.read_timeout must be non-negative, got %s", d)
		}
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.MaxOpenConns < 0 {
		return fmt.Errorf("store.max_open_conns must be non-negative, got %d", c.Store.MaxOpenConns)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// GetReadTimeout returns the serial read deadline. Zero means reads block
// until data arrives.
func (c Config) GetReadTimeout() time.Duration {
	if c.Serial.ReadTimeout == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(c.Serial.ReadTimeout)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}
