// Package config loads, validates and persists the server configuration.
// Files are JSON; any field left out of the file keeps its default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds listener settings. Each port carries a fallback range
// that is scanned when the preferred port cannot be bound.
type ServerConfig struct {
	Host              string `json:"host" mapstructure:"host"`
	HTTPPort          int    `json:"http_port" mapstructure:"http_port"`
	WSPort            int    `json:"ws_port" mapstructure:"ws_port"`
	MetricsPort       int    `json:"metrics_port" mapstructure:"metrics_port"`
	MaxConnections    int    `json:"max_connections" mapstructure:"max_connections"`
	ConnectionTimeout int    `json:"connection_timeout" mapstructure:"connection_timeout"`

	HTTPPortFallbackStart    int `json:"http_port_fallback_start" mapstructure:"http_port_fallback_start"`
	HTTPPortFallbackEnd      int `json:"http_port_fallback_end" mapstructure:"http_port_fallback_end"`
	WSPortFallbackStart      int `json:"ws_port_fallback_start" mapstructure:"ws_port_fallback_start"`
	WSPortFallbackEnd        int `json:"ws_port_fallback_end" mapstructure:"ws_port_fallback_end"`
	MetricsPortFallbackStart int `json:"metrics_port_fallback_start" mapstructure:"metrics_port_fallback_start"`
	MetricsPortFallbackEnd   int `json:"metrics_port_fallback_end" mapstructure:"metrics_port_fallback_end"`
}

// PerformanceConfig tunes the capture/encode/broadcast pipeline.
type PerformanceConfig struct {
	MaxFPS             int `json:"max_fps" mapstructure:"max_fps"`
	JPEGQuality        int `json:"jpeg_quality" mapstructure:"jpeg_quality"`
	CompressionLevel   int `json:"compression_level" mapstructure:"compression_level"`
	FrameQueueSize     int `json:"frame_queue_size" mapstructure:"frame_queue_size"`
	MouseThrottleMs    int `json:"mouse_throttle_ms" mapstructure:"mouse_throttle_ms"`
	DownscaleThreshold int `json:"downscale_threshold" mapstructure:"downscale_threshold"`
}

// SecurityConfig covers TLS, payload encryption and the END-key policy.
type SecurityConfig struct {
	EnableTLS     bool   `json:"enable_tls" mapstructure:"enable_tls"`
	TLSCertPath   string `json:"tls_cert_path" mapstructure:"tls_cert_path"`
	TLSKeyPath    string `json:"tls_key_path" mapstructure:"tls_key_path"`
	EncryptionKey string `json:"encryption_key" mapstructure:"encryption_key"`
	AuthRequired  bool   `json:"auth_required" mapstructure:"auth_required"`
	AuthToken     string `json:"auth_token" mapstructure:"auth_token"`
	// BlockEndKey prevents viewers from injecting the END key system-wide.
	BlockEndKey bool `json:"block_end_key" mapstructure:"block_end_key"`
}

// FeatureConfig toggles optional subsystems.
type FeatureConfig struct {
	EnableAudio            bool `json:"enable_audio" mapstructure:"enable_audio"`
	EnableClipboard        bool `json:"enable_clipboard" mapstructure:"enable_clipboard"`
	EnableFileTransfer     bool `json:"enable_file_transfer" mapstructure:"enable_file_transfer"`
	EnableSessionRecording bool `json:"enable_session_recording" mapstructure:"enable_session_recording"`
	EnableMultiMonitor     bool `json:"enable_multi_monitor" mapstructure:"enable_multi_monitor"`
	EnableAutoClick        bool `json:"enable_auto_click" mapstructure:"enable_auto_click"`
}

// LoggingConfig selects level and optional log file.
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// InputConfig selects the injection backend: "robotgo" for real OS input,
// "noop" for headless runs.
type InputConfig struct {
	Backend string `json:"backend" mapstructure:"backend"`
}

// Config is the root configuration container.
type Config struct {
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	Performance PerformanceConfig `json:"performance" mapstructure:"performance"`
	Security    SecurityConfig    `json:"security" mapstructure:"security"`
	Features    FeatureConfig     `json:"features" mapstructure:"features"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Input       InputConfig       `json:"input" mapstructure:"input"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:                     "0.0.0.0",
			HTTPPort:                 3000,
			WSPort:                   8765,
			MetricsPort:              9090,
			MaxConnections:           10,
			ConnectionTimeout:        30,
			HTTPPortFallbackStart:    3001,
			HTTPPortFallbackEnd:      3010,
			WSPortFallbackStart:      8766,
			WSPortFallbackEnd:        8775,
			MetricsPortFallbackStart: 9091,
			MetricsPortFallbackEnd:   9100,
		},
		Performance: PerformanceConfig{
			MaxFPS:             30,
			JPEGQuality:        75,
			CompressionLevel:   6,
			FrameQueueSize:     3,
			MouseThrottleMs:    16,
			DownscaleThreshold: 1920,
		},
		Security: SecurityConfig{
			BlockEndKey: true,
		},
		Features: FeatureConfig{
			EnableClipboard:    true,
			EnableFileTransfer: true,
			EnableMultiMonitor: true,
			EnableAutoClick:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "remote-desktop.log",
		},
		Input: InputConfig{
			Backend: "robotgo",
		},
	}
}

// Manager wraps a config file path and its parsed contents.
type Manager struct {
	Path   string
	Config Config
}

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config/remote-desktop.json"

// Load reads the config file at path, filling unset fields with defaults.
// A missing file is not an error: defaults are used and written back so the
// operator has something to edit.
func Load(path string) (*Manager, error) {
	if path == "" {
		path = DefaultPath
	}
	m := &Manager{Path: path, Config: Default()}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v, m.Config)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			// First run: persist the defaults.
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
			return m, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&m.Config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return m, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server", structToMap(c.Server))
	v.SetDefault("performance", structToMap(c.Performance))
	v.SetDefault("security", structToMap(c.Security))
	v.SetDefault("features", structToMap(c.Features))
	v.SetDefault("logging", structToMap(c.Logging))
	v.SetDefault("input", structToMap(c.Input))
}

func structToMap(s any) map[string]any {
	b, _ := json.Marshal(s)
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}

// Save writes the current configuration back to its file.
func (m *Manager) Save() error {
	if dir := filepath.Dir(m.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(m.Config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.Path, append(b, '\n'), 0o644)
}

// Validate reports the first configuration problem found. Validation failure
// is fatal at startup, before any listener binds.
func (m *Manager) Validate() error {
	return m.Config.Validate()
}

// Validate checks field ranges and the presence of TLS material.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.WSPort < 1 || c.Server.WSPort > 65535 {
		return fmt.Errorf("ws_port must be between 1 and 65535, got %d", c.Server.WSPort)
	}
	if c.Performance.MaxFPS < 1 || c.Performance.MaxFPS > 120 {
		return fmt.Errorf("max_fps must be between 1 and 120, got %d", c.Performance.MaxFPS)
	}
	if c.Performance.JPEGQuality < 10 || c.Performance.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 10 and 100, got %d", c.Performance.JPEGQuality)
	}
	if c.Performance.CompressionLevel < 0 || c.Performance.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be between 0 and 9, got %d", c.Performance.CompressionLevel)
	}
	if c.Performance.FrameQueueSize < 1 {
		return fmt.Errorf("frame_queue_size must be at least 1, got %d", c.Performance.FrameQueueSize)
	}
	if c.Security.EnableTLS {
		if c.Security.TLSCertPath == "" {
			return fmt.Errorf("tls_cert_path is required when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLSCertPath); err != nil {
			return fmt.Errorf("tls_cert_path: %w", err)
		}
		if c.Security.TLSKeyPath == "" {
			return fmt.Errorf("tls_key_path is required when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLSKeyPath); err != nil {
			return fmt.Errorf("tls_key_path: %w", err)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warning", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Input.Backend {
	case "robotgo", "noop":
	default:
		return fmt.Errorf("unknown input backend %q", c.Input.Backend)
	}
	return nil
}

// CreateExamples writes a set of example configuration files into dir.
func CreateExamples(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	write := func(name string, c Config) error {
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, name), append(b, '\n'), 0o644)
	}

	if err := write("remote-desktop.json", Default()); err != nil {
		return err
	}

	highPerf := Default()
	highPerf.Performance.MaxFPS = 60
	highPerf.Performance.JPEGQuality = 90
	highPerf.Performance.CompressionLevel = 3
	highPerf.Performance.MouseThrottleMs = 8
	highPerf.Features.EnableAudio = true
	if err := write("high-performance.json", highPerf); err != nil {
		return err
	}

	lowBW := Default()
	lowBW.Performance.MaxFPS = 15
	lowBW.Performance.JPEGQuality = 50
	lowBW.Performance.CompressionLevel = 9
	lowBW.Performance.MouseThrottleMs = 50
	lowBW.Features.EnableClipboard = false
	lowBW.Features.EnableFileTransfer = false
	if err := write("low-bandwidth.json", lowBW); err != nil {
		return err
	}

	secure := Default()
	secure.Security.EnableTLS = true
	secure.Security.TLSCertPath = "/etc/ssl/certs/remote-desktop-cert.pem"
	secure.Security.TLSKeyPath = "/etc/ssl/private/remote-desktop-key.pem"
	secure.Security.EncryptionKey = "your-secure-encryption-key"
	secure.Security.AuthRequired = true
	secure.Security.AuthToken = "your-secure-auth-token"
	secure.Features.EnableSessionRecording = true
	return write("secure-enterprise.json", secure)
}
