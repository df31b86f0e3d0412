package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/events/natssink"
	"github.com/c360/simmirror/pkg/retry"
)

// Default stream ports.
const (
	DefaultHost         = "127.0.0.1"
	DefaultSnapshotPort = 41000
	DefaultCommandPort  = 41001
	DefaultLogPort      = 41003
)

// Config is the complete client configuration.
type Config struct {
	Log        StreamConfig     `json:"log" yaml:"log"`
	Snapshot   StreamConfig     `json:"snapshot" yaml:"snapshot"`
	Command    StreamConfig     `json:"command" yaml:"command"`
	Client     ClientConfig     `json:"client" yaml:"client"`
	Supervisor SupervisorConfig `json:"supervisor" yaml:"supervisor"`
	LogBuffer  LogBufferConfig  `json:"log_buffer" yaml:"log_buffer"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Events     natssink.Config  `json:"events" yaml:"events"`
}

// StreamConfig addresses one TCP stream.
type StreamConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Host        string        `json:"host" yaml:"host"`
	Port        int           `json:"port" yaml:"port"`
	DialTimeout time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty"`
}

// ClientConfig tunes the tick loop and stream buffers.
type ClientConfig struct {
	TickInterval        time.Duration `json:"tick_interval" yaml:"tick_interval"`
	ReadChunkSize       int           `json:"read_chunk_size,omitempty" yaml:"read_chunk_size,omitempty"`
	QueueSize           int           `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	LargeFrameWarnBytes uint32        `json:"large_frame_warn_bytes,omitempty" yaml:"large_frame_warn_bytes,omitempty"`
	CommandMaxPending   int           `json:"command_max_pending,omitempty" yaml:"command_max_pending,omitempty"`
}

// SupervisorConfig sets the reconnect cadence shared by all streams.
type SupervisorConfig struct {
	Retry retry.Config `json:"retry" yaml:"retry"`
}

// LogBufferConfig sizes the log ring and its initial filter.
type LogBufferConfig struct {
	Capacity int    `json:"capacity" yaml:"capacity"`
	MinLevel string `json:"min_level,omitempty" yaml:"min_level,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:      StreamConfig{Enabled: true, Host: DefaultHost, Port: DefaultLogPort},
		Snapshot: StreamConfig{Enabled: true, Host: DefaultHost, Port: DefaultSnapshotPort},
		Command:  StreamConfig{Enabled: false, Host: DefaultHost, Port: DefaultCommandPort},
		Client: ClientConfig{
			TickInterval: 50 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{Retry: retry.Fixed(2 * time.Second)},
		LogBuffer:  LogBufferConfig{Capacity: 2000},
		Metrics:    MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
		Events:     natssink.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for name, s := range map[string]StreamConfig{"log": c.Log, "snapshot": c.Snapshot, "command": c.Command} {
		if err := s.validate(name); err != nil {
			return err
		}
	}

	if c.Client.TickInterval <= 0 {
		return invalid("client.tick_interval must be positive")
	}
	if c.Client.ReadChunkSize < 0 || c.Client.QueueSize < 0 || c.Client.CommandMaxPending < 0 {
		return invalid("client buffer sizes must not be negative")
	}
	if err := c.Supervisor.Retry.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "supervisor.retry")
	}
	if c.LogBuffer.Capacity <= 0 {
		return invalid("log_buffer.capacity must be positive")
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
		}
		if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
			return invalid("metrics.path must start with /")
		}
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	return nil
}

func (s StreamConfig) validate(name string) error {
	if !s.Enabled {
		return nil
	}
	if s.Host == "" {
		return invalid(name + ".host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return invalid(fmt.Sprintf("%s.port %d out of range", name, s.Port))
	}
	if s.DialTimeout < 0 {
		return invalid(name + ".dial_timeout must not be negative")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "check fields")
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns a JSON representation with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.Events.Password != "" {
		masked.Events.Password = "***"
	}
	if masked.Events.Token != "" {
		masked.Events.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
