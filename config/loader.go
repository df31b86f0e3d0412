package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes environment overrides, e.g. SIMMIRROR_LOG_PORT.
const DefaultEnvPrefix = "SIMMIRROR"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load starts from Default, merges every layer key by key, applies
// environment overrides and validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Load reads a single JSON or YAML file over the defaults.
func Load(path string) (*Config, error) {
	return NewLoader().LoadFile(path)
}

// loadRaw reads a config file as a generic map, choosing the decoder by
// extension. Both formats share the size and depth limits.
func loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	if err := checkDepth(raw, 1); err != nil {
		return nil, fmt.Errorf("invalid config structure: %w", err)
	}
	return raw, nil
}

// mergeFromMap overlays override onto base, touching only the keys present.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	data, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(data, &baseMap); err != nil {
		return nil, err
	}

	merged := deepMergeMaps(baseMap, override)
	if err := parseDurations(merged); err != nil {
		return nil, err
	}

	data, err = json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if overrideMap, ok := v.(map[string]any); ok {
			if baseMap, ok := result[k].(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

var durationSuffixes = []string{"_delay", "_timeout", "_wait", "_interval"}

// parseDurations converts duration strings ("2s", "150ms") under duration
// keys into nanoseconds so they unmarshal into time.Duration.
func parseDurations(m map[string]any) error {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			if err := parseDurations(val); err != nil {
				return err
			}
		case string:
			if !isDurationKey(k) {
				continue
			}
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", k, err)
			}
			m[k] = int64(d)
		}
	}
	return nil
}

func isDurationKey(k string) bool {
	for _, s := range durationSuffixes {
		if strings.HasSuffix(k, s) {
			return true
		}
	}
	return false
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	streams := map[string]*StreamConfig{"LOG": &cfg.Log, "SNAPSHOT": &cfg.Snapshot, "COMMAND": &cfg.Command}
	for name, s := range streams {
		if val, err := l.env(name + "_HOST"); err != nil {
			return err
		} else if val != "" {
			s.Host = val
		}
		val, err := l.env(name + "_PORT")
		if err != nil {
			return err
		}
		if val != "" {
			port, err := strconv.Atoi(val)
			if err != nil {
				return invalid(fmt.Sprintf("%s_%s_PORT: %v", l.envPrefix, name, err))
			}
			s.Port = port
		}
	}

	if val, err := l.env("NATS_URL"); err != nil {
		return err
	} else if val != "" {
		cfg.Events.URL = val
		cfg.Events.Enabled = true
	}
	if val, err := l.env("NATS_TOKEN"); err != nil {
		return err
	} else if val != "" {
		cfg.Events.Token = val
	}
	return nil
}

func (l *Loader) env(suffix string) (string, error) {
	key := l.envPrefix + "_" + suffix
	val := l.getenv(key)
	if err := checkEnvValue(key, val); err != nil {
		return "", invalid(err.Error())
	}
	return val, nil
}
