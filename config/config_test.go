package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/simmirror/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultSnapshotPort, cfg.Snapshot.Port)
	assert.Equal(t, DefaultLogPort, cfg.Log.Port)
	assert.Equal(t, DefaultCommandPort, cfg.Command.Port)
	assert.Equal(t, DefaultHost, cfg.Snapshot.Host)
	assert.Equal(t, 2*time.Second, cfg.Supervisor.Retry.InitialDelay)
	assert.Equal(t, 2000, cfg.LogBuffer.Capacity)
	assert.False(t, cfg.Events.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Snapshot.Host = "" }},
		{"port zero", func(c *Config) { c.Log.Port = 0 }},
		{"port too large", func(c *Config) { c.Snapshot.Port = 70000 }},
		{"negative dial timeout", func(c *Config) { c.Log.DialTimeout = -time.Second }},
		{"zero tick", func(c *Config) { c.Client.TickInterval = 0 }},
		{"negative queue", func(c *Config) { c.Client.QueueSize = -1 }},
		{"bad retry", func(c *Config) { c.Supervisor.Retry.MaxDelay = time.Millisecond }},
		{"zero capacity", func(c *Config) { c.LogBuffer.Capacity = 0 }},
		{"metrics path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	t.Run("disabled stream is not checked", func(t *testing.T) {
		cfg := Default()
		cfg.Command.Enabled = false
		cfg.Command.Port = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad_JSONOverridesDefaults(t *testing.T) {
	path := writeFile(t, "client.json", `{
		"snapshot": {"host": "10.0.0.5", "port": 42000},
		"client": {"tick_interval": "20ms"},
		"supervisor": {"retry": {"initial_delay": "500ms", "max_delay": "500ms"}},
		"log_buffer": {"capacity": 50, "min_level": "warn"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Snapshot.Host)
	assert.Equal(t, 42000, cfg.Snapshot.Port)
	assert.True(t, cfg.Snapshot.Enabled, "unset keys keep their defaults")
	assert.Equal(t, DefaultLogPort, cfg.Log.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.Client.TickInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Supervisor.Retry.InitialDelay)
	assert.Equal(t, 50, cfg.LogBuffer.Capacity)
	assert.Equal(t, "warn", cfg.LogBuffer.MinLevel)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "client.yaml", `
log:
  port: 5000
  dial_timeout: 3s
command:
  enabled: true
events:
  enabled: true
  url: nats://bus:4222
  reconnect_wait: 1s
  kinds: [collection_changed]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Log.Port)
	assert.Equal(t, 3*time.Second, cfg.Log.DialTimeout)
	assert.True(t, cfg.Command.Enabled)
	assert.Equal(t, "nats://bus:4222", cfg.Events.URL)
	assert.Equal(t, time.Second, cfg.Events.ReconnectWait)
	assert.Equal(t, []string{"collection_changed"}, cfg.Events.Kinds)
}

func TestLoader_LayersMergeInOrder(t *testing.T) {
	base := writeFile(t, "base.json", `{"snapshot": {"port": 1000}, "log": {"port": 1001}}`)
	override := writeFile(t, "override.yml", "snapshot:\n  port: 2000\n")

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.Snapshot.Port)
	assert.Equal(t, 1001, cfg.Log.Port)
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"SIMMIRROR_SNAPSHOT_HOST": "sim.local",
		"SIMMIRROR_LOG_PORT":      "6000",
		"SIMMIRROR_NATS_URL":      "nats://events:4222",
	}
	loader := NewLoader()
	loader.getenv = func(k string) string { return env[k] }

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "sim.local", cfg.Snapshot.Host)
	assert.Equal(t, 6000, cfg.Log.Port)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://events:4222", cfg.Events.URL)

	env["SIMMIRROR_LOG_PORT"] = "not-a-port"
	_, err = loader.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.json", `{"client": {"tick_interval": "soon"}}`))
		assert.Error(t, err)
	})
	t.Run("malformed json", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.json", `{"client": `))
		assert.Error(t, err)
	})
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.toml", `x = 1`))
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
	t.Run("invalid result", func(t *testing.T) {
		_, err := Load(writeFile(t, "c.json", `{"log_buffer": {"capacity": 0}}`))
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})
	t.Run("validation disabled", func(t *testing.T) {
		loader := NewLoader()
		loader.EnableValidation(false)
		cfg, err := loader.LoadFile(writeFile(t, "c.json", `{"log_buffer": {"capacity": 0}}`))
		require.NoError(t, err)
		assert.Zero(t, cfg.LogBuffer.Capacity)
	})
}

func TestLoad_DepthLimitAppliesToBothFormats(t *testing.T) {
	deepJSON := strings.Repeat(`{"a": `, maxDepth+1) + "1" + strings.Repeat("}", maxDepth+1)
	_, err := Load(writeFile(t, "deep.json", deepJSON))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting deeper")

	var deepYAML strings.Builder
	for i := 0; i <= maxDepth; i++ {
		deepYAML.WriteString(strings.Repeat("  ", i) + "a:\n")
	}
	deepYAML.WriteString(strings.Repeat("  ", maxDepth+1) + "b: 1\n")
	_, err = Load(writeFile(t, "deep.yaml", deepYAML.String()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting deeper")

	// Lists count as a level too
	assert.Error(t, checkDepth([]any{[]any{1}}, maxDepth))
	assert.NoError(t, checkDepth(map[string]any{"log": map[string]any{"port": 1}}, 1))
}

func TestReadConfigFile_Limits(t *testing.T) {
	_, err := readConfigFile(writeFile(t, "client.toml", "x = 1"))
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "dir.json")
	require.NoError(t, os.Mkdir(dir, 0700))
	_, err = readConfigFile(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")

	big := writeFile(t, "big.json", `{"pad": "`+strings.Repeat("x", maxFileBytes)+`"}`)
	_, err = readConfigFile(big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	data, err := readConfigFile(writeFile(t, "ok.yml", "log:\n  port: 1\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestCheckEnvValue(t *testing.T) {
	assert.NoError(t, checkEnvValue("K", ""))
	assert.NoError(t, checkEnvValue("K", "nats://127.0.0.1:4222"))
	assert.Error(t, checkEnvValue("K", "a\x00b"))
	assert.Error(t, checkEnvValue("K", strings.Repeat("x", maxEnvLen+1)))
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Events.Password = "hunter2"
	cfg.Events.Token = "s3cret"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cret")
	assert.Equal(t, "hunter2", cfg.Events.Password, "String must not mutate the receiver")
}
