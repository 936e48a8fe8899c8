package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrConfigCreated)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "local", cfg.Overlay.Backend)
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"mqtt":{"port":1999},"bridge":{"scope":"site/a","deny":"^secret/"},"debug_mode":true}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1999, cfg.MQTT.Port)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, "site/a", cfg.Bridge.Scope)

	got, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestReadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bridge":{"scope":"a"}}`), 0644))
	t.Setenv("BRIDGE_SCOPE", "b/c")
	t.Setenv("BRIDGE_OVERLAY_BACKEND", "redis")

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "b/c", cfg.Bridge.Scope)
	assert.Equal(t, "redis", cfg.Overlay.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.MQTT.Port = 0 }, false},
		{"bad backend", func(c *Config) { c.Overlay.Backend = "gossip" }, false},
		{"bad allow", func(c *Config) { c.Bridge.Allow = "(" }, false},
		{"wildcard scope", func(c *Config) { c.Bridge.Scope = "a/*" }, false},
		{"empty chunk scope", func(c *Config) { c.Bridge.Scope = "a//b" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	bc, err := BridgeSection{Scope: "s", Allow: "^home/", Deny: "secret"}.Compile()
	require.NoError(t, err)
	assert.Equal(t, "s", bc.Scope)
	require.NotNil(t, bc.Allow)
	require.NotNil(t, bc.Deny)
	assert.True(t, bc.Allow.MatchString("home/temp"))

	bc, err = BridgeSection{}.Compile()
	require.NoError(t, err)
	assert.Nil(t, bc.Allow)
	assert.Nil(t, bc.Deny)
}
