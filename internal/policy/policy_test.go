package policy

import (
	"testing"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, allow, deny string) *config.BridgeConfig {
	t.Helper()
	cfg, err := config.BridgeSection{Allow: allow, Deny: deny}.Compile()
	require.NoError(t, err)
	return cfg
}

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name        string
		allow, deny string
		topic       string
		expect      bool
	}{
		{"allow all", "", "", "home/temp", true},
		{"allow match", "^home/", "", "home/temp", true},
		{"allow no match", "^home/", "", "office/temp", false},
		{"deny match", "", "^secret/", "secret/x", false},
		{"deny no match", "", "^secret/", "home/temp", true},
		{"both allowed", "^home/", "temp$", "home/light", true},
		{"both denied", "^home/", "temp$", "home/temp", false},
		{"both not allowed", "^home/", "temp$", "office/light", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, IsAllowed(tt.topic, compile(t, tt.allow, tt.deny)))
		})
	}
	assert.True(t, IsAllowed("any", nil))
}

func TestLocality(t *testing.T) {
	cfg := compile(t, "", "^secret/")
	assert.Equal(t, overlay.SessionLocal, Locality("secret/x", cfg))
	assert.Equal(t, overlay.Any, Locality("home/temp", cfg))
}
