package config

import (
	"testing"

	"github.com/maneesh/packfile/internal/codec"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PACKFILE_SERVICE_NAME",
		"PACKFILE_LOG_LEVEL",
		"PACKFILE_COMPRESSION",
		"PACKFILE_MEMORY_BUFFER",
		"PACKFILE_SKIP_COMPRESSED",
		"PACKFILE_SKIP_MIN_SIZE",
		"PACKFILE_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "packfile", cfg.ServiceName)
	assert.Equal(t, log.InfoLevel, cfg.Level())
	assert.Equal(t, int(codec.None), cfg.Compression)
	assert.True(t, cfg.MemoryBuffer)
	assert.False(t, cfg.SkipCompressed)
	assert.Equal(t, int64(512), cfg.SkipMinSize)
	assert.False(t, cfg.TracingEnabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PACKFILE_SERVICE_NAME", "packer")
	t.Setenv("PACKFILE_LOG_LEVEL", "debug")
	t.Setenv("PACKFILE_COMPRESSION", "4")
	t.Setenv("PACKFILE_MEMORY_BUFFER", "false")
	t.Setenv("PACKFILE_SKIP_COMPRESSED", "true")
	t.Setenv("PACKFILE_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "packer", cfg.ServiceName)
	assert.Equal(t, log.DebugLevel, cfg.Level())
	assert.Equal(t, int(codec.Zstd), cfg.Compression)
	assert.False(t, cfg.MemoryBuffer)
	assert.True(t, cfg.SkipCompressed)
	assert.True(t, cfg.TracingEnabled())
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PACKFILE_COMPRESSION", "gzip")
	t.Setenv("PACKFILE_MEMORY_BUFFER", "maybe")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Compression)
	assert.True(t, cfg.MemoryBuffer)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PACKFILE_COMPRESSION", "9"},
		{"PACKFILE_COMPRESSION", "-1"},
		{"PACKFILE_LOG_LEVEL", "chatty"},
		{"PACKFILE_SKIP_MIN_SIZE", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
