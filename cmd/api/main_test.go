package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/gst3d/pushserver/internal/config"
)

func TestInitLogger_UsesConfig(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantLevel zapcore.Level
		wantDebug bool
	}{
		{"development default", "development", "", zapcore.DebugLevel, true},
		{"production default", "production", "", zapcore.InfoLevel, false},
		{"explicit level wins", "production", "warn", zapcore.WarnLevel, false},
		{"development raised", "development", "error", zapcore.ErrorLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Server: config.ServerConfig{Env: tt.env},
				Log:    config.LogConfig{Level: tt.level},
			}
			logger, err := initLogger(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, logger.Level())
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestInitLogger_RejectsUnknownLevel(t *testing.T) {
	cfg := &config.Config{Log: config.LogConfig{Level: "chatty"}}

	_, err := initLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}
