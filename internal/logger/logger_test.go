package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level logger.LogLevel
		ok    bool
	}{
		{"debug", logger.DebugLevel, true},
		{"info", logger.InfoLevel, true},
		{"warning", logger.WarnLevel, true},
		{"warn", logger.WarnLevel, true},
		{"error", logger.ErrorLevel, true},
		{"verbose", logger.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ok := logger.ParseLevel(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.WarnLevel, true)
	defer logger.SetLogLevel(logger.InfoLevel)

	logger.Info().Msg("hidden message")
	logger.Warn().Msg("visible message")

	assert.NotContains(t, buf.String(), "hidden message")
	assert.Contains(t, buf.String(), "visible message")
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.DebugLevel, true)
	defer logger.SetLogLevel(logger.InfoLevel)

	err := errors.New().New(errors.ErrReadConfig)
	logger.Default().ErrorWithCode(err).Msg("config failed")

	assert.Contains(t, buf.String(), "config failed")
	assert.Contains(t, buf.String(), string(errors.ErrReadConfig))
}
