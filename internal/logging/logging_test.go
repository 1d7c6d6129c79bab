package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/chosenoffset/gridrules/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		logger, err := New(config.DefaultConfig().Logging)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("Level", func(t *testing.T) {
		logger, err := New(config.LoggingConfig{Level: "debug", Format: "console"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

		logger, err = New(config.LoggingConfig{Level: "error"})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("Development", func(t *testing.T) {
		logger, err := New(config.LoggingConfig{Development: true})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := New(config.LoggingConfig{Level: "loud"})
		assert.ErrorContains(t, err, "logging.level")

		_, err = New(config.LoggingConfig{Format: "xml"})
		assert.ErrorContains(t, err, "logging.format")
	})
}
