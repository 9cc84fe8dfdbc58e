package logging

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	require.NotNil(t, logger.Logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestGetLoggerSharesFactoryConfig(t *testing.T) {
	require.NoError(t, SetupLogging(&LoggingConfig{Level: "debug", Format: "json", ConsoleEnabled: true}))

	logger := GetLogger("component-a")
	require.NotNil(t, logger)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	other := GetLogger("component-b")
	require.NotNil(t, other)
	assert.Equal(t, logrus.DebugLevel, other.GetLevel())
}

func TestSetupLoggingFallsBackOnInvalidLevel(t *testing.T) {
	err := SetupLogging(&LoggingConfig{Level: "not-a-level", ConsoleEnabled: true})
	assert.NoError(t, err)
}

func TestSetupLoggingWithFileHandler(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "matchcam.log")

	err := SetupLogging(&LoggingConfig{
		Level:       "info",
		Format:      "text",
		FileEnabled: true,
		FilePath:    logPath,
		MaxFileSize: 10,
		BackupCount: 2,
	})
	require.NoError(t, err)

	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	id := GenerateCorrelationID()
	assert.Len(t, id, 36)

	ctx := WithCorrelationID(context.Background(), id)
	assert.Equal(t, id, GetCorrelationIDFromContext(ctx))
	assert.Empty(t, GetCorrelationIDFromContext(context.Background()))
}

func TestLoggerWithCorrelationIDAndFields(t *testing.T) {
	logger := NewLogger("test-component")

	withID := logger.WithCorrelationID("req-123")
	require.NotNil(t, withID)

	withField := logger.WithField("camera_id", "0")
	require.NotNil(t, withField)

	withErr := logger.WithError(assert.AnError)
	require.NotNil(t, withErr)

	withFields := logger.WithFields(Fields{"camera_id": "0", "match_id": "abc"})
	require.NotNil(t, withFields)
}

func TestLoggerLogWithContext(t *testing.T) {
	logger := NewLogger("test-component")
	ctx := WithCorrelationID(context.Background(), "req-123")

	logger.LogWithContext(ctx, logrus.InfoLevel, "with correlation")
	logger.LogWithContext(context.Background(), logrus.InfoLevel, "without correlation")
}

func TestLoggerContextConvenienceMethods(t *testing.T) {
	logger := NewLogger("test-component")
	ctx := context.Background()

	logger.DebugWithContext(ctx, "debug")
	logger.InfoWithContext(ctx, "info")
	logger.WarnWithContext(ctx, "warn")
	logger.ErrorWithContext(ctx, "error")
}

func TestLoggerLevelManagement(t *testing.T) {
	logger := NewLogger("test-component")

	logger.SetLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.SetLevel(logrus.ErrorLevel)
	assert.True(t, logger.IsLevelEnabled(logrus.ErrorLevel))
	assert.True(t, logger.IsLevelEnabled(logrus.FatalLevel))
	assert.False(t, logger.IsLevelEnabled(logrus.InfoLevel))
}

func TestLoggerComponentLevel(t *testing.T) {
	logger := NewLogger("test-component")

	logger.SetComponentLevel("recording-service", logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, logger.GetEffectiveLevel("recording-service"))
}

func TestSetupLoggingSimple(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, SetupLoggingSimple(filepath.Join(dir, "simple.log"), "info"))
}

func TestGetLoggerConcurrentAccess(t *testing.T) {
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			logger := GetLogger("concurrent-component")
			logger.WithField("iteration", "x").Info("concurrent log")
		}()
	}
	wg.Wait()
}
