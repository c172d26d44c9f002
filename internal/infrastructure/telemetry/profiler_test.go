package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewProfiler(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		p, err := NewProfiler(ProfilerConfig{ServerAddress: "http://localhost:4040"}, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("enabled needs a server", func(t *testing.T) {
		p, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "feeledger"}, zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, p)
		assert.Contains(t, err.Error(), "server address is required")
	})

	t.Run("enabled needs an application name", func(t *testing.T) {
		p, err := NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, p)
	})
}

func TestProfilerConfigFromApp(t *testing.T) {
	cfg := ProfilerConfigFromApp(config.TelemetryConfig{
		ServiceName:      "feeledger",
		ProfilingEnabled: true,
		ProfilingServer:  "http://pyroscope:4040",
		ProfilingUser:    "svc",
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "feeledger", cfg.ApplicationName)
	assert.Equal(t, "http://pyroscope:4040", cfg.ServerAddress)
	assert.Equal(t, "svc", cfg.BasicAuthUser)
}

func TestWithProfilingLabels(t *testing.T) {
	var got, skipped string
	var ok bool
	WithProfilingLabels(context.Background(), map[string]string{
		ProfilingLabelOperation: "period_close",
		ProfilingLabelPeriod:    "",
	}, func(ctx context.Context) {
		got, ok = pprof.Label(ctx, ProfilingLabelOperation)
		skipped, _ = pprof.Label(ctx, ProfilingLabelPeriod)
	})
	assert.True(t, ok)
	assert.Equal(t, "period_close", got)
	assert.Empty(t, skipped)

	called := false
	WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}

func TestLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestLogsConfigFromApp(t *testing.T) {
	assert.False(t, LogsConfigFromApp(config.TelemetryConfig{LogsEnabled: true}).Enabled,
		"logs follow the telemetry master switch")
	assert.True(t, LogsConfigFromApp(config.TelemetryConfig{Enabled: true, LogsEnabled: true}).Enabled)
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}
	logger := zap.New(core).With(zap.String("component", "test"))

	logger.Info("dropped")
	logger.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "test", entry.ContextMap()["component"])
}
