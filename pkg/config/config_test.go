package config_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/config"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"STAGEGATE_CONTRACTS", "STAGEGATE_POLICY", "LOG_LEVEL", "LOG_FORMAT",
		"AUDIT_DRIVER", "AUDIT_DSN", "AUDIT_CSV",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Empty(t, cfg.ContractsPath)
	assert.Empty(t, cfg.PolicyPath)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.AuditDriver)
	assert.Empty(t, cfg.AuditCSV)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTelEndpoint)
	assert.Equal(t, "stagegate", cfg.OTelServiceName)
	assert.Equal(t, 1.0, cfg.OTelSampleRate)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STAGEGATE_CONTRACTS", "/etc/stagegate/contracts.yaml")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("AUDIT_DRIVER", "sqlite")
	t.Setenv("AUDIT_CSV", "data/logs/flow-audit.csv")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := config.Load()

	assert.Equal(t, "/etc/stagegate/contracts.yaml", cfg.ContractsPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "data/stagegate-audit.db", cfg.AuditDSN)

	oc := cfg.Observability()
	assert.True(t, oc.Enabled)
	assert.True(t, oc.Insecure)
	assert.Equal(t, "collector:4317", oc.OTLPEndpoint)
	assert.Equal(t, 0.25, oc.SampleRate)
}

func TestLoad_IgnoresBadSampleRate(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "2")
	assert.Equal(t, 1.0, config.Load().OTelSampleRate)
}

func TestNewLogger(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	cfg := config.Load()

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	cfg.LogLevel = "verbose"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
