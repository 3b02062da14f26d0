package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/observability"
)

// Config holds stage gate configuration.
type Config struct {
	ContractsPath string // empty means the embedded table
	PolicyPath    string // empty means the embedded case-state policy
	LogLevel      string
	LogFormat     string // "json" or "text"

	AuditDriver string // "", "sqlite" or "postgres"
	AuditDSN    string
	AuditCSV    string // flow-audit CSV path, empty disables it

	OTelEnabled     bool
	OTelEndpoint    string
	OTelInsecure    bool
	OTelServiceName string
	OTelSampleRate  float64
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	if logFormat != "text" {
		logFormat = "json"
	}

	auditDSN := os.Getenv("AUDIT_DSN")
	auditDriver := os.Getenv("AUDIT_DRIVER")
	if auditDriver == "sqlite" && auditDSN == "" {
		auditDSN = "data/stagegate-audit.db"
	}

	defaults := observability.DefaultConfig()
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = defaults.OTLPEndpoint
	}
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaults.ServiceName
	}
	sampleRate := defaults.SampleRate
	if v, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil && v >= 0 && v <= 1 {
		sampleRate = v
	}

	return &Config{
		ContractsPath:   os.Getenv("STAGEGATE_CONTRACTS"),
		PolicyPath:      os.Getenv("STAGEGATE_POLICY"),
		LogLevel:        logLevel,
		LogFormat:       logFormat,
		AuditDriver:     auditDriver,
		AuditDSN:        auditDSN,
		AuditCSV:        os.Getenv("AUDIT_CSV"),
		OTelEnabled:     os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:    endpoint,
		OTelInsecure:    os.Getenv("OTEL_INSECURE") == "true",
		OTelServiceName: serviceName,
		OTelSampleRate:  sampleRate,
	}
}

// Observability maps the OTEL_* settings onto a provider config.
func (c *Config) Observability() *observability.Config {
	oc := observability.DefaultConfig()
	oc.Enabled = c.OTelEnabled
	oc.OTLPEndpoint = c.OTelEndpoint
	oc.Insecure = c.OTelInsecure
	oc.ServiceName = c.OTelServiceName
	oc.SampleRate = c.OTelSampleRate
	return oc
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
