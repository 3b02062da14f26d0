package audit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"golang.org/x/time/rate"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// LogSink writes enforcement reports as structured log records.
//
// Rejections are always logged, at warn or above. Clean admitted turns are
// sampled at the stage's SampleRate. Admitted turns carrying advisories are
// throttled per stage.
type LogSink struct {
	logger *slog.Logger
	sample func() float64

	advisoryRate  rate.Limit
	advisoryBurst int

	mu       sync.Mutex
	limiters map[flow.StageID]*rate.Limiter
}

// LogSinkOption configures a LogSink.
type LogSinkOption func(*LogSink)

// WithSampler replaces the random source used for sampling. It must return
// values in [0, 1).
func WithSampler(f func() float64) LogSinkOption {
	return func(s *LogSink) { s.sample = f }
}

// WithAdvisoryRate sets the per-stage budget for advisory records.
func WithAdvisoryRate(r rate.Limit, burst int) LogSinkOption {
	return func(s *LogSink) {
		s.advisoryRate = r
		s.advisoryBurst = burst
	}
}

func NewLogSink(logger *slog.Logger, opts ...LogSinkOption) *LogSink {
	if logger == nil {
		logger = slog.Default().With("component", "audit")
	}
	s := &LogSink{
		logger:        logger,
		sample:        rand.Float64,
		advisoryRate:  rate.Limit(1),
		advisoryBurst: 5,
		limiters:      make(map[flow.StageID]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *LogSink) advisoryAllowed(stage flow.StageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[stage]
	if !ok {
		l = rate.NewLimiter(s.advisoryRate, s.advisoryBurst)
		s.limiters[stage] = l
	}
	return l.Allow()
}

// Report implements enforcement.Sink.
func (s *LogSink) Report(ctx context.Context, r enforcement.Report) error {
	level := parseLevel(r.Instrumentation.LogLevel)
	attrs := []slog.Attr{
		slog.String("turn_id", r.TurnID),
		slog.String("session_id", r.SessionID),
		slog.String("stage", string(r.Stage)),
		slog.String("event_type", string(r.Event.Type)),
		slog.String("contract_hash", r.ContractHash),
	}
	if tok := r.Event.TokenValue(); tok != "" {
		attrs = append(attrs, slog.String("token", tok))
	}
	if len(r.Violations) > 0 {
		attrs = append(attrs, slog.Any("codes", r.Codes()))
	}

	switch {
	case r.Skipped:
		s.logger.LogAttrs(ctx, slog.LevelDebug, "system event admitted without validation", attrs...)
	case contract.HasCode(r.Violations, contract.CodeNoContract):
		s.logger.LogAttrs(ctx, slog.LevelError, "stage has no contract", attrs...)
	case !r.Allowed:
		s.logger.LogAttrs(ctx, max(level, slog.LevelWarn), "turn rejected", attrs...)
	case len(r.Violations) > 0:
		if s.advisoryAllowed(r.Stage) {
			s.logger.LogAttrs(ctx, level, "turn admitted with advisories", attrs...)
		}
	default:
		if s.sample() < r.Instrumentation.SampleRate {
			s.logger.LogAttrs(ctx, level, "turn admitted", attrs...)
		}
	}
	return nil
}
