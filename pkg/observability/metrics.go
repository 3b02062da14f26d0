package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
)

// Metric names.
const (
	MetricTurns      = "stagegate.turns"
	MetricViolations = "stagegate.violations"
	MetricContract   = "stagegate.contract.info"
)

// EnforcementMetrics counts turns and violations per stage. It implements
// enforcement.Sink.
type EnforcementMetrics struct {
	turns      metric.Int64Counter
	violations metric.Int64Counter
}

// NewEnforcementMetrics registers the counters on meter.
func NewEnforcementMetrics(meter metric.Meter) (*EnforcementMetrics, error) {
	var (
		m   EnforcementMetrics
		err error
	)

	m.turns, err = meter.Int64Counter(MetricTurns,
		metric.WithDescription("Turns evaluated by the enforcement engine"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	m.violations, err = meter.Int64Counter(MetricViolations,
		metric.WithDescription("Violations raised by the enforcement engine"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Report implements enforcement.Sink.
func (m *EnforcementMetrics) Report(ctx context.Context, r enforcement.Report) error {
	stage := attribute.String("stage", string(r.Stage))
	m.turns.Add(ctx, 1, metric.WithAttributes(
		stage,
		attribute.Bool("allowed", r.Allowed),
		attribute.Bool("skipped", r.Skipped),
	))
	for _, v := range r.Violations {
		m.violations.Add(ctx, 1, metric.WithAttributes(
			stage,
			attribute.String("code", v.Code),
			attribute.String("severity", string(v.Severity)),
		))
	}
	return nil
}

// RegisterContractInfo publishes the loaded contract table version and hash
// as a gauge fixed at 1.
func RegisterContractInfo(meter metric.Meter, version, hash string) error {
	_, err := meter.Int64ObservableGauge(MetricContract,
		metric.WithDescription("Loaded stage contract table"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(1, metric.WithAttributes(
				attribute.String("version", version),
				attribute.String("hash", hash),
			))
			return nil
		}),
	)
	return err
}
