package enforcement

import (
	"context"
	"errors"
	"time"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// Report is the per-turn record handed to sinks. Violations include warnings.
type Report struct {
	TurnID          string                   `json:"turnId"`
	SessionID       string                   `json:"sessionId"`
	Stage           flow.StageID             `json:"stage"`
	StageType       contract.StageType       `json:"stageType,omitempty"`
	Instrumentation contract.Instrumentation `json:"instrumentation"`
	Event           UserEvent                `json:"event"`
	Allowed         bool                     `json:"allowed"`
	Skipped         bool                     `json:"skipped"`
	Violations      []contract.Violation     `json:"violations"`
	ContractHash    string                   `json:"contractHash"`
	Timestamp       time.Time                `json:"timestamp"`
}

// Codes returns the violation codes in order.
func (r Report) Codes() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Code
	}
	return out
}

// Sink receives one Report per enforced turn.
type Sink interface {
	Report(ctx context.Context, r Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Report) error

func (f SinkFunc) Report(ctx context.Context, r Report) error { return f(ctx, r) }

// NopSink discards reports.
type NopSink struct{}

func (NopSink) Report(context.Context, Report) error { return nil }

type multiSink []Sink

// Sinks fans a report out to every sink. All sinks are called even if one
// fails; the errors are joined.
func Sinks(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Report(ctx context.Context, r Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
