// Package enforcement decides whether a parsed user action is admissible for
// the session's current stage and case-state.
//
// Decisions are pure: Enforce returns violations and a rejection envelope,
// and hands a Report to the injected Sink once per turn. The engine never
// advances the stage.
package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/buttons"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/casestate"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

const tracerName = "stagegate/enforcement"

// Result is the outcome of one enforced turn.
type Result struct {
	TurnID      string               `json:"turnId"`
	Allowed     bool                 `json:"allowed"`
	Violations  []contract.Violation `json:"violations"`
	Warnings    []contract.Violation `json:"warnings,omitempty"`
	Response    *RejectionEnvelope   `json:"response"`
	Event       UserEvent            `json:"event"`
	StageBefore flow.StageID         `json:"stageBefore"`
}

// Engine enforces stage contracts. It is immutable after New and safe for
// concurrent use across sessions.
type Engine struct {
	registry   *contract.Registry
	gate       casestate.Gate
	normalizer *buttons.Normalizer
	catalog    Catalog
	sink       Sink
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithCatalog(c Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. A nil gate means casestate.Open.
func New(reg *contract.Registry, gate casestate.Gate, opts ...Option) *Engine {
	if gate == nil {
		gate = casestate.Open{}
	}
	e := &Engine{
		registry:   reg,
		gate:       gate,
		normalizer: buttons.NewNormalizer(reg),
		catalog:    DefaultCatalog(),
		sink:       NopSink{},
		logger:     slog.Default().With("component", "enforcement"),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalizer returns the normalizer used for rejection buttons.
func (e *Engine) Normalizer() *buttons.Normalizer { return e.normalizer }

// EnforceOption adjusts a single Enforce call.
type EnforceOption func(*enforceOptions)

type enforceOptions struct {
	skipValidation bool
}

// SkipValidation admits the event without checks. Only for events injected by
// the system itself, never for user input.
func SkipValidation() EnforceOption {
	return func(o *enforceOptions) { o.skipValidation = true }
}

// Enforce decides whether in is admissible for s at its current stage.
func (e *Engine) Enforce(ctx context.Context, s *casestate.Session, in Input, opts ...EnforceOption) Result {
	var o enforceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if s == nil {
		s = &casestate.Session{}
	}

	// 1. Resolve stage
	stage := e.registry.Definition().Resolve(s.CurrentStage)

	ctx, span := e.tracer.Start(ctx, "stagegate.enforce", trace.WithAttributes(
		attribute.String("stagegate.stage", string(stage)),
		attribute.String("stagegate.session_id", s.ID),
	))
	defer span.End()

	// 2. Refresh case-state
	e.gate.Refresh(s)

	// 3. Parse
	ev := UserEvent{Type: EventText}
	if in != nil {
		ev = in.Event()
	}

	res := Result{
		TurnID:      uuid.NewString(),
		Event:       ev,
		StageBefore: stage,
		Violations:  []contract.Violation{},
	}
	span.SetAttributes(
		attribute.String("stagegate.turn_id", res.TurnID),
		attribute.String("stagegate.event_type", string(ev.Type)),
	)

	// 4. Trusted system events
	if o.skipValidation {
		res.Allowed = true
		c, _ := e.registry.Contract(stage)
		e.report(ctx, s, res, c, nil, true)
		return res
	}

	// 5-7. Evaluate
	c, all, reply := e.evaluate(s, stage, ev)

	errs := contract.Errors(all)
	res.Warnings = contract.Warnings(all)
	if len(errs) == 0 {
		// 8. Admissible
		res.Allowed = true
	} else {
		// 9. Rejection
		res.Violations = errs
		res.Response = BuildRejection(e.normalizer, stage, errs, reply)
		span.SetStatus(codes.Error, errs[0].Code)
	}
	span.SetAttributes(attribute.Bool("stagegate.allowed", res.Allowed))

	e.report(ctx, s, res, c, all, false)
	return res
}

// evaluate applies the stage contract and the gate. It returns the contract
// (zero when missing), every violation and the reply text for a rejection.
func (e *Engine) evaluate(s *casestate.Session, stage flow.StageID, ev UserEvent) (contract.Contract, []contract.Violation, string) {
	msgs := e.catalog.For(s.Case.Language)

	c, missing := e.registry.Lookup(stage)
	if missing != nil {
		e.logger.Error("no contract for stage", "session_id", s.ID, "stage", stage)
		return contract.Contract{}, []contract.Violation{*missing}, msgs.InternalError
	}

	switch ev.Type {
	case EventButton:
		token := ev.TokenValue()
		if !c.AllowButtons {
			return c, []contract.Violation{{
				Code:     contract.CodeButtonsNotAllowed,
				Detail:   fmt.Sprintf("stage %s accepts free text only", stage),
				Severity: contract.SeverityError,
				Token:    token,
				Stage:    stage,
			}}, msgs.UseFreeText
		}
		if _, ok := contract.TokenMatch(token, c.AllowedTokens); !ok {
			return c, []contract.Violation{{
				Code:          contract.CodeInvalidToken,
				Detail:        fmt.Sprintf("token %q is not allowed on stage %s", token, stage),
				Severity:      contract.SeverityError,
				Token:         token,
				Stage:         stage,
				AllowedTokens: c.AllowedTokenStrings(),
			}}, msgs.PickValidOption
		}
		d := e.gate.IsAllowedNow(s, stage, token)
		if !d.Allowed {
			code := d.Code
			if code == "" {
				code = contract.CodeCaseStateBlocked
			}
			reply := msgs.BlockedGuided
			if c.StageType == contract.StageDeterministic {
				reply = msgs.BlockedDeterministic
			}
			return c, []contract.Violation{{
				Code:     code,
				Detail:   d.Detail,
				Severity: contract.SeverityError,
				Token:    token,
				Stage:    stage,
			}}, reply
		}
		return c, nil, ""

	default:
		if !c.AllowText && ev.Normalized != "" {
			return c, []contract.Violation{{
				Code:     contract.CodeTextNotAllowed,
				Detail:   fmt.Sprintf("stage %s expects a button, got free text", stage),
				Severity: contract.SeverityWarning,
				Stage:    stage,
			}}, ""
		}
		return c, nil, ""
	}
}

// report hands the turn to the sink. c is the zero Contract when the stage
// has none.
func (e *Engine) report(ctx context.Context, s *casestate.Session, res Result, c contract.Contract, all []contract.Violation, skipped bool) {
	r := Report{
		TurnID:          res.TurnID,
		SessionID:       s.ID,
		Stage:           res.StageBefore,
		StageType:       c.StageType,
		Instrumentation: c.Instrumentation,
		Event:           res.Event,
		Allowed:         res.Allowed,
		Skipped:         skipped,
		Violations:      append([]contract.Violation{}, all...),
		ContractHash:    e.registry.Hash(),
		Timestamp:       e.now().UTC(),
	}
	if err := e.sink.Report(ctx, r); err != nil {
		e.logger.Warn("violation sink failed", "session_id", s.ID, "turn_id", res.TurnID, "error", err)
	}
}
