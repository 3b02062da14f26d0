package casestate

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// CELGate evaluates a Policy with CEL. All expressions are compiled up front,
// so a constructed gate is immutable and safe for concurrent use.
type CELGate struct {
	derive []compiledDerivation
	rules  []compiledRule
	logger *slog.Logger
}

type compiledDerivation struct {
	flag string
	prg  cel.Program
}

type compiledRule struct {
	stages map[flow.StageID]bool // nil means every stage
	tokens []contract.Pattern
	prg    cel.Program
	expr   string
	code   string
	detail string
}

// Option configures a CELGate.
type Option func(*gateOptions)

type gateOptions struct {
	logger *slog.Logger
	def    *flow.Definition
}

// WithLogger sets the logger used for evaluation failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *gateOptions) { o.logger = l }
}

// WithFlow makes construction reject rules naming stages outside def.
func WithFlow(def flow.Definition) Option {
	return func(o *gateOptions) { o.def = &def }
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("case", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("flags", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("stage", cel.StringType),
		cel.Variable("token", cel.StringType),
		cel.Variable("token_suffix", cel.StringType),
	)
}

// NewCELGate compiles p.
func NewCELGate(p Policy, opts ...Option) (*CELGate, error) {
	o := gateOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "casestate")
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	g := &CELGate{logger: o.logger}
	seen := make(map[string]bool, len(p.Derive))
	for i, d := range p.Derive {
		if d.Flag == "" {
			return nil, fmt.Errorf("%w: derivation %d has no flag name", ErrInvalidPolicy, i)
		}
		if seen[d.Flag] {
			return nil, fmt.Errorf("%w: flag %q derived twice", ErrInvalidPolicy, d.Flag)
		}
		seen[d.Flag] = true
		prg, err := compileBool(env, d.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: flag %s: %v", ErrInvalidPolicy, d.Flag, err)
		}
		g.derive = append(g.derive, compiledDerivation{flag: d.Flag, prg: prg})
	}

	for i, r := range p.Rules {
		cr, err := compileRule(env, r, o.def)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidPolicy, i, err)
		}
		g.rules = append(g.rules, cr)
	}
	return g, nil
}

// Default compiles the embedded STI policy.
func Default() *CELGate {
	g, err := NewCELGate(DefaultPolicy(), WithFlow(flow.Default()))
	if err != nil {
		panic(fmt.Sprintf("casestate: embedded policy: %v", err))
	}
	return g
}

func compileRule(env *cel.Env, r Rule, def *flow.Definition) (compiledRule, error) {
	if len(r.Tokens) == 0 {
		return compiledRule{}, fmt.Errorf("no tokens")
	}
	cr := compiledRule{expr: r.Expr, code: r.Code, detail: r.Detail}
	if cr.code == "" {
		cr.code = DefaultDenyCode
	}
	if len(r.Stages) > 0 {
		cr.stages = make(map[flow.StageID]bool, len(r.Stages))
		for _, s := range r.Stages {
			id := flow.StageID(s)
			if def != nil && !def.Contains(id) {
				return compiledRule{}, fmt.Errorf("unknown stage %q", s)
			}
			cr.stages[id] = true
		}
	}
	for _, t := range r.Tokens {
		p, err := contract.ParsePattern(t)
		if err != nil {
			return compiledRule{}, err
		}
		cr.tokens = append(cr.tokens, p)
	}
	prg, err := compileBool(env, r.Expr)
	if err != nil {
		return compiledRule{}, err
	}
	cr.prg = prg
	return cr, nil
}

func compileBool(env *cel.Env, expr string) (cel.Program, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q yields %s, want bool", expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	return prg, nil
}

func evalBool(prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not boolean")
	}
	return v, nil
}

// deriveFlags computes flags without touching s.
func (g *CELGate) deriveFlags(s *Session) Flags {
	flags := make(Flags, len(g.derive))
	for _, d := range g.derive {
		flags[d.flag] = false
	}
	caseVars := s.Case.Vars()
	for _, d := range g.derive {
		v, err := evalBool(d.prg, map[string]any{
			"case":         caseVars,
			"flags":        map[string]bool(flags),
			"stage":        string(s.CurrentStage),
			"token":        "",
			"token_suffix": "",
		})
		if err != nil {
			g.logger.Warn("flag derivation failed", "session_id", s.ID, "flag", d.flag, "error", err)
			v = false
		}
		flags[d.flag] = v
	}
	return flags
}

// Refresh recomputes s.Flags from s.Case.
func (g *CELGate) Refresh(s *Session) {
	if s == nil {
		return
	}
	s.Flags = g.deriveFlags(s)
}

// IsAllowedNow evaluates the rules matching stage and token in order. A rule
// that fails to evaluate denies.
func (g *CELGate) IsAllowedNow(s *Session, stage flow.StageID, token string) Decision {
	if s == nil {
		s = &Session{}
	}
	flags := s.Flags
	if flags == nil {
		flags = g.deriveFlags(s)
	}
	var caseVars map[string]any

	for _, r := range g.rules {
		if r.stages != nil && !r.stages[stage] {
			continue
		}
		p, ok := contract.TokenMatch(token, r.tokens)
		if !ok {
			continue
		}
		if caseVars == nil {
			caseVars = s.Case.Vars()
		}
		allowed, err := evalBool(r.prg, map[string]any{
			"case":         caseVars,
			"flags":        map[string]bool(flags),
			"stage":        string(stage),
			"token":        token,
			"token_suffix": p.Suffix(token),
		})
		if err != nil {
			g.logger.Warn("gate rule failed, denying",
				"session_id", s.ID, "stage", stage, "token", token, "expr", r.expr, "error", err)
			return Deny(r.code, fmt.Sprintf("%s (evaluation failed)", r.detail))
		}
		if !allowed {
			return Deny(r.code, r.detail)
		}
	}
	return Allow()
}
