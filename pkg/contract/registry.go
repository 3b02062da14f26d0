package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

var (
	// ErrInvalidTable is returned when a contract table violates a load-time invariant.
	ErrInvalidTable = errors.New("contract: invalid contract table")
	// ErrUnsupportedVersion is returned when the table version is outside the supported range.
	ErrUnsupportedVersion = errors.New("contract: unsupported table version")
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Registry maps stage ids to their contracts. It is built once, never mutated
// afterwards and safe for concurrent use.
type Registry struct {
	def       flow.Definition
	version   string
	contracts map[flow.StageID]Contract
	hash      string
}

// ButtonSetValidation is the outcome of checking an outbound button set.
type ButtonSetValidation struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// New validates contracts against def and builds a Registry.
func New(def flow.Definition, version string, contracts []Contract) (*Registry, error) {
	r := &Registry{
		def:       def,
		version:   version,
		contracts: make(map[flow.StageID]Contract, len(contracts)),
	}
	for _, c := range contracts {
		if _, dup := r.contracts[c.Stage]; dup {
			return nil, fmt.Errorf("%w: duplicate contract for stage %s", ErrInvalidTable, c.Stage)
		}
		if c.Instrumentation.LogLevel == "" {
			c.Instrumentation.LogLevel = "info"
		}
		if err := validateContract(def, c); err != nil {
			return nil, err
		}
		r.contracts[c.Stage] = c.clone()
	}

	h, err := r.computeHash()
	if err != nil {
		return nil, fmt.Errorf("contract: hash table: %w", err)
	}
	r.hash = h
	return r, nil
}

func validateContract(def flow.Definition, c Contract) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: stage %s: %s", ErrInvalidTable, c.Stage, fmt.Sprintf(format, args...))
	}
	if !def.Contains(c.Stage) {
		return fail("not a member of the flow enumeration")
	}
	if !c.StageType.valid() {
		return fail("unknown stage type %q", c.StageType)
	}
	if c.MaxButtons < 0 {
		return fail("maxButtons must be >= 0, got %d", c.MaxButtons)
	}
	if !c.AllowButtons && len(c.DefaultButtons) > 0 {
		return fail("default buttons declared but buttons are not allowed")
	}
	if len(c.DefaultButtons) > c.MaxButtons {
		return fail("%d default buttons exceed maxButtons %d", len(c.DefaultButtons), c.MaxButtons)
	}
	seen := make(map[string]bool, len(c.DefaultButtons))
	for _, b := range c.DefaultButtons {
		if b.Token == "" {
			return fail("default button with empty token")
		}
		if seen[b.Token] {
			return fail("duplicate default button %s", b.Token)
		}
		seen[b.Token] = true
		if _, ok := TokenMatch(b.Token, c.AllowedTokens); !ok {
			return fail("default button %s is not covered by allowedTokens", b.Token)
		}
	}
	if !validLogLevels[c.Instrumentation.LogLevel] {
		return fail("unknown log level %q", c.Instrumentation.LogLevel)
	}
	if c.Instrumentation.SampleRate < 0 || c.Instrumentation.SampleRate > 1 {
		return fail("sample rate %v outside [0,1]", c.Instrumentation.SampleRate)
	}
	return nil
}

// computeHash hashes the RFC 8785 canonical form of the table.
func (r *Registry) computeHash() (string, error) {
	doc := struct {
		Version   string     `json:"version"`
		Contracts []Contract `json:"contracts"`
	}{Version: r.version}
	for _, id := range r.Stages() {
		doc.Contracts = append(doc.Contracts, r.contracts[id])
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Definition returns the flow enumeration the table was validated against.
func (r *Registry) Definition() flow.Definition { return r.def }

// Version returns the table version string.
func (r *Registry) Version() string { return r.version }

// Hash returns the content hash of the table, used as the policy reference in
// audit records.
func (r *Registry) Hash() string { return r.hash }

// Stages returns the stages that have a contract, in flow order.
func (r *Registry) Stages() []flow.StageID {
	var out []flow.StageID
	for _, id := range r.def.Stages() {
		if _, ok := r.contracts[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Uncovered returns enumerated stages that have no contract.
func (r *Registry) Uncovered() []flow.StageID {
	var out []flow.StageID
	for _, id := range r.def.Stages() {
		if _, ok := r.contracts[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Contract returns a copy of the contract for id.
func (r *Registry) Contract(id flow.StageID) (Contract, bool) {
	c, ok := r.contracts[id]
	if !ok {
		return Contract{}, false
	}
	return c.clone(), true
}

// Lookup is Contract with a NO_CONTRACT violation for unknown stages.
func (r *Registry) Lookup(id flow.StageID) (Contract, *Violation) {
	c, ok := r.Contract(id)
	if !ok {
		return Contract{}, &Violation{
			Code:     CodeNoContract,
			Detail:   fmt.Sprintf("no contract registered for stage %q", id),
			Severity: SeverityError,
			Stage:    id,
		}
	}
	return c, nil
}

// IsTokenAllowed reports whether token may be pressed on stage id.
func (r *Registry) IsTokenAllowed(id flow.StageID, token string) bool {
	c, ok := r.contracts[id]
	if !ok || !c.AllowButtons {
		return false
	}
	_, ok = TokenMatch(token, c.AllowedTokens)
	return ok
}

// DefaultButtons returns a copy of the stage defaults, empty for unknown stages.
func (r *Registry) DefaultButtons(id flow.StageID) []Button {
	c, ok := r.contracts[id]
	if !ok {
		return []Button{}
	}
	return CloneButtons(c.DefaultButtons)
}

// IsDeterministicStage reports whether id is a DETERMINISTIC stage.
func (r *Registry) IsDeterministicStage(id flow.StageID) bool {
	c, ok := r.contracts[id]
	return ok && c.StageType == StageDeterministic
}

// ValidateButtonSet checks an outbound button set against the stage contract.
// The input slice is not modified.
func (r *Registry) ValidateButtonSet(id flow.StageID, buttons []Button) ButtonSetValidation {
	c, v := r.Lookup(id)
	if v != nil {
		return ButtonSetValidation{Violations: []Violation{*v}}
	}

	violations := []Violation{}
	if !c.AllowButtons {
		if len(buttons) > 0 {
			violations = append(violations, Violation{
				Code:     CodeButtonsNotAllowed,
				Detail:   fmt.Sprintf("stage %s does not accept buttons, got %d", id, len(buttons)),
				Severity: SeverityError,
				Stage:    id,
			})
		}
		return ButtonSetValidation{Valid: len(violations) == 0, Violations: violations}
	}

	if len(buttons) > c.MaxButtons {
		violations = append(violations, Violation{
			Code:     CodeTooManyButtons,
			Detail:   fmt.Sprintf("%d buttons exceed maxButtons %d", len(buttons), c.MaxButtons),
			Severity: SeverityError,
			Stage:    id,
		})
	}
	for _, b := range buttons {
		if _, ok := TokenMatch(b.Token, c.AllowedTokens); !ok {
			violations = append(violations, Violation{
				Code:          CodeInvalidToken,
				Detail:        fmt.Sprintf("token %q is not allowed on stage %s", b.Token, id),
				Severity:      SeverityError,
				Token:         b.Token,
				Stage:         id,
				AllowedTokens: c.AllowedTokenStrings(),
			})
		}
	}
	return ButtonSetValidation{Valid: len(violations) == 0, Violations: violations}
}
