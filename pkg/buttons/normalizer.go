// Package buttons repairs outbound button sets and projects stage contracts
// into the view model the chat widget renders.
package buttons

import (
	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// ViewModel is the UI-facing projection of a stage contract.
type ViewModel struct {
	StageType    contract.StageType `json:"stageType"`
	AllowText    bool               `json:"allowText"`
	AllowButtons bool               `json:"allowButtons"`
	MaxButtons   int                `json:"maxButtons"`
	UIHints      contract.UIHints   `json:"uiHints"`
}

// Fallback is served for stages without a contract: free text only.
var Fallback = ViewModel{
	StageType: contract.StageOpenText,
	AllowText: true,
	UIHints:   contract.UIHints{ShowInput: true},
}

// Project returns the view model of c.
func Project(c contract.Contract) ViewModel {
	return ViewModel{
		StageType:    c.StageType,
		AllowText:    c.AllowText,
		AllowButtons: c.AllowButtons,
		MaxButtons:   c.MaxButtons,
		UIHints:      c.UIHints,
	}
}

// Result is the outcome of Normalize. Violations describe the input, Buttons
// is the repaired set.
type Result struct {
	Valid      bool                 `json:"valid"`
	Buttons    []contract.Button    `json:"buttons"`
	Violations []contract.Violation `json:"violations"`
}

// Normalizer brings button sets produced by other components into line with
// the stage contract.
type Normalizer struct {
	registry *contract.Registry
}

func NewNormalizer(reg *contract.Registry) *Normalizer {
	return &Normalizer{registry: reg}
}

// Registry returns the registry the normalizer validates against.
func (n *Normalizer) Registry() *contract.Registry { return n.registry }

// critical violations make the input unusable; the stage defaults replace it.
func critical(vs []contract.Violation) bool {
	return contract.HasCode(vs, contract.CodeButtonsNotAllowed) || contract.HasCode(vs, contract.CodeNoContract)
}

// Normalize validates buttons for stage id and repairs them:
//   - valid input is returned as is
//   - BUTTONS_NOT_ALLOWED or NO_CONTRACT: the stage defaults are substituted
//   - otherwise invalid tokens are dropped and the rest truncated to MaxButtons
//
// The input slice is not modified. Normalize(Normalize(x).Buttons) yields the
// same buttons.
func (n *Normalizer) Normalize(id flow.StageID, in []contract.Button) Result {
	check := n.registry.ValidateButtonSet(id, in)
	if check.Valid {
		return Result{Valid: true, Buttons: contract.CloneButtons(in), Violations: []contract.Violation{}}
	}
	if critical(check.Violations) {
		return Result{Buttons: n.registry.DefaultButtons(id), Violations: check.Violations}
	}

	c, _ := n.registry.Contract(id)
	out := make([]contract.Button, 0, c.MaxButtons)
	for _, b := range in {
		if len(out) == c.MaxButtons {
			break
		}
		if _, ok := contract.TokenMatch(b.Token, c.AllowedTokens); ok {
			out = append(out, b)
		}
	}
	return Result{Buttons: out, Violations: check.Violations}
}

// ViewModel returns the projection of the stage contract. Unknown stages get
// Fallback and false.
func (n *Normalizer) ViewModel(id flow.StageID) (ViewModel, bool) {
	c, ok := n.registry.Contract(id)
	if !ok {
		return Fallback, false
	}
	return Project(c), true
}
