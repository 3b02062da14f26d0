package enforcement

import (
	"github.com/stirosario/sti-ai-chat-sub010/pkg/buttons"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// RejectionEnvelope is the reply sent in place of normal processing when a turn
// is denied.
type RejectionEnvelope struct {
	OK         bool                 `json:"ok"`
	Reply      string               `json:"reply"`
	Stage      flow.StageID         `json:"stage"`
	Buttons    []contract.Button    `json:"buttons"`
	ViewModel  buttons.ViewModel    `json:"viewModel"`
	Violations []contract.Violation `json:"violations"`
}

// BuildRejection assembles the rejection for stage. Buttons are the stage
// defaults passed through n. OK is false only when the stage has no contract.
func BuildRejection(n *buttons.Normalizer, stage flow.StageID, violations []contract.Violation, reply string) *RejectionEnvelope {
	vm, _ := n.ViewModel(stage)
	normalized := n.Normalize(stage, n.Registry().DefaultButtons(stage))

	vs := make([]contract.Violation, len(violations))
	copy(vs, violations)

	return &RejectionEnvelope{
		OK:         !contract.HasCode(violations, contract.CodeNoContract),
		Reply:      reply,
		Stage:      stage,
		Buttons:    normalized.Buttons,
		ViewModel:  vm,
		Violations: vs,
	}
}
