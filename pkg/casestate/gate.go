package casestate

import (
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// DefaultDenyCode is used when a gate rule does not name its own code.
const DefaultDenyCode = "CASESTATE_BLOCKED"

// Decision is a gate verdict for one token.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Allow is the permissive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a denial, falling back to DefaultDenyCode.
func Deny(code, detail string) Decision {
	if code == "" {
		code = DefaultDenyCode
	}
	return Decision{Code: code, Detail: detail}
}

// Gate reconciles static contracts with dynamic case-state.
//
// Refresh may write s.Flags and nothing else. IsAllowedNow must not mutate s.
type Gate interface {
	Refresh(s *Session)
	IsAllowedNow(s *Session, stage flow.StageID, token string) Decision
}

// Open is a gate that never restricts.
type Open struct{}

func (Open) Refresh(*Session) {}

func (Open) IsAllowedNow(*Session, flow.StageID, string) Decision { return Allow() }
