package contract

import (
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// StageType classifies how a stage collects input.
type StageType string

const (
	StageDeterministic StageType = "DETERMINISTIC"
	StageGuided        StageType = "GUIDED"
	StageOpenText      StageType = "OPEN_TEXT"
)

func (t StageType) valid() bool {
	switch t {
	case StageDeterministic, StageGuided, StageOpenText:
		return true
	}
	return false
}

// Button is a selectable option. Token is the opaque identifier, Label is
// what the user sees.
type Button struct {
	Token string `json:"token" yaml:"token"`
	Label string `json:"label" yaml:"label"`
	Order int    `json:"order" yaml:"order"`
}

// UIHints are rendering hints carried verbatim to the view model.
type UIHints struct {
	ShowInput          bool `json:"showInput" yaml:"show_input"`
	ShowAttach         bool `json:"showAttach" yaml:"show_attach"`
	ShowTranscriptLink bool `json:"showTranscriptLink" yaml:"show_transcript_link"`
}

// Instrumentation controls how turns on a stage are logged.
type Instrumentation struct {
	LogLevel   string  `json:"logLevel" yaml:"log_level"`     // debug | info | warn | error
	SampleRate float64 `json:"sampleRate" yaml:"sample_rate"` // fraction of allowed turns logged
}

// Contract is the declarative specification of what a stage accepts.
//
// Contracts are immutable once registered; accessors on Registry hand out
// copies.
type Contract struct {
	Stage           flow.StageID    `json:"stage"`
	StageType       StageType       `json:"stageType"`
	AllowText       bool            `json:"allowText"`
	AllowButtons    bool            `json:"allowButtons"`
	AllowedTokens   []Pattern       `json:"allowedTokens"`
	MaxButtons      int             `json:"maxButtons"`
	DefaultButtons  []Button        `json:"defaultButtons"`
	UIHints         UIHints         `json:"uiHints"`
	Instrumentation Instrumentation `json:"instrumentation"`
}

func (c Contract) clone() Contract {
	out := c
	out.AllowedTokens = append([]Pattern(nil), c.AllowedTokens...)
	out.DefaultButtons = CloneButtons(c.DefaultButtons)
	return out
}

// AllowedTokenStrings returns the allowed patterns in table notation.
func (c Contract) AllowedTokenStrings() []string {
	out := make([]string, len(c.AllowedTokens))
	for i, p := range c.AllowedTokens {
		out[i] = p.String()
	}
	return out
}

// CloneButtons returns a copy of buttons that is never nil.
func CloneButtons(buttons []Button) []Button {
	out := make([]Button, len(buttons))
	copy(out, buttons)
	return out
}

// Severity of a violation. Only SeverityError blocks a turn.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation codes produced by the registry and the enforcement engine.
// Case-state gates may add their own codes.
const (
	CodeNoContract        = "NO_CONTRACT"
	CodeButtonsNotAllowed = "BUTTONS_NOT_ALLOWED"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeTooManyButtons    = "TOO_MANY_BUTTONS"
	CodeCaseStateBlocked  = "CASESTATE_BLOCKED"
	CodeTextNotAllowed    = "TEXT_NOT_ALLOWED"
)

// Violation records one way an event or button set failed its stage contract.
type Violation struct {
	Code          string       `json:"code"`
	Detail        string       `json:"detail"`
	Severity      Severity     `json:"severity"`
	Token         string       `json:"token,omitempty"`
	Stage         flow.StageID `json:"stage"`
	AllowedTokens []string     `json:"allowedTokens,omitempty"`
}

// Blocking reports whether the violation denies the turn.
func (v Violation) Blocking() bool { return v.Severity == SeverityError }

// Errors returns the blocking subset of vs, never nil.
func Errors(vs []Violation) []Violation {
	out := make([]Violation, 0, len(vs))
	for _, v := range vs {
		if v.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns the advisory subset of vs.
func Warnings(vs []Violation) []Violation {
	var out []Violation
	for _, v := range vs {
		if !v.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// HasCode reports whether any violation carries code.
func HasCode(vs []Violation, code string) bool {
	for _, v := range vs {
		if v.Code == code {
			return true
		}
	}
	return false
}
