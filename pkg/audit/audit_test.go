package audit

import (
	"time"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

var testTime = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func allowedReport(session, turn string) enforcement.Report {
	return enforcement.Report{
		TurnID:          turn,
		SessionID:       session,
		Stage:           flow.AskOS,
		StageType:       contract.StageDeterministic,
		Instrumentation: contract.Instrumentation{LogLevel: "info", SampleRate: 1},
		Event:           enforcement.Parse(enforcement.ButtonPress("BTN_OS_LINUX")),
		Allowed:         true,
		Violations:      []contract.Violation{},
		ContractHash:    "sha256:abc",
		Timestamp:       testTime,
	}
}

func rejectedReport(session, turn string) enforcement.Report {
	r := allowedReport(session, turn)
	r.Event = enforcement.Parse(enforcement.ButtonPress("BTN_OS_SOLARIS"))
	r.Allowed = false
	r.Violations = []contract.Violation{{
		Code:     contract.CodeInvalidToken,
		Detail:   `token "BTN_OS_SOLARIS" is not allowed on stage ASK_OS`,
		Severity: contract.SeverityError,
		Token:    "BTN_OS_SOLARIS",
		Stage:    flow.AskOS,
	}}
	return r
}

func advisoryReport(session, turn string) enforcement.Report {
	r := allowedReport(session, turn)
	r.Stage = flow.AskLanguage
	r.Event = enforcement.Parse(enforcement.TextMessage("hola"))
	r.Violations = []contract.Violation{{
		Code:     contract.CodeTextNotAllowed,
		Severity: contract.SeverityWarning,
		Stage:    flow.AskLanguage,
	}}
	return r
}
