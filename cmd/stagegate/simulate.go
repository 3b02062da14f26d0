package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/casestate"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/config"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// step is one scripted user action. A step without an expected code must be
// admitted; then runs only for admitted steps and plays the conversation
// layer, advancing the stage and recording case facts.
type step struct {
	in     enforcement.RawInput
	expect string
	warn   string
	then   func(*casestate.Session)
}

type scenario struct {
	name    string
	session string
	steps   []step
}

func press(token string) step { return step{in: enforcement.ButtonPress(token)} }

func say(text string) step { return step{in: enforcement.TextMessage(text)} }

func (s step) rejects(code string) step { s.expect = code; return s }

func (s step) warns(code string) step { s.warn = code; return s }

func (s step) next(stage flow.StageID, edits ...func(*casestate.CaseFields)) step {
	s.then = func(sess *casestate.Session) {
		for _, edit := range edits {
			edit(&sess.Case)
		}
		sess.CurrentStage = stage
	}
	return s
}

func language(l string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.Language = l }
}

func consent(c *casestate.CaseFields) { c.ConsentGiven = true }

func name(n string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.UserName = n }
}

func need(n string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.Need = n }
}

func problem(p string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.Problem = p }
}

func device(d string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.Device = d }
}

func osChoice(o string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.OS = o }
}

func stepsShown(n int) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.StepsShown = n }
}

func testsFailed(c *casestate.CaseFields) { c.TestsFailed = true }

func ticket(id string) func(*casestate.CaseFields) {
	return func(c *casestate.CaseFields) { c.TicketID = id }
}

// scenarios are the support conversations replayed by `stagegate simulate`.
func scenarios() []scenario {
	return []scenario{
		{
			name:    "pc-no-enciende",
			session: "sim-es-ar-anon",
			steps: []step{
				press("BTN_LANG_ES_AR").next(flow.AskConsent, language("es-AR")),
				press("si").next(flow.AskName, consent),
				press("BTN_NO_NAME").rejects(contract.CodeButtonsNotAllowed),
				say("prefiero no decirlo").next(flow.AskNeed),
				press("BTN_HELP").next(flow.AskProblem, need("problem")),
				say("mi pc no enciende").next(flow.AskDevice, problem("mi pc no enciende")),
				say("es una pc de escritorio").next(flow.BasicTests, device("desktop"), stepsShown(3)),
				press("BTN_HELP_STEP_2"),
				press("BTN_HELP_STEP_5").rejects("HELP_STEP_NOT_SHOWN"),
				press("BTN_TESTS_DONE").next(flow.Ended),
			},
		},
		{
			name:    "stick-tv-app",
			session: "sim-es-es-stick",
			steps: []step{
				press("BTN_LANG_ES_ES").next(flow.AskConsent, language("es-ES")),
				press("BTN_CONSENT_YES").next(flow.AskName, consent),
				say("Lucía").next(flow.AskNeed, name("Lucía")),
				press("BTN_TASK").next(flow.AskProblem, need("task")),
				say("quiero instalar una app en el stick").next(flow.AskDevice, problem("instalar app en stick")),
				press("BTN_OS_WINDOWS").rejects(contract.CodeInvalidToken),
				press("BTN_DEV_TV_STICK").next(flow.BasicTests, device("tv_stick"), stepsShown(2)),
				press("BTN_SOLVED").next(flow.Ended),
			},
		},
		{
			name:    "mikrotik-wan",
			session: "sim-en-router",
			steps: []step{
				press("BTN_LANG_EN").next(flow.AskConsent, language("en")),
				press("yes").next(flow.AskName, consent),
				say("Mark").next(flow.AskNeed, name("Mark")),
				press("BTN_HELP").next(flow.AskProblem, need("problem")),
				say("my MikroTik lost the WAN link").next(flow.AskDevice, problem("mikrotik wan down")),
				press("BTN_DEV_ROUTER").next(flow.BasicTests, device("router"), stepsShown(3)),
				press("BTN_TESTS_FAIL").next(flow.AdvancedTests, testsFailed),
				say("still no internet"),
				press("BTN_SOLVED").next(flow.Ended),
			},
		},
		{
			name:    "notebook-whatsapp-ticket",
			session: "sim-es-ar-ticket",
			steps: []step{
				press("BTN_LANG_ES_AR").next(flow.AskConsent, language("es-AR")),
				press("BTN_CONSENT_YES").next(flow.AskName, consent),
				say("Ana").next(flow.AskNeed, name("Ana")),
				press("BTN_HELP").next(flow.AskProblem, need("problem")),
				say("mi notebook no carga").next(flow.AskDevice, problem("mi notebook no carga")),
				press("BTN_DEV_NOTEBOOK").next(flow.AskOS, device("notebook")),
				say("hola").warns(contract.CodeTextNotAllowed),
				press("BTN_OS_WINDOWS").next(flow.BasicTests, osChoice("windows"), stepsShown(1)),
				press("BTN_ESCALATE").rejects("ESCALATION_NOT_ELIGIBLE"),
				press("BTN_TESTS_FAIL").next(flow.AdvancedTests, testsFailed, stepsShown(2)),
				press("BTN_ESCALATE").next(flow.Escalate),
				press("BTN_WHATSAPP_TICKET").next(flow.TicketSent, ticket("STI-20261018-0001")),
			},
		},
	}
}

func describe(ev enforcement.UserEvent) string {
	if ev.Type == enforcement.EventButton {
		return "button " + ev.TokenValue()
	}
	return fmt.Sprintf("text %q", ev.Normalized)
}

// check compares a turn outcome with the step's expectation.
func (s step) check(res enforcement.Result) (string, bool) {
	got := "admitted"
	if !res.Allowed {
		got = "rejected " + strings.Join(codes(res.Violations), ",")
	}
	if len(res.Warnings) > 0 {
		got += " warn " + strings.Join(codes(res.Warnings), ",")
	}

	switch {
	case s.expect == "" && !res.Allowed:
		return got, false
	case s.expect != "" && (res.Allowed || res.Violations[0].Code != s.expect):
		return got, false
	case s.warn != "" && !contract.HasCode(res.Warnings, s.warn):
		return got, false
	}
	return got, true
}

func codes(vs []contract.Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Code
	}
	return out
}

func runSimulateCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := newFlagSet("simulate", cfg, stderr)
	var only string
	cmd.StringVar(&cfg.AuditCSV, "csv", cfg.AuditCSV, "Append a flow-audit row per turn to this CSV file")
	cmd.StringVar(&only, "scenario", "", "Run only the named scenario")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := setup(ctx, cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()

	var turns, mismatches, ran int
	for _, sc := range scenarios() {
		if only != "" && sc.name != only {
			continue
		}
		ran++
		_, _ = fmt.Fprintf(stdout, "== %s\n", sc.name)

		sess := casestate.NewSession(sc.session)
		for _, st := range sc.steps {
			stage := a.registry.Definition().Resolve(sess.CurrentStage)
			res := a.engine.Enforce(ctx, sess, st.in)
			turns++

			got, ok := st.check(res)
			mark := "ok"
			if !ok {
				mark = "MISMATCH"
				mismatches++
			}
			_, _ = fmt.Fprintf(stdout, "  %-16s %-32s -> %s [%s]\n", stage, describe(res.Event), got, mark)

			if res.Allowed && st.then != nil {
				st.then(sess)
			}
		}
	}

	if ran == 0 {
		_, _ = fmt.Fprintf(stderr, "Error: unknown scenario %q\n", only)
		return 2
	}

	if err := a.chain.VerifyChain(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "%d turns, %d mismatches, audit chain %d entries head %s\n",
		turns, mismatches, a.chain.Len(), a.chain.Head())

	if mismatches > 0 {
		return 1
	}
	return 0
}
