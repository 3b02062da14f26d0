package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/casestate"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/config"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

const usage = `Usage: stagegate <command> [flags]

Commands:
  validate   load and check the contract table and case-state policy
  hash       print the canonical hash of the contract table
  viewmodel  print the UI view model of a stage
  normalize  repair a button set against a stage contract
  enforce    decide whether one user action is admissible
  simulate   replay scripted conversations through the engine`

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success, or the action was admitted
//	1 = validation failed, or the action was rejected
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "hash":
		return runHashCmd(args[2:], stdout, stderr)
	case "viewmodel":
		return runViewModelCmd(args[2:], stdout, stderr)
	case "normalize":
		return runNormalizeCmd(args[2:], stdout, stderr)
	case "enforce":
		return runEnforceCmd(args[2:], stdout, stderr)
	case "simulate":
		return runSimulateCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		_, _ = fmt.Fprintln(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n\n%s\n", args[1], usage)
		return 2
	}
}

// newFlagSet returns a flag set carrying the table and policy overrides.
func newFlagSet(name string, cfg *config.Config, stderr io.Writer) *flag.FlagSet {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cmd.StringVar(&cfg.ContractsPath, "contracts", cfg.ContractsPath, "Path to the stage contract table (default: embedded)")
	cmd.StringVar(&cfg.PolicyPath, "policy", cfg.PolicyPath, "Path to the case-state policy (default: embedded)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := newFlagSet("validate", cfg, stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	a, err := setup(context.Background(), cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	_, _ = fmt.Fprintf(stdout, "contracts ok: version=%s hash=%s stages=%d\n",
		a.registry.Version(), a.registry.Hash(), len(a.registry.Stages()))
	for _, s := range a.registry.Uncovered() {
		_, _ = fmt.Fprintf(stdout, "uncovered stage: %s (served as free text)\n", s)
	}
	_, _ = fmt.Fprintln(stdout, "policy ok")
	return 0
}

func runHashCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := newFlagSet("hash", cfg, stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	reg, err := loadRegistry(cfg.ContractsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, reg.Hash())
	return 0
}

func runViewModelCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := newFlagSet("viewmodel", cfg, stderr)
	var stage string
	cmd.StringVar(&stage, "stage", "", "Stage id (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if stage == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --stage is required")
		return 2
	}

	a, err := setup(context.Background(), cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()

	vm, ok := a.engine.Normalizer().ViewModel(flow.StageID(stage))
	if err := writeJSON(stdout, vm); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Error: no contract for stage %s\n", stage)
		return 1
	}
	return 0
}

func runNormalizeCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := newFlagSet("normalize", cfg, stderr)
	var stage, tokens string
	cmd.StringVar(&stage, "stage", "", "Stage id (REQUIRED)")
	cmd.StringVar(&tokens, "buttons", "", "Comma-separated button tokens, in display order")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if stage == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --stage is required")
		return 2
	}

	a, err := setup(context.Background(), cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()

	var in []contract.Button
	for i, tok := range strings.Split(tokens, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		in = append(in, contract.Button{Token: tok, Label: tok, Order: i + 1})
	}

	res := a.engine.Normalizer().Normalize(flow.StageID(stage), in)
	if err := writeJSON(stdout, res); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func runEnforceCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := newFlagSet("enforce", cfg, stderr)

	var (
		stage, button, label string
		sessionID, caseJSON  string
		text                 *string
		system               bool
	)
	cmd.StringVar(&stage, "stage", "", "Current stage of the session (default: entry stage)")
	cmd.StringVar(&button, "button", "", "Pressed button token")
	cmd.StringVar(&label, "label", "", "Label of the pressed button")
	cmd.Func("text", "Free-text message; -text \"\" sends an empty message", func(v string) error {
		text = &v
		return nil
	})
	cmd.StringVar(&sessionID, "session", "cli", "Session id")
	cmd.StringVar(&caseJSON, "case", "", "Case fields as JSON")
	cmd.BoolVar(&system, "system", false, "Admit as a system event without validation")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	s := casestate.NewSession(sessionID)
	s.CurrentStage = flow.StageID(stage)
	if caseJSON != "" {
		if err := json.Unmarshal([]byte(caseJSON), &s.Case); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: invalid --case: %v\n", err)
			return 2
		}
	}

	var in enforcement.RawInput
	if button != "" {
		in = enforcement.ButtonPress(button)
		if label != "" {
			in.Label = &label
		}
	}
	in.Text = text

	a, err := setup(context.Background(), cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()

	var opts []enforcement.EnforceOption
	if system {
		opts = append(opts, enforcement.SkipValidation())
	}
	res := a.engine.Enforce(context.Background(), s, in, opts...)
	if err := writeJSON(stdout, res); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if !res.Allowed {
		return 1
	}
	return 0
}
