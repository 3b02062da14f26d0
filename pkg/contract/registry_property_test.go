//go:build property
// +build property

package contract_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
)

// TestTextOnlyStagesRejectEveryToken verifies stages without buttons admit no token.
// Property: AllowButtons=false => IsTokenAllowed(stage, t) == false for any t
func TestTextOnlyStagesRejectEveryToken(t *testing.T) {
	r := contract.Default()
	stages := r.Stages()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("text-only stages deny all tokens", prop.ForAll(
		func(i int, token string) bool {
			id := stages[i]
			c, _ := r.Contract(id)
			if c.AllowButtons {
				return true
			}
			return !r.IsTokenAllowed(id, token) && !r.IsTokenAllowed(id, "BTN_"+token)
		},
		gen.IntRange(0, len(stages)-1),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestPrefixWildcardAdmitsAnySuffix verifies prefix patterns match every extension.
// Property: PrefixPattern(p).Match(p + s) for any s
func TestPrefixWildcardAdmitsAnySuffix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("prefix wildcard admits any suffix", prop.ForAll(
		func(suffix string) bool {
			star := contract.MustParsePattern("BTN_DEV_*")
			underscore := contract.MustParsePattern("BTN_HELP_STEP_")
			return star.Match("BTN_DEV_"+suffix) &&
				underscore.Match("BTN_HELP_STEP_"+suffix) &&
				underscore.Suffix("BTN_HELP_STEP_"+suffix) == suffix
		},
		gen.AlphaString(),
	))

	properties.Property("exact pattern admits only itself", prop.ForAll(
		func(token, other string) bool {
			if token == "" {
				return true
			}
			p := contract.ExactPattern(token)
			return p.Match(token) && (other == token || !p.Match(other))
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// TestDefaultButtonsAlwaysAllowed verifies the load-time coverage invariant holds at query time.
// Property: for every registered stage, every default button token is allowed
func TestDefaultButtonsAlwaysAllowed(t *testing.T) {
	r := contract.Default()
	stages := r.Stages()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("defaults are allowed", prop.ForAll(
		func(i int) bool {
			id := stages[i]
			for _, b := range r.DefaultButtons(id) {
				if !r.IsTokenAllowed(id, b.Token) {
					return false
				}
			}
			return r.ValidateButtonSet(id, r.DefaultButtons(id)).Valid
		},
		gen.IntRange(0, len(stages)-1),
	))

	properties.TestingRun(t)
}
