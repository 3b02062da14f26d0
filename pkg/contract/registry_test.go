package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

func osContract() Contract {
	return Contract{
		Stage:        flow.AskOS,
		StageType:    StageDeterministic,
		AllowButtons: true,
		AllowedTokens: []Pattern{
			ExactPattern("BTN_OS_WINDOWS"),
			ExactPattern("BTN_OS_MACOS"),
			ExactPattern("BTN_OS_LINUX"),
		},
		MaxButtons: 3,
		DefaultButtons: []Button{
			{Token: "BTN_OS_WINDOWS", Label: "Windows", Order: 1},
			{Token: "BTN_OS_MACOS", Label: "macOS", Order: 2},
			{Token: "BTN_OS_LINUX", Label: "Linux", Order: 3},
		},
		Instrumentation: Instrumentation{LogLevel: "info", SampleRate: 1},
	}
}

func TestNew_Invariants(t *testing.T) {
	def := flow.Default()

	tests := []struct {
		name   string
		mutate func(*Contract)
	}{
		{"unknown stage", func(c *Contract) { c.Stage = "FOO" }},
		{"bad stage type", func(c *Contract) { c.StageType = "FREEFORM" }},
		{"negative max", func(c *Contract) { c.MaxButtons = -1 }},
		{"defaults exceed max", func(c *Contract) { c.MaxButtons = 2 }},
		{"defaults without buttons", func(c *Contract) { c.AllowButtons = false }},
		{"uncovered default", func(c *Contract) { c.AllowedTokens = c.AllowedTokens[:2] }},
		{"empty default token", func(c *Contract) { c.DefaultButtons[0].Token = "" }},
		{"duplicate default", func(c *Contract) { c.DefaultButtons[1].Token = "BTN_OS_WINDOWS" }},
		{"bad log level", func(c *Contract) { c.Instrumentation.LogLevel = "trace" }},
		{"sample rate above one", func(c *Contract) { c.Instrumentation.SampleRate = 1.5 }},
		{"negative sample rate", func(c *Contract) { c.Instrumentation.SampleRate = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := osContract()
			tt.mutate(&c)
			_, err := New(def, "1.0.0", []Contract{c})
			require.ErrorIs(t, err, ErrInvalidTable)
		})
	}

	t.Run("duplicate stage", func(t *testing.T) {
		_, err := New(def, "1.0.0", []Contract{osContract(), osContract()})
		require.ErrorIs(t, err, ErrInvalidTable)
	})
}

func TestNew_DefaultsLogLevel(t *testing.T) {
	c := osContract()
	c.Instrumentation.LogLevel = ""
	r, err := New(flow.Default(), "1.0.0", []Contract{c})
	require.NoError(t, err)

	got, ok := r.Contract(flow.AskOS)
	require.True(t, ok)
	assert.Equal(t, "info", got.Instrumentation.LogLevel)
}

func TestRegistry_Queries(t *testing.T) {
	r, err := New(flow.Default(), "1.0.0", []Contract{osContract()})
	require.NoError(t, err)

	assert.True(t, r.IsTokenAllowed(flow.AskOS, "BTN_OS_LINUX"))
	assert.False(t, r.IsTokenAllowed(flow.AskOS, "BTN_OS_SOLARIS"))
	assert.False(t, r.IsTokenAllowed("FOO", "BTN_OS_LINUX"))
	assert.True(t, r.IsDeterministicStage(flow.AskOS))
	assert.False(t, r.IsDeterministicStage("FOO"))

	assert.Equal(t, []flow.StageID{flow.AskOS}, r.Stages())
	assert.Len(t, r.Uncovered(), 13)
	assert.Equal(t, "1.0.0", r.Version())
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, r.Hash())
}

func TestRegistry_UnknownStage(t *testing.T) {
	r, err := New(flow.Default(), "1.0.0", nil)
	require.NoError(t, err)

	_, ok := r.Contract("FOO")
	assert.False(t, ok)

	_, v := r.Lookup("FOO")
	require.NotNil(t, v)
	assert.Equal(t, CodeNoContract, v.Code)
	assert.Equal(t, SeverityError, v.Severity)

	defaults := r.DefaultButtons("FOO")
	assert.NotNil(t, defaults)
	assert.Empty(t, defaults)

	check := r.ValidateButtonSet("FOO", nil)
	assert.False(t, check.Valid)
	require.Len(t, check.Violations, 1)
	assert.Equal(t, CodeNoContract, check.Violations[0].Code)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r, err := New(flow.Default(), "1.0.0", []Contract{osContract()})
	require.NoError(t, err)

	c, _ := r.Contract(flow.AskOS)
	c.DefaultButtons[0].Token = "MUTATED"
	c.AllowedTokens[0] = ExactPattern("MUTATED")

	defaults := r.DefaultButtons(flow.AskOS)
	defaults[1].Label = "MUTATED"

	again, _ := r.Contract(flow.AskOS)
	assert.Equal(t, osContract().DefaultButtons, again.DefaultButtons)
	assert.Equal(t, "BTN_OS_WINDOWS", again.AllowedTokens[0].String())
}

func TestValidateButtonSet(t *testing.T) {
	r := Default()

	t.Run("valid defaults", func(t *testing.T) {
		check := r.ValidateButtonSet(flow.AskOS, r.DefaultButtons(flow.AskOS))
		assert.True(t, check.Valid)
		assert.Empty(t, check.Violations)
	})

	t.Run("buttons on text-only stage", func(t *testing.T) {
		check := r.ValidateButtonSet(flow.AskName, []Button{{Token: "BTN_X"}})
		assert.False(t, check.Valid)
		require.Len(t, check.Violations, 1)
		assert.Equal(t, CodeButtonsNotAllowed, check.Violations[0].Code)
	})

	t.Run("no buttons on text-only stage", func(t *testing.T) {
		check := r.ValidateButtonSet(flow.AskName, nil)
		assert.True(t, check.Valid)
	})

	t.Run("invalid token and over count", func(t *testing.T) {
		in := []Button{
			{Token: "BTN_OS_WINDOWS"},
			{Token: "BTN_OS_SOLARIS"},
			{Token: "BTN_OS_MACOS"},
			{Token: "BTN_OS_LINUX"},
		}
		before := append([]Button(nil), in...)
		check := r.ValidateButtonSet(flow.AskOS, in)
		assert.False(t, check.Valid)
		assert.True(t, HasCode(check.Violations, CodeTooManyButtons))
		assert.True(t, HasCode(check.Violations, CodeInvalidToken))
		assert.Equal(t, before, in)

		for _, v := range check.Violations {
			if v.Code == CodeInvalidToken {
				assert.Equal(t, "BTN_OS_SOLARIS", v.Token)
				assert.Equal(t, []string{"BTN_OS_WINDOWS", "BTN_OS_MACOS", "BTN_OS_LINUX"}, v.AllowedTokens)
			}
		}
	})
}

func TestViolationFilters(t *testing.T) {
	vs := []Violation{
		{Code: CodeTextNotAllowed, Severity: SeverityWarning},
		{Code: CodeInvalidToken, Severity: SeverityError},
	}
	errs := Errors(vs)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeInvalidToken, errs[0].Code)
	assert.Len(t, Warnings(vs), 1)

	assert.NotNil(t, Errors(nil))
	assert.False(t, HasCode(vs, CodeNoContract))
}
