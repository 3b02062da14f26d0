package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in     string
		kind   PatternKind
		value  string
		errors bool
	}{
		{in: "BTN_OS_WINDOWS", kind: Exact, value: "BTN_OS_WINDOWS"},
		{in: "BTN_DEV_*", kind: PrefixWildcard, value: "BTN_DEV_"},
		{in: "BTN_HELP_STEP_", kind: PrefixWildcard, value: "BTN_HELP_STEP_"},
		{in: "sí", kind: Exact, value: "sí"},
		{in: "", errors: true},
		{in: "*", errors: true},
		{in: "BTN_*_X", errors: true},
		{in: "BTN_**", errors: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePattern(tt.in)
			if tt.errors {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.value, p.Value())
			assert.Equal(t, tt.in, p.String())
		})
	}
}

func TestPattern_HelpStepWildcard(t *testing.T) {
	wildcard := MustParsePattern("BTN_HELP_STEP_")
	assert.True(t, wildcard.Match("BTN_HELP_STEP_7"))
	assert.Equal(t, "7", wildcard.Suffix("BTN_HELP_STEP_7"))

	exact := MustParsePattern("BTN_HELP_STEP")
	assert.Equal(t, Exact, exact.Kind())
	assert.False(t, exact.Match("BTN_HELP_STEP_7"))
	assert.Equal(t, "", exact.Suffix("BTN_HELP_STEP_7"))
}

func TestPattern_CaseSensitive(t *testing.T) {
	assert.False(t, MustParsePattern("si").Match("SI"))
	assert.False(t, MustParsePattern("BTN_DEV_*").Match("btn_dev_router"))
}

func TestTokenMatch_FirstMatchWins(t *testing.T) {
	patterns := []Pattern{
		MustParsePattern("BTN_DEV_*"),
		MustParsePattern("BTN_DEV_ROUTER"),
	}
	p, ok := TokenMatch("BTN_DEV_ROUTER", patterns)
	require.True(t, ok)
	assert.Equal(t, PrefixWildcard, p.Kind())

	_, ok = TokenMatch("BTN_OS_LINUX", patterns)
	assert.False(t, ok)

	_, ok = TokenMatch("BTN_X", nil)
	assert.False(t, ok)
}

func TestPrefixPattern_Notation(t *testing.T) {
	assert.Equal(t, "BTN_DEV*", PrefixPattern("BTN_DEV").String())
	assert.Equal(t, "BTN_HELP_STEP_", PrefixPattern("BTN_HELP_STEP_").String())
}

func TestPattern_JSON(t *testing.T) {
	var ps []Pattern
	require.NoError(t, json.Unmarshal([]byte(`["BTN_A","BTN_B_*"]`), &ps))
	require.Len(t, ps, 2)
	assert.Equal(t, PrefixWildcard, ps[1].Kind())

	out, err := json.Marshal(ps)
	require.NoError(t, err)
	assert.JSONEq(t, `["BTN_A","BTN_B_*"]`, string(out))

	require.Error(t, json.Unmarshal([]byte(`["*"]`), &ps))
}

func TestExactPattern_RejectsWildcardSpellings(t *testing.T) {
	for _, token := range []string{"BTN_X_", "BTN_*", "BTN_*_X", ""} {
		assert.Panics(t, func() { ExactPattern(token) }, token)
	}
}

func TestPattern_JSONKeepsKind(t *testing.T) {
	in := []Pattern{
		ExactPattern("BTN_X"),
		PrefixPattern("BTN_X_"),
		PrefixPattern("BTN_DEV"),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out []Pattern
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Kind(), out[i].Kind(), in[i].String())
		assert.Equal(t, in[i].Value(), out[i].Value(), in[i].String())
	}
	assert.False(t, out[0].Match("BTN_X_1"))
	assert.True(t, out[1].Match("BTN_X_1"))
}
