package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PatternKind tags how a Pattern matches tokens.
type PatternKind int

const (
	// Exact matches one literal token.
	Exact PatternKind = iota
	// PrefixWildcard matches every token that starts with the prefix.
	PrefixWildcard
)

func (k PatternKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case PrefixWildcard:
		return "prefix"
	default:
		return fmt.Sprintf("PatternKind(%d)", int(k))
	}
}

// Pattern is an allowed-token entry of a contract.
//
// Two wildcard spellings exist in contract tables:
//   - "BTN_DEV_*"      prefix "BTN_DEV_" (the star is dropped)
//   - "BTN_HELP_STEP_" prefix "BTN_HELP_STEP_" (the underscore is kept)
//
// Everything else is an exact literal. Matching is case-sensitive.
type Pattern struct {
	kind   PatternKind
	value  string
	source string
}

// ExactPattern returns a pattern matching only token. It panics when token
// cannot be written as an exact literal in table notation (empty, containing
// '*' or ending in '_'), since such a pattern would come back as a wildcard
// once serialized.
func ExactPattern(token string) Pattern {
	if token == "" || strings.Contains(token, "*") || strings.HasSuffix(token, "_") {
		panic(fmt.Sprintf("contract: %q is not expressible as an exact pattern", token))
	}
	return Pattern{kind: Exact, value: token, source: token}
}

// PrefixPattern returns a pattern matching every token starting with prefix.
func PrefixPattern(prefix string) Pattern {
	source := prefix
	if !strings.HasSuffix(prefix, "_") {
		source = prefix + "*"
	}
	return Pattern{kind: PrefixWildcard, value: prefix, source: source}
}

// ParsePattern reads a pattern in contract table notation.
func ParsePattern(s string) (Pattern, error) {
	switch {
	case s == "":
		return Pattern{}, fmt.Errorf("empty token pattern")
	case strings.HasSuffix(s, "*"):
		prefix := strings.TrimSuffix(s, "*")
		if prefix == "" {
			return Pattern{}, fmt.Errorf("bare wildcard %q would admit every token", s)
		}
		if strings.Contains(prefix, "*") {
			return Pattern{}, fmt.Errorf("pattern %q has more than one wildcard", s)
		}
		return Pattern{kind: PrefixWildcard, value: prefix, source: s}, nil
	case strings.Contains(s, "*"):
		return Pattern{}, fmt.Errorf("pattern %q: wildcard is only allowed at the end", s)
	case strings.HasSuffix(s, "_"):
		return Pattern{kind: PrefixWildcard, value: s, source: s}, nil
	default:
		return Pattern{kind: Exact, value: s, source: s}, nil
	}
}

// MustParsePattern is ParsePattern for literals known to be valid.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) Kind() PatternKind { return p.kind }

// Value is the literal token (Exact) or the prefix (PrefixWildcard).
func (p Pattern) Value() string { return p.value }

// String returns the pattern in table notation.
func (p Pattern) String() string { return p.source }

// Match reports whether token satisfies the pattern.
func (p Pattern) Match(token string) bool {
	switch p.kind {
	case Exact:
		return token == p.value
	case PrefixWildcard:
		return strings.HasPrefix(token, p.value)
	}
	return false
}

// Suffix returns the part of token after a prefix wildcard, or "" for exact
// patterns and non-matching tokens.
func (p Pattern) Suffix(token string) string {
	if p.kind != PrefixWildcard || !strings.HasPrefix(token, p.value) {
		return ""
	}
	return token[len(p.value):]
}

func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.source)
}

func (p *Pattern) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePattern(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TokenMatch returns the first pattern that token satisfies. There is no
// scoring: declaration order decides.
func TokenMatch(token string, patterns []Pattern) (Pattern, bool) {
	for _, p := range patterns {
		if p.Match(token) {
			return p, true
		}
	}
	return Pattern{}, false
}
