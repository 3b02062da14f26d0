package casestate

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a policy document cannot be loaded or compiled.
var ErrInvalidPolicy = errors.New("casestate: invalid policy")

//go:embed policy.yaml
var defaultPolicy []byte

// Derivation computes one flag from the case.
type Derivation struct {
	Flag string `yaml:"flag"`
	Expr string `yaml:"expr"`
}

// Rule restricts tokens on some stages. Empty Stages means every stage.
// Tokens use contract table notation (exact, trailing * or trailing _).
type Rule struct {
	Stages []string `yaml:"stages"`
	Tokens []string `yaml:"tokens"`
	Expr   string   `yaml:"expr"`
	Code   string   `yaml:"code"`
	Detail string   `yaml:"detail"`
}

// Policy is the declarative input of a CELGate.
type Policy struct {
	Derive []Derivation `yaml:"derive"`
	Rules  []Rule       `yaml:"rules"`
}

// DefaultPolicy returns the embedded STI policy.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("casestate: embedded policy: %v", err))
	}
	return p
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return p, nil
}

// LoadPolicyFile reads a YAML policy document from path.
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("casestate: read %s: %w", path, err)
	}
	return ParsePolicy(data)
}
