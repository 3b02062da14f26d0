package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// SupportedVersions is the range of contract table versions this build reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

const schemaURL = "https://stagegate.schemas.local/contract-table.schema.json"

//go:embed schema.json
var tableSchema string

//go:embed contracts.yaml
var defaultTable []byte

// tableFile is the on-disk shape of a contract table.
type tableFile struct {
	Version string                   `yaml:"version"`
	Stages  map[string]contractEntry `yaml:"stages"`
}

type contractEntry struct {
	Type            StageType `yaml:"type"`
	AllowText       bool      `yaml:"allow_text"`
	AllowButtons    bool      `yaml:"allow_buttons"`
	AllowedTokens   []string  `yaml:"allowed_tokens"`
	MaxButtons      int       `yaml:"max_buttons"`
	DefaultButtons  []Button  `yaml:"default_buttons"`
	UIHints         UIHints   `yaml:"ui_hints"`
	Instrumentation struct {
		LogLevel   string   `yaml:"log_level"`
		SampleRate *float64 `yaml:"sample_rate"`
	} `yaml:"instrumentation"`
}

// DefaultTable returns the embedded STI contract table.
func DefaultTable() []byte {
	return append([]byte(nil), defaultTable...)
}

// Default builds the registry from the embedded table against the default
// flow. It panics if the embedded table is invalid.
func Default() *Registry {
	r, err := Load(defaultTable, flow.Default())
	if err != nil {
		panic(fmt.Sprintf("contract: embedded table: %v", err))
	}
	return r
}

// LoadFile reads and loads a contract table from path.
func LoadFile(path string, def flow.Definition) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contract: read %s: %w", path, err)
	}
	r, err := Load(data, def)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Load parses a YAML contract table, validates it and returns an immutable
// Registry.
func Load(data []byte, def flow.Definition) (*Registry, error) {
	// 1. Structural validation against the embedded schema
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	// 2. Decode
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	// 3. Version compatibility
	if err := checkVersion(tf.Version); err != nil {
		return nil, err
	}

	// 4. Build contracts and apply load-time invariants
	contracts := make([]Contract, 0, len(tf.Stages))
	for name, entry := range tf.Stages {
		c, err := entry.toContract(flow.StageID(name))
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return New(def, tf.Version, contracts)
}

func (e contractEntry) toContract(id flow.StageID) (Contract, error) {
	c := Contract{
		Stage:          id,
		StageType:      e.Type,
		AllowText:      e.AllowText,
		AllowButtons:   e.AllowButtons,
		AllowedTokens:  make([]Pattern, 0, len(e.AllowedTokens)),
		MaxButtons:     e.MaxButtons,
		DefaultButtons: CloneButtons(e.DefaultButtons),
		UIHints:        e.UIHints,
		Instrumentation: Instrumentation{
			LogLevel:   e.Instrumentation.LogLevel,
			SampleRate: 1,
		},
	}
	if e.Instrumentation.SampleRate != nil {
		c.Instrumentation.SampleRate = *e.Instrumentation.SampleRate
	}
	for _, raw := range e.AllowedTokens {
		p, err := ParsePattern(raw)
		if err != nil {
			return Contract{}, fmt.Errorf("%w: stage %s: %v", ErrInvalidTable, id, err)
		}
		c.AllowedTokens = append(c.AllowedTokens, p)
	}
	return c, nil
}

func checkVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, v, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return fmt.Errorf("contract: supported range: %w", err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, v, SupportedVersions)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader([]byte(tableSchema))); err != nil {
		return nil, fmt.Errorf("contract schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("contract schema compile failed: %w", err)
	}
	return compiled, nil
}

// validateSchema checks the YAML document against the JSON schema. The YAML is
// round-tripped through JSON so that numbers reach the validator as
// json.Number.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidTable)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalidTable, err)
	}
	return nil
}
