// Package policy loads the operator's YAML file describing how call stacks
// are read and which replayed columns are masked.
package policy

import (
	"fmt"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy is the parsed policy file.
//
//	stack:
//	  rendering: ["html/template.", "example.com/app/views."]
//	  internal: ["runtime.", "github.com/jackc/pgx/"]
//	  extend_defaults: true
//	columns:
//	  email: redact          # short form: mask only
//	  ssn:
//	    mask: hash
//	    description: "Social security number"
type Policy struct {
	Stack   StackConfig           `yaml:"stack"`
	Columns map[string]ColumnRule `yaml:"columns"`
}

// StackConfig lists function-name prefixes. With ExtendDefaults the lists are
// added to the built-in ones instead of replacing them.
type StackConfig struct {
	Rendering      []string `yaml:"rendering"`
	Internal       []string `yaml:"internal"`
	ExtendDefaults bool     `yaml:"extend_defaults"`
}

// ColumnRule masks a result column wherever it appears in a replay.
type ColumnRule struct {
	Mask        domain.MaskType `yaml:"mask"`
	Description string          `yaml:"description,omitempty"`
}

// UnmarshalYAML accepts either a bare mask name or the full mapping.
func (r *ColumnRule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Mask = domain.MaskType(value.Value)
		return nil
	}
	// alias drops this method so Decode does not recurse.
	type alias ColumnRule
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column rule: %w", err)
	}
	*r = ColumnRule(a)
	return nil
}

// Default is the policy in effect when no file is configured.
func Default() *Policy {
	return &Policy{}
}
