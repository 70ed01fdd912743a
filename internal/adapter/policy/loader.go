package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads and validates a policy file. Unknown keys are rejected
// so a misspelt section is not silently ignored.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pol); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}
	return &pol, nil
}

func validate(pol *Policy) error {
	for i, p := range pol.Stack.Rendering {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("stack.rendering[%d] is empty", i)
		}
	}
	for i, p := range pol.Stack.Internal {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("stack.internal[%d] is empty", i)
		}
	}
	for col, rule := range pol.Columns {
		if col == "" {
			return fmt.Errorf("columns contains an empty key")
		}
		if rule.Mask == "" || !rule.Mask.Valid() {
			return fmt.Errorf("columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", col, rule.Mask)
		}
	}
	return nil
}
