package domain

import (
	"fmt"
	"strings"
)

// DefaultReadOnlyKeyword is the statement prefix that marks a select-style query.
const DefaultReadOnlyKeyword = "select"

// ReadOnlyPolicy decides whether a statement may be re-executed.
// The check is a single case-insensitive prefix match on the trimmed text.
type ReadOnlyPolicy struct {
	keyword string
}

func NewReadOnlyPolicy(keyword string) ReadOnlyPolicy {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		keyword = DefaultReadOnlyKeyword
	}
	return ReadOnlyPolicy{keyword: keyword}
}

func (p ReadOnlyPolicy) Keyword() string {
	if p.keyword == "" {
		return DefaultReadOnlyKeyword
	}
	return p.keyword
}

// IsReadOnly reports whether the statement starts with the read-only keyword.
func (p ReadOnlyPolicy) IsReadOnly(statement string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(statement)), p.Keyword())
}

// Validate returns ErrNotReadOnly for statements that fail IsReadOnly.
func (p ReadOnlyPolicy) Validate(statement string) error {
	if !p.IsReadOnly(statement) {
		return fmt.Errorf("%w: statement must start with %q", ErrNotReadOnly, strings.ToUpper(p.Keyword()))
	}
	return nil
}

// Signable reports whether a token may be minted for the pair.
func (p ReadOnlyPolicy) Signable(statement string, params Params) bool {
	return !params.IsEmpty() && p.IsReadOnly(statement)
}

// DriverSQLite names the embedded database driver.
const DriverSQLite = "sqlite"

// ExplainVerb returns the statement prefix used to ask a driver for a plan.
func ExplainVerb(driver string) string {
	if driver == DriverSQLite {
		return "EXPLAIN QUERY PLAN"
	}
	return "EXPLAIN"
}
