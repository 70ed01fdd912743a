package domain

import (
	"fmt"
	"strings"
	"time"
)

// Params holds the values bound to a statement. Drivers use one shape or the
// other, so at most one of Positional and Named is populated.
type Params struct {
	Positional []any          `json:"positional,omitempty"`
	Named      map[string]any `json:"named,omitempty"`
}

// PositionalParams builds positional Params.
func PositionalParams(values ...any) Params {
	return Params{Positional: values}
}

// NamedParams builds named Params.
func NamedParams(values map[string]any) Params {
	return Params{Named: values}
}

// Len returns the number of bound values.
func (p Params) Len() int {
	return len(p.Positional) + len(p.Named)
}

// IsEmpty reports whether no values are bound.
func (p Params) IsEmpty() bool {
	return p.Len() == 0
}

// Clone copies the containers. Values themselves are shared; they are
// treated as immutable once recorded.
func (p Params) Clone() Params {
	var out Params
	if p.Positional != nil {
		out.Positional = make([]any, len(p.Positional))
		copy(out.Positional, p.Positional)
	}
	if p.Named != nil {
		out.Named = make(map[string]any, len(p.Named))
		for k, v := range p.Named {
			out.Named[k] = v
		}
	}
	return out
}

// Frame is one call-stack entry captured when a query ran.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// QueryRecord is one executed query as reported by the query source.
type QueryRecord struct {
	Statement string        `json:"statement"`
	Params    Params        `json:"params"`
	Duration  time.Duration `json:"duration"`
	Stack     []Frame       `json:"stack,omitempty"`
	Context   string        `json:"context,omitempty"`
}

// Validate checks the fields the aggregator depends on.
func (r QueryRecord) Validate() error {
	if strings.TrimSpace(r.Statement) == "" {
		return fmt.Errorf("%w: empty statement", ErrMalformedRecord)
	}
	if r.Duration < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrMalformedRecord, r.Duration)
	}
	return nil
}

// Query is a statement together with its parameters, as carried by a token.
type Query struct {
	Statement string
	Params    Params
}

// ResultSet is the tabular output of a re-executed statement.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}
