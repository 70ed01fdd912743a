package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOnlyPolicy_IsReadOnly(t *testing.T) {
	p := NewReadOnlyPolicy("")

	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"upper", "SELECT 1", true},
		{"lower", "select 1", true},
		{"mixed", "SeLeCt 1", true},
		{"leading whitespace", " \n\tSELECT 1", true},
		{"delete", "DELETE FROM users", false},
		{"update", "UPDATE users SET x = 1", false},
		{"with cte", "WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"empty", "", false},
		{"comment first", "-- hi\nSELECT 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsReadOnly(tt.sql))
		})
	}
}

func TestReadOnlyPolicy_CustomKeyword(t *testing.T) {
	p := NewReadOnlyPolicy("  WITH ")
	assert.Equal(t, "with", p.Keyword())
	assert.True(t, p.IsReadOnly("with x as (select 1) select * from x"))
	assert.False(t, p.IsReadOnly("SELECT 1"))
}

func TestReadOnlyPolicy_ZeroValueUsesDefault(t *testing.T) {
	var p ReadOnlyPolicy
	assert.Equal(t, DefaultReadOnlyKeyword, p.Keyword())
	assert.True(t, p.IsReadOnly("SELECT 1"))
}

func TestReadOnlyPolicy_Validate(t *testing.T) {
	p := NewReadOnlyPolicy("select")
	require.NoError(t, p.Validate("SELECT 1"))

	err := p.Validate("DROP TABLE users")
	require.ErrorIs(t, err, ErrNotReadOnly)
	assert.Contains(t, err.Error(), "SELECT")
}

func TestReadOnlyPolicy_Signable(t *testing.T) {
	p := NewReadOnlyPolicy("")
	assert.True(t, p.Signable("SELECT $1", PositionalParams(1)))
	assert.True(t, p.Signable("SELECT :a", NamedParams(map[string]any{"a": 1})))
	assert.False(t, p.Signable("SELECT 1", Params{}))
	assert.False(t, p.Signable("DELETE FROM t WHERE id = $1", PositionalParams(1)))
}

func TestExplainVerb(t *testing.T) {
	assert.Equal(t, "EXPLAIN QUERY PLAN", ExplainVerb(DriverSQLite))
	assert.Equal(t, "EXPLAIN", ExplainVerb("postgres"))
	assert.Equal(t, "EXPLAIN", ExplainVerb(""))
}
