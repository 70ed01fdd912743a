package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskType_Valid(t *testing.T) {
	t.Parallel()
	for _, m := range []MaskType{MaskRedact, MaskHash, MaskPartial, MaskNull, ""} {
		assert.True(t, m.Valid(), "mask %q", m)
	}
	assert.False(t, MaskType("shuffle").Valid())
}

func TestApplyMask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		mask  MaskType
		want  any
	}{
		{"redact", "alice@example.com", MaskRedact, "***"},
		{"partial string", "4111111111111111", MaskPartial, "************1111"},
		{"partial short", "abc", MaskPartial, "****"},
		{"partial four runes", "1234", MaskPartial, "****"},
		{"partial short int", 42, MaskPartial, "****"},
		{"partial int", 12345, MaskPartial, "*2345"},
		{"null", "secret", MaskNull, nil},
		{"nil stays nil", nil, MaskRedact, nil},
		{"unknown passes through", "keep", MaskType("unknown"), "keep"},
		{"empty passes through", "keep", "", "keep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ApplyMask(tt.value, tt.mask))
		})
	}
}

func TestApplyMask_HashIsStableAcrossTypes(t *testing.T) {
	t.Parallel()
	a := ApplyMask(42, MaskHash)
	b := ApplyMask("42", MaskHash)
	assert.Equal(t, a, b)
	s, ok := a.(string)
	assert.True(t, ok)
	assert.Len(t, s, 64)
}

func TestApplyMask_PartialUnicode(t *testing.T) {
	t.Parallel()
	got := ApplyMask("ñandú-öçşğü", MaskPartial).(string)
	assert.True(t, strings.HasSuffix(got, "çşğü"))
	assert.True(t, strings.HasPrefix(got, "*******"))
	assert.Len(t, []rune(got), 11)
}

func TestMaskResultSet(t *testing.T) {
	t.Parallel()
	rs := &ResultSet{
		Columns: []string{"id", "email", "name"},
		Rows: [][]any{
			{1, "alice@example.com", "Alice"},
			{2, "bob@example.com", "Bob"},
		},
	}

	MaskResultSet(rs, map[string]MaskType{"email": MaskRedact, "ssn": MaskNull})

	assert.Equal(t, "***", rs.Rows[0][1])
	assert.Equal(t, "***", rs.Rows[1][1])
	assert.Equal(t, "Alice", rs.Rows[0][2])
	assert.Equal(t, 1, rs.Rows[0][0])
}

func TestMaskResultSet_NoMasks(t *testing.T) {
	t.Parallel()
	rs := &ResultSet{Columns: []string{"email"}, Rows: [][]any{{"a@b.c"}}}
	MaskResultSet(rs, nil)
	MaskResultSet(nil, map[string]MaskType{"email": MaskRedact})
	assert.Equal(t, "a@b.c", rs.Rows[0][0])
}
