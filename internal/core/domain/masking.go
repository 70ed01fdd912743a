package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType is a column masking strategy applied to replayed result sets.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a known strategy. "" means no mask.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a single value. Masked values may change type.
func ApplyMask(value any, m MaskType) any {
	if value == nil {
		return nil
	}
	switch m {
	case MaskRedact:
		return "***"
	case MaskHash:
		h := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(fmt.Sprintf("%v", value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial keeps the last four runes visible. Values that short are
// masked whole, with a fixed width so their length is not shown either.
func maskPartial(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "****"
	}
	for i := 0; i < len(runes)-4; i++ {
		runes[i] = '*'
	}
	return string(runes)
}

// MaskResultSet applies column masks in place. Columns are matched by name.
func MaskResultSet(rs *ResultSet, masks map[string]MaskType) {
	if rs == nil || len(masks) == 0 {
		return
	}
	for col, name := range rs.Columns {
		m, ok := masks[name]
		if !ok {
			continue
		}
		for _, row := range rs.Rows {
			if col < len(row) {
				row[col] = ApplyMask(row[col], m)
			}
		}
	}
}
