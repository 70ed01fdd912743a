package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatSQL substitutes bound values into the statement for display.
// The output must never be executed: executors receive the original
// statement and parameters separately.
//
// Recognised placeholders: $N and ? for positional params, @name and :name
// for named params. Quoted literals and identifiers are left untouched, and
// unknown placeholders are kept as written.
func FormatSQL(statement string, params Params) string {
	if params.IsEmpty() {
		return strings.TrimSpace(statement)
	}

	var b strings.Builder
	b.Grow(len(statement))
	next := 0 // index of the next "?" placeholder

	for i := 0; i < len(statement); {
		c := statement[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(statement, i)
			b.WriteString(statement[i:end])
			i = end
		case c == '$' && i+1 < len(statement) && isDigit(statement[i+1]):
			j := i + 1
			for j < len(statement) && isDigit(statement[j]) {
				j++
			}
			n, _ := strconv.Atoi(statement[i+1 : j])
			if n >= 1 && n <= len(params.Positional) {
				b.WriteString(literal(params.Positional[n-1]))
			} else {
				b.WriteString(statement[i:j])
			}
			i = j
		case c == '?':
			if next < len(params.Positional) {
				b.WriteString(literal(params.Positional[next]))
				next++
			} else {
				b.WriteByte(c)
			}
			i++
		case (c == '@' || c == ':') && i+1 < len(statement) && isIdentStart(statement[i+1]) &&
			!(c == ':' && i > 0 && statement[i-1] == ':'):
			j := i + 1
			for j < len(statement) && isIdentPart(statement[j]) {
				j++
			}
			if v, ok := params.Named[statement[i+1:j]]; ok {
				b.WriteString(literal(v))
			} else {
				b.WriteString(statement[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return strings.TrimSpace(b.String())
}

func closingQuote(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(x), "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + x.Format(time.RFC3339Nano) + "'"
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(x.String(), "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// Subtitle is the short navigation label for a panel showing n queries.
func Subtitle(n int, available bool) string {
	if !available {
		return "Unavailable"
	}
	if n == 1 {
		return "1 query"
	}
	return fmt.Sprintf("%d queries", n)
}
