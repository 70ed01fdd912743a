package postgres

import (
	"fmt"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// toResultSet reads at most maxRows rows. maxRows <= 0 means no cap.
func toResultSet(rows pgx.Rows, maxRows int) (*domain.ResultSet, error) {
	fields := rows.FieldDescriptions()
	rs := &domain.ResultSet{
		Columns: make([]string, len(fields)),
		Rows:    [][]any{},
	}
	for i, fd := range fields {
		rs.Columns[i] = fd.Name
	}

	for rows.Next() {
		if maxRows > 0 && len(rs.Rows) >= maxRows {
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rs, nil
}
