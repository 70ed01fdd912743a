package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	errMultiStatement = errors.New("multiple statements are not allowed")
	errSelectInto     = errors.New("SELECT INTO and row locking are not allowed")
)

// CheckStatement parses statement with PostgreSQL's own parser and accepts
// only a single plain SELECT, optionally under EXPLAIN. It backs up the
// keyword check in the token codec, which a statement such as
// "select 1; drop table t" would pass. Every failure wraps domain.ErrNotReadOnly.
func CheckStatement(statement string) error {
	tree, err := pg_query.Parse(strings.TrimSpace(statement))
	if err != nil {
		return fmt.Errorf("%w: parsing statement: %w", domain.ErrNotReadOnly, err)
	}
	if len(tree.Stmts) != 1 || tree.Stmts[0].Stmt == nil {
		return fmt.Errorf("%w: %w", domain.ErrNotReadOnly, errMultiStatement)
	}
	return checkNode(tree.Stmts[0].Stmt)
}

func checkNode(node *pg_query.Node) error {
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		if n.SelectStmt.IntoClause != nil || len(n.SelectStmt.LockingClause) > 0 {
			return fmt.Errorf("%w: %w", domain.ErrNotReadOnly, errSelectInto)
		}
		return nil
	case *pg_query.Node_ExplainStmt:
		if n.ExplainStmt.Query == nil {
			return domain.ErrNotReadOnly
		}
		return checkNode(n.ExplainStmt.Query)
	default:
		return domain.ErrNotReadOnly
	}
}
