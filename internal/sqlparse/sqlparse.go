// Package sqlparse extracts the join chain of a SELECT statement and splits the statement at its FROM clause.
// Only the shape of the FROM clause is inspected; the SQL that is executed is never re-rendered from the AST,
// so placeholders, hints and dialect specific syntax outside the select list pass through untouched.
package sqlparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ErrUnsupported is returned for statements whose FROM clause can not be read as a chain of equi-joins.
var ErrUnsupported = errors.New("sqlparse: unsupported statement")

// Table is a table reference in the FROM clause.
type Table struct {
	Schema string
	Name   string
	Alias  string
}

// Column is a qualified column reference of a join condition.
type Column struct {
	Table  string
	Column string
}

// Join is a joined table and the two sides of the first equality of its ON condition.
type Join struct {
	Table Table
	Left  Column
	Right Column
}

// Chain is the table of the FROM clause followed by its joins in query order.
type Chain struct {
	Root  Table
	Joins []Join
}

var (
	selectRe   = regexp.MustCompile(`(?is)^\s*SELECT\s`)
	fromRe     = regexp.MustCompile(`(?is)^\s*(FROM\s.*)$`)
	fromWordRe = regexp.MustCompile(`(?i)\bFROM\b`)
	// Postgres style $1 placeholders are swapped for ? so the MySQL grammar accepts them
	dollarArgRe = regexp.MustCompile(`\$[0-9]+`)
)

// SplitFrom returns the statement starting at its FROM keyword, dropping the select list. A statement that already
// starts with FROM is returned trimmed. The select list ends at the first FROM outside parentheses, quotes and
// comments, so scalar subqueries in the select list are skipped.
func SplitFrom(query string) (string, error) {
	if m := fromRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if selectRe.MatchString(query) {
		for _, loc := range fromWordRe.FindAllStringIndex(query, -1) {
			if topLevel(query[:loc[0]]) {
				return strings.TrimSpace(query[loc[0]:]), nil
			}
		}
	}
	return "", fmt.Errorf("%w: expected SELECT ... FROM or FROM ...", ErrUnsupported)
}

// topLevel reports whether the end of prefix lies outside any parenthesis, string, quoted identifier or comment
func topLevel(prefix string) bool {
	tkn := sqlparser.NewStringTokenizer(dollarArgRe.ReplaceAllString(prefix, "?"))
	depth := 0
	for {
		typ, val := tkn.Scan()
		switch typ {
		case 0:
			return depth == 0
		case sqlparser.LEX_ERROR:
			// unterminated string or quoted identifier
			return false
		case sqlparser.COMMENT:
			v := string(val)
			if !strings.HasSuffix(v, "\n") && !strings.HasSuffix(v, "*/") {
				return false
			}
		case '(':
			depth++
		case ')':
			depth--
		}
	}
}

// Parse reads the join chain of query, which may be a full SELECT statement or start at FROM.
func Parse(query string) (Chain, error) {
	from, err := SplitFrom(query)
	if err != nil {
		return Chain{}, err
	}

	stmt, err := sqlparser.Parse("SELECT * " + dollarArgRe.ReplaceAllString(from, "?"))
	if err != nil {
		return Chain{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return Chain{}, fmt.Errorf("%w: not a simple SELECT", ErrUnsupported)
	}
	if len(sel.From) != 1 {
		return Chain{}, fmt.Errorf("%w: comma separated FROM lists are not supported, use JOIN", ErrUnsupported)
	}

	var w walker
	if err := w.walk(sel.From[0]); err != nil {
		return Chain{}, err
	}
	return w.chain, nil
}

type walker struct {
	chain Chain
	root  bool
}

func (w *walker) walk(expr sqlparser.TableExpr) error {
	switch e := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		if w.root {
			return fmt.Errorf("%w: table %s outside a join", ErrUnsupported, sqlparser.String(e))
		}
		t, err := tableOf(e)
		if err != nil {
			return err
		}
		w.chain.Root = t
		w.root = true
		return nil
	case *sqlparser.ParenTableExpr:
		if len(e.Exprs) != 1 {
			return fmt.Errorf("%w: parenthesised table list", ErrUnsupported)
		}
		return w.walk(e.Exprs[0])
	case *sqlparser.JoinTableExpr:
		if err := w.walk(e.LeftExpr); err != nil {
			return err
		}
		right, ok := e.RightExpr.(*sqlparser.AliasedTableExpr)
		if !ok {
			return fmt.Errorf("%w: nested join on the right side of %s", ErrUnsupported, e.Join)
		}
		t, err := tableOf(right)
		if err != nil {
			return err
		}
		if len(e.Condition.Using) > 0 {
			return fmt.Errorf("%w: JOIN %s USING, write the condition with ON", ErrUnsupported, t.Name)
		}
		left, rightCol, ok := joinColumns(e.Condition.On, t)
		if !ok {
			return fmt.Errorf("%w: JOIN %s needs an ON condition comparing two qualified columns", ErrUnsupported, t.Name)
		}
		w.chain.Joins = append(w.chain.Joins, Join{Table: t, Left: left, Right: rightCol})
		return nil
	}
	return fmt.Errorf("%w: table expression %T", ErrUnsupported, expr)
}

func tableOf(e *sqlparser.AliasedTableExpr) (Table, error) {
	name, ok := e.Expr.(sqlparser.TableName)
	if !ok {
		return Table{}, fmt.Errorf("%w: derived table %s", ErrUnsupported, sqlparser.String(e))
	}
	return Table{
		Schema: name.Qualifier.String(),
		Name:   name.Name.String(),
		Alias:  e.As.String(),
	}, nil
}

// joinColumns picks the col = col comparison of an ON condition that links table t, looking through AND and
// parentheses. When no comparison mentions t the first one is returned and the resolver reports it.
func joinColumns(expr sqlparser.Expr, t Table) (Column, Column, bool) {
	ref := t.Alias
	if ref == "" {
		ref = t.Name
	}
	pairs := equalities(expr, nil)
	if len(pairs) == 0 {
		return Column{}, Column{}, false
	}
	for _, p := range pairs {
		if strings.EqualFold(p[0].Table, ref) || strings.EqualFold(p[1].Table, ref) {
			return p[0], p[1], true
		}
	}
	return pairs[0][0], pairs[0][1], true
}

// equalities collects the comparisons between columns of two different tables in condition order
func equalities(expr sqlparser.Expr, acc [][2]Column) [][2]Column {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return equalities(e.Expr, acc)
	case *sqlparser.AndExpr:
		return equalities(e.Right, equalities(e.Left, acc))
	case *sqlparser.ComparisonExpr:
		if e.Operator != sqlparser.EqualStr {
			return acc
		}
		l, lok := e.Left.(*sqlparser.ColName)
		r, rok := e.Right.(*sqlparser.ColName)
		if !lok || !rok || l.Qualifier.Name.IsEmpty() || r.Qualifier.Name.IsEmpty() {
			return acc
		}
		if l.Qualifier.Name.String() == r.Qualifier.Name.String() {
			return acc
		}
		return append(acc, [2]Column{
			{Table: l.Qualifier.Name.String(), Column: l.Name.String()},
			{Table: r.Qualifier.Name.String(), Column: r.Name.String()},
		})
	}
	return acc
}
