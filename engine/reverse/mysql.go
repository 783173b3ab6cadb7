package reverse

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/parser"
	tidb "github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/opcode"
	"github.com/pingcap/tidb/parser/test_driver"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// ENTRY POINT
// ============================================================================

func MySQLToQuery(sql string) (*models.Query, error) {
	stmt, err := parseMySQL(sql)
	if err != nil {
		return nil, err
	}

	var q *models.Query
	switch s := stmt.(type) {
	case *tidb.SelectStmt:
		q, err = convertMySQLSelect(s)
	case *tidb.InsertStmt:
		q, err = convertMySQLInsert(s)
	case *tidb.UpdateStmt:
		q, err = convertMySQLUpdate(s)
	case *tidb.DeleteStmt:
		q, err = convertMySQLDelete(s)
	default:
		return nil, fmt.Errorf("%w: MySQL statement %T", ErrNotSupported, stmt)
	}
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// MySQLToWhere converts the body of a WHERE clause.
func MySQLToWhere(condition string) (ast.Expr, error) {
	stmt, err := parseMySQL("SELECT 1 FROM t WHERE " + condition)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*tidb.SelectStmt)
	if !ok || sel.OrderBy != nil || sel.Limit != nil || sel.GroupBy != nil {
		return nil, fmt.Errorf("%w: not a single condition", ErrParseError)
	}
	return newMySQLReader().condition(sel.Where)
}

func parseMySQL(sql string) (tidb.StmtNode, error) {
	stmts, _, err := parser.New().Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseError, err)
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: empty statement", ErrParseError)
	}
	if len(stmts) > 1 {
		return nil, fmt.Errorf("%w: %d statements", ErrNotSupported, len(stmts))
	}
	return stmts[0], nil
}

// mysqlReader numbers `?` placeholders as it meets them.
type mysqlReader struct {
	params int
}

func newMySQLReader() *mysqlReader { return &mysqlReader{} }

// ============================================================================
// CRUD
// ============================================================================

func convertMySQLSelect(s *tidb.SelectStmt) (*models.Query, error) {
	if s.With != nil || s.GroupBy != nil || s.Having != nil || s.Distinct {
		return nil, fmt.Errorf("%w: WITH, GROUP BY, HAVING and DISTINCT", ErrNotSupported)
	}
	table, err := mysqlSingleTable(s.From)
	if err != nil {
		return nil, err
	}
	r := newMySQLReader()
	q := &models.Query{Operation: mapping.VerbQuery, Collection: table}

	if s.Fields != nil {
		if isMySQLCountStar(s.Fields.Fields) {
			q.Operation = mapping.VerbCount
		} else if q.Select, err = mysqlSelect(s.Fields.Fields); err != nil {
			return nil, err
		}
	}
	if q.Where, err = r.condition(s.Where); err != nil {
		return nil, err
	}
	if s.OrderBy != nil {
		q.OrderBy = &ast.OrderBy{}
		for _, item := range s.OrderBy.Items {
			col, ok := item.Expr.(*tidb.ColumnNameExpr)
			if !ok {
				return nil, fmt.Errorf("%w: ORDER BY expressions", ErrNotSupported)
			}
			dir := ast.Asc
			if item.Desc {
				dir = ast.Desc
			}
			q.OrderBy.Terms = append(q.OrderBy.Terms, ast.OrderByTerm{Field: mysqlColumn(col.Name), Direction: dir})
		}
	}
	if s.Limit != nil {
		if q.Limit, err = mysqlCount(s.Limit.Count); err != nil {
			return nil, err
		}
		if q.Offset, err = mysqlCount(s.Limit.Offset); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func convertMySQLInsert(s *tidb.InsertStmt) (*models.Query, error) {
	if len(s.OnDuplicate) > 0 {
		return nil, fmt.Errorf("%w: ON DUPLICATE KEY UPDATE", ErrNotSupported)
	}
	table, err := mysqlSingleTable(s.Table)
	if err != nil {
		return nil, err
	}
	if len(s.Lists) != 1 || s.Select != nil || len(s.Setlist) > 0 {
		return nil, fmt.Errorf("%w: INSERT must have exactly one VALUES row", ErrNotSupported)
	}
	row := s.Lists[0]
	if len(row) != len(s.Columns) {
		return nil, fmt.Errorf("%w: column/value mismatch", ErrParseError)
	}
	doc := make(map[string]any, len(row))
	for i, col := range s.Columns {
		v, err := mysqlConstant(row[i])
		if err != nil {
			return nil, err
		}
		doc[col.Name.O] = v
	}
	return &models.Query{Operation: mapping.VerbPut, Collection: table, Value: doc}, nil
}

func convertMySQLUpdate(s *tidb.UpdateStmt) (*models.Query, error) {
	if s.MultipleTable || s.Order != nil || s.Limit != nil {
		return nil, fmt.Errorf("%w: multi table, ordered or limited UPDATE", ErrNotSupported)
	}
	table, err := mysqlSingleTable(s.TableRefs)
	if err != nil {
		return nil, err
	}
	update := ast.NewUpdate()
	for _, a := range s.List {
		if err := mysqlAssignment(update, a); err != nil {
			return nil, err
		}
	}
	where, err := newMySQLReader().condition(s.Where)
	if err != nil {
		return nil, err
	}
	return &models.Query{Operation: mapping.VerbUpdate, Collection: table, Update: update, Where: where}, nil
}

// mysqlAssignment reads `col = value` as put and `col = col + n` as increment.
func mysqlAssignment(update *ast.Update, a *tidb.Assignment) error {
	column := a.Column.Name.O
	if b, ok := a.Expr.(*tidb.BinaryOperationExpr); ok && (b.Op == opcode.Plus || b.Op == opcode.Minus) {
		if col, ok := b.L.(*tidb.ColumnNameExpr); ok && col.Name.Name.O == column {
			delta, err := mysqlConstant(b.R)
			if err != nil {
				return err
			}
			if b.Op == opcode.Minus {
				if delta, err = negate(delta); err != nil {
					return err
				}
			}
			update.Increment(column, delta)
			return nil
		}
	}
	v, err := mysqlConstant(a.Expr)
	if err != nil {
		return err
	}
	update.Put(column, v)
	return nil
}

func convertMySQLDelete(s *tidb.DeleteStmt) (*models.Query, error) {
	if s.IsMultiTable || s.Order != nil || s.Limit != nil {
		return nil, fmt.Errorf("%w: multi table, ordered or limited DELETE", ErrNotSupported)
	}
	table, err := mysqlSingleTable(s.TableRefs)
	if err != nil {
		return nil, err
	}
	where, err := newMySQLReader().condition(s.Where)
	if err != nil {
		return nil, err
	}
	return &models.Query{Operation: mapping.VerbDelete, Collection: table, Where: where}, nil
}

// ============================================================================
// CLAUSES
// ============================================================================

func mysqlSingleTable(refs *tidb.TableRefsClause) (string, error) {
	if refs == nil || refs.TableRefs == nil {
		return "", fmt.Errorf("%w: exactly one table is required", ErrNotSupported)
	}
	j := refs.TableRefs
	if j.Right != nil {
		return "", fmt.Errorf("%w: joins", ErrNotSupported)
	}
	ts, ok := j.Left.(*tidb.TableSource)
	if !ok {
		return "", fmt.Errorf("%w: nested joins", ErrNotSupported)
	}
	tn, ok := ts.Source.(*tidb.TableName)
	if !ok {
		return "", fmt.Errorf("%w: subqueries", ErrNotSupported)
	}
	return tn.Name.O, nil
}

func isMySQLCountStar(fields []*tidb.SelectField) bool {
	if len(fields) != 1 {
		return false
	}
	agg, ok := fields[0].Expr.(*tidb.AggregateFuncExpr)
	if !ok || !strings.EqualFold(agg.F, "count") || len(agg.Args) != 1 {
		return false
	}
	_, isConst := agg.Args[0].(*test_driver.ValueExpr)
	return isConst
}

func mysqlSelect(fields []*tidb.SelectField) (*ast.Select, error) {
	sel := &ast.Select{}
	for _, f := range fields {
		if f.WildCard != nil {
			if len(fields) > 1 || f.WildCard.Table.O != "" {
				return nil, fmt.Errorf("%w: * mixed with columns", ErrNotSupported)
			}
			return nil, nil
		}
		col, ok := f.Expr.(*tidb.ColumnNameExpr)
		if !ok {
			return nil, fmt.Errorf("%w: computed select targets", ErrNotSupported)
		}
		term := ast.SelectTerm{Field: mysqlColumn(col.Name)}
		if alias := f.AsName.O; alias != "" && alias != term.Field {
			term.Alias = alias
		}
		sel.Terms = append(sel.Terms, term)
	}
	return sel, nil
}

func mysqlColumn(name *tidb.ColumnName) string {
	if name.Table.O != "" {
		return name.Table.O + "." + name.Name.O
	}
	return name.Name.O
}

func mysqlCount(e tidb.ExprNode) (*int64, error) {
	if e == nil {
		return nil, nil
	}
	v, err := mysqlConstant(e)
	if err != nil {
		return nil, err
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return nil, fmt.Errorf("%w: expected a non-negative integer", ErrParseError)
	}
	return &n, nil
}

// ============================================================================
// CONDITIONS
// ============================================================================

func (r *mysqlReader) condition(e tidb.ExprNode) (ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	switch x := e.(type) {
	case *tidb.BinaryOperationExpr:
		switch x.Op {
		case opcode.LogicAnd, opcode.LogicOr:
			left, err := r.condition(x.L)
			if err != nil {
				return nil, err
			}
			right, err := r.condition(x.R)
			if err != nil {
				return nil, err
			}
			return join([]ast.Expr{left, right}, x.Op == opcode.LogicOr), nil
		}
		op, err := mysqlComparison(x.Op)
		if err != nil {
			return nil, err
		}
		left, err := r.operand(x.L)
		if err != nil {
			return nil, err
		}
		right, err := r.operand(x.R)
		if err != nil {
			return nil, err
		}
		return compare(left, op, right), nil
	case *tidb.UnaryOperationExpr:
		if x.Op != opcode.Not && x.Op != opcode.Not2 {
			return nil, fmt.Errorf("%w: unary %s", ErrNotSupported, x.Op)
		}
		inner, err := r.condition(x.V)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Expr: inner}, nil
	case *tidb.ParenthesesExpr:
		return r.condition(x.Expr)
	case *tidb.PatternInExpr:
		if x.Sel != nil {
			return nil, fmt.Errorf("%w: IN subqueries", ErrNotSupported)
		}
		left, err := r.operand(x.Expr)
		if err != nil {
			return nil, err
		}
		items, err := r.operands(x.List)
		if err != nil {
			return nil, err
		}
		return in(left, items, x.Not), nil
	case *tidb.BetweenExpr:
		operands, err := r.operands([]tidb.ExprNode{x.Expr, x.Left, x.Right})
		if err != nil {
			return nil, err
		}
		return between(operands[0], operands[1], operands[2], x.Not), nil
	case *tidb.PatternLikeOrIlikeExpr:
		left, err := r.operand(x.Expr)
		if err != nil {
			return nil, err
		}
		pattern, err := r.operand(x.Pattern)
		if err != nil {
			return nil, err
		}
		return like(left, pattern, !x.IsLike, x.Not)
	case *tidb.PatternRegexpExpr:
		left, err := r.operand(x.Expr)
		if err != nil {
			return nil, err
		}
		pattern, err := r.operand(x.Pattern)
		if err != nil {
			return nil, err
		}
		return regexMatch(left, pattern, false, x.Not)
	case *tidb.IsNullExpr:
		arg, err := r.operand(x.Expr)
		if err != nil {
			return nil, err
		}
		return isNull(arg, x.Not), nil
	case *tidb.IsTruthExpr:
		arg, err := r.operand(x.Expr)
		if err != nil {
			return nil, err
		}
		op := mapping.OpEQ
		if x.Not {
			op = mapping.OpNE
		}
		return compare(arg, op, literal(x.True != 0)), nil
	case *tidb.ColumnNameExpr:
		return compare(field(mysqlColumn(x.Name)), mapping.OpEQ, literal(true)), nil
	}
	return r.operand(e)
}

func mysqlComparison(op opcode.Op) (string, error) {
	switch op {
	case opcode.EQ:
		return mapping.OpEQ, nil
	case opcode.NE:
		return mapping.OpNE, nil
	case opcode.LT:
		return mapping.OpLT, nil
	case opcode.LE:
		return mapping.OpLTE, nil
	case opcode.GT:
		return mapping.OpGT, nil
	case opcode.GE:
		return mapping.OpGTE, nil
	}
	return "", fmt.Errorf("%w: operator %s", ErrNotSupported, op)
}

// ============================================================================
// OPERANDS
// ============================================================================

func (r *mysqlReader) operand(e tidb.ExprNode) (ast.Expr, error) {
	switch x := e.(type) {
	case *tidb.ColumnNameExpr:
		return field(mysqlColumn(x.Name)), nil
	case *test_driver.ParamMarkerExpr:
		r.params++
		return parameter(r.params), nil
	case *test_driver.ValueExpr:
		v, err := mysqlConstant(x)
		if err != nil {
			return nil, err
		}
		return literal(v), nil
	case *tidb.UnaryOperationExpr:
		if x.Op == opcode.Minus {
			v, err := mysqlConstant(x)
			if err != nil {
				return nil, err
			}
			return literal(v), nil
		}
	case *tidb.ParenthesesExpr:
		return r.operand(x.Expr)
	case *tidb.FuncCallExpr:
		args, err := r.operands(x.Args)
		if err != nil {
			return nil, err
		}
		return builtin(x.FnName.L, args)
	case *tidb.BinaryOperationExpr, *tidb.PatternInExpr, *tidb.BetweenExpr,
		*tidb.PatternLikeOrIlikeExpr, *tidb.IsNullExpr, *tidb.IsTruthExpr:
		return r.condition(e)
	}
	return nil, fmt.Errorf("%w: expression %T", ErrNotSupported, e)
}

func (r *mysqlReader) operands(exprs []tidb.ExprNode) ([]ast.Expr, error) {
	out := make([]ast.Expr, 0, len(exprs))
	for _, e := range exprs {
		o, err := r.operand(e)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func mysqlConstant(e tidb.ExprNode) (any, error) {
	switch x := e.(type) {
	case *tidb.ParenthesesExpr:
		return mysqlConstant(x.Expr)
	case *tidb.UnaryOperationExpr:
		if x.Op == opcode.Minus {
			v, err := mysqlConstant(x.V)
			if err != nil {
				return nil, err
			}
			return negate(v)
		}
	case *test_driver.ValueExpr:
		d := x.Datum
		switch d.Kind() {
		case test_driver.KindNull:
			return nil, nil
		case test_driver.KindInt64:
			return d.GetInt64(), nil
		case test_driver.KindUint64:
			lit, err := numberLiteral(fmt.Sprint(d.GetUint64()))
			if err != nil {
				return nil, err
			}
			return lit.Value, nil
		case test_driver.KindFloat32, test_driver.KindFloat64:
			return d.GetFloat64(), nil
		case test_driver.KindString:
			return d.GetString(), nil
		case test_driver.KindBytes:
			return string(d.GetBytes()), nil
		case test_driver.KindMysqlDecimal:
			lit, err := numberLiteral(d.GetMysqlDecimal().String())
			if err != nil {
				return nil, err
			}
			return lit.Value, nil
		}
		return nil, fmt.Errorf("%w: constant kind %d", ErrNotSupported, d.Kind())
	}
	return nil, fmt.Errorf("%w: expected a constant, got %T", ErrNotSupported, e)
}
