package reverse

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// ENTRY POINT
// ============================================================================

func PostgreSQLToQuery(sql string) (*models.Query, error) {
	stmt, err := parsePostgres(sql)
	if err != nil {
		return nil, err
	}

	var q *models.Query
	switch {
	case stmt.GetSelectStmt() != nil:
		q, err = convertPGSelect(stmt.GetSelectStmt())
	case stmt.GetInsertStmt() != nil:
		q, err = convertPGInsert(stmt.GetInsertStmt())
	case stmt.GetUpdateStmt() != nil:
		q, err = convertPGUpdate(stmt.GetUpdateStmt())
	case stmt.GetDeleteStmt() != nil:
		q, err = convertPGDelete(stmt.GetDeleteStmt())
	default:
		return nil, fmt.Errorf("%w: PostgreSQL statement", ErrNotSupported)
	}
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// PostgreSQLToWhere converts the body of a WHERE clause.
func PostgreSQLToWhere(condition string) (ast.Expr, error) {
	stmt, err := parsePostgres("SELECT 1 WHERE " + condition)
	if err != nil {
		return nil, err
	}
	sel := stmt.GetSelectStmt()
	if sel == nil || len(sel.FromClause) > 0 || len(sel.SortClause) > 0 || sel.LimitCount != nil {
		return nil, fmt.Errorf("%w: not a single condition", ErrParseError)
	}
	return pgCondition(sel.WhereClause)
}

func parsePostgres(sql string) (*pg_query.Node, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseError, err)
	}
	if len(tree.Stmts) == 0 {
		return nil, fmt.Errorf("%w: no statements", ErrParseError)
	}
	if len(tree.Stmts) > 1 {
		return nil, fmt.Errorf("%w: %d statements", ErrNotSupported, len(tree.Stmts))
	}
	return tree.Stmts[0].Stmt, nil
}

// ============================================================================
// CRUD
// ============================================================================

func convertPGSelect(s *pg_query.SelectStmt) (*models.Query, error) {
	if s.Op != pg_query.SetOperation_SETOP_NONE {
		return nil, fmt.Errorf("%w: set operations", ErrNotSupported)
	}
	if s.WithClause != nil || len(s.GroupClause) > 0 || s.HavingClause != nil || len(s.DistinctClause) > 0 {
		return nil, fmt.Errorf("%w: WITH, GROUP BY, HAVING and DISTINCT", ErrNotSupported)
	}
	table, err := pgSingleTable(s.FromClause)
	if err != nil {
		return nil, err
	}
	q := &models.Query{Operation: mapping.VerbQuery, Collection: table}

	if isPGCountStar(s.TargetList) {
		q.Operation = mapping.VerbCount
	} else if q.Select, err = pgSelect(s.TargetList); err != nil {
		return nil, err
	}
	if q.Where, err = pgCondition(s.WhereClause); err != nil {
		return nil, err
	}
	if q.OrderBy, err = pgOrderBy(s.SortClause); err != nil {
		return nil, err
	}
	if q.Limit, err = pgCount(s.LimitCount); err != nil {
		return nil, err
	}
	if q.Offset, err = pgCount(s.LimitOffset); err != nil {
		return nil, err
	}
	return q, nil
}

func convertPGInsert(s *pg_query.InsertStmt) (*models.Query, error) {
	if s.Relation == nil || s.SelectStmt == nil {
		return nil, fmt.Errorf("%w: INSERT without VALUES", ErrNotSupported)
	}
	values := s.SelectStmt.GetSelectStmt()
	if values == nil || len(values.ValuesLists) != 1 {
		return nil, fmt.Errorf("%w: INSERT must have exactly one VALUES row", ErrNotSupported)
	}
	row := values.ValuesLists[0].GetList()
	if row == nil || len(row.Items) != len(s.Cols) {
		return nil, fmt.Errorf("%w: column/value mismatch", ErrParseError)
	}
	doc := make(map[string]any, len(s.Cols))
	for i, col := range s.Cols {
		rt := col.GetResTarget()
		if rt == nil {
			return nil, fmt.Errorf("%w: INSERT column", ErrParseError)
		}
		v, err := pgConstant(row.Items[i])
		if err != nil {
			return nil, err
		}
		doc[rt.Name] = v
	}
	return &models.Query{Operation: mapping.VerbPut, Collection: s.Relation.Relname, Value: doc}, nil
}

func convertPGUpdate(s *pg_query.UpdateStmt) (*models.Query, error) {
	if s.Relation == nil || len(s.FromClause) > 0 {
		return nil, fmt.Errorf("%w: UPDATE ... FROM", ErrNotSupported)
	}
	update := ast.NewUpdate()
	for _, n := range s.TargetList {
		rt := n.GetResTarget()
		if rt == nil {
			return nil, fmt.Errorf("%w: SET target", ErrParseError)
		}
		if err := pgAssignment(update, rt.Name, rt.Val); err != nil {
			return nil, err
		}
	}
	where, err := pgCondition(s.WhereClause)
	if err != nil {
		return nil, err
	}
	return &models.Query{Operation: mapping.VerbUpdate, Collection: s.Relation.Relname, Update: update, Where: where}, nil
}

// pgAssignment reads `col = value` as put and `col = col + n` as increment.
func pgAssignment(update *ast.Update, column string, val *pg_query.Node) error {
	if e := val.GetAExpr(); e != nil && e.Kind == pg_query.A_Expr_Kind_AEXPR_OP {
		op := pgOperatorName(e)
		if ref := e.Lexpr.GetColumnRef(); ref != nil && (op == "+" || op == "-") {
			name, err := pgColumn(ref)
			if err != nil {
				return err
			}
			delta, err := pgConstant(e.Rexpr)
			if err != nil {
				return err
			}
			if name == column {
				if op == "-" {
					delta, err = negate(delta)
					if err != nil {
						return err
					}
				}
				update.Increment(column, delta)
				return nil
			}
		}
	}
	v, err := pgConstant(val)
	if err != nil {
		return err
	}
	update.Put(column, v)
	return nil
}

func convertPGDelete(s *pg_query.DeleteStmt) (*models.Query, error) {
	if s.Relation == nil || len(s.UsingClause) > 0 {
		return nil, fmt.Errorf("%w: DELETE ... USING", ErrNotSupported)
	}
	where, err := pgCondition(s.WhereClause)
	if err != nil {
		return nil, err
	}
	return &models.Query{Operation: mapping.VerbDelete, Collection: s.Relation.Relname, Where: where}, nil
}

// ============================================================================
// CLAUSES
// ============================================================================

func pgSingleTable(from []*pg_query.Node) (string, error) {
	if len(from) != 1 {
		return "", fmt.Errorf("%w: exactly one table is required", ErrNotSupported)
	}
	rv := from[0].GetRangeVar()
	if rv == nil {
		return "", fmt.Errorf("%w: joins and subqueries", ErrNotSupported)
	}
	return rv.Relname, nil
}

func isPGCountStar(targets []*pg_query.Node) bool {
	if len(targets) != 1 {
		return false
	}
	rt := targets[0].GetResTarget()
	if rt == nil {
		return false
	}
	fc := rt.Val.GetFuncCall()
	return fc != nil && fc.AggStar && strings.EqualFold(pgFuncName(fc), "count")
}

func pgSelect(targets []*pg_query.Node) (*ast.Select, error) {
	sel := &ast.Select{}
	for _, n := range targets {
		rt := n.GetResTarget()
		if rt == nil {
			return nil, fmt.Errorf("%w: select target", ErrParseError)
		}
		ref := rt.Val.GetColumnRef()
		if ref == nil {
			return nil, fmt.Errorf("%w: computed select targets", ErrNotSupported)
		}
		if isPGStar(ref) {
			if len(targets) > 1 {
				return nil, fmt.Errorf("%w: * mixed with columns", ErrNotSupported)
			}
			return nil, nil
		}
		path, err := pgColumn(ref)
		if err != nil {
			return nil, err
		}
		term := ast.SelectTerm{Field: path}
		if rt.Name != "" && rt.Name != path {
			term.Alias = rt.Name
		}
		sel.Terms = append(sel.Terms, term)
	}
	return sel, nil
}

func pgOrderBy(sort []*pg_query.Node) (*ast.OrderBy, error) {
	if len(sort) == 0 {
		return nil, nil
	}
	ob := &ast.OrderBy{}
	for _, n := range sort {
		sb := n.GetSortBy()
		if sb == nil {
			return nil, fmt.Errorf("%w: ORDER BY item", ErrParseError)
		}
		ref := sb.Node.GetColumnRef()
		if ref == nil {
			return nil, fmt.Errorf("%w: ORDER BY expressions", ErrNotSupported)
		}
		path, err := pgColumn(ref)
		if err != nil {
			return nil, err
		}
		dir := ast.Asc
		if sb.SortbyDir == pg_query.SortByDir_SORTBY_DESC {
			dir = ast.Desc
		}
		ob.Terms = append(ob.Terms, ast.OrderByTerm{Field: path, Direction: dir})
	}
	return ob, nil
}

func pgCount(node *pg_query.Node) (*int64, error) {
	if node == nil {
		return nil, nil
	}
	c := node.GetAConst()
	if c == nil {
		return nil, fmt.Errorf("%w: LIMIT and OFFSET must be constants", ErrNotSupported)
	}
	if c.Isnull {
		return nil, nil // LIMIT ALL
	}
	if c.GetIval() == nil || c.GetIval().Ival < 0 {
		return nil, fmt.Errorf("%w: expected a non-negative integer", ErrParseError)
	}
	n := int64(c.GetIval().Ival)
	return &n, nil
}

// ============================================================================
// CONDITIONS
// ============================================================================

func pgCondition(node *pg_query.Node) (ast.Expr, error) {
	if node == nil {
		return nil, nil
	}
	switch {
	case node.GetBoolExpr() != nil:
		be := node.GetBoolExpr()
		args := make([]ast.Expr, 0, len(be.Args))
		for _, a := range be.Args {
			e, err := pgCondition(a)
			if err != nil {
				return nil, err
			}
			args = append(args, e)
		}
		switch be.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			return join(args, false), nil
		case pg_query.BoolExprType_OR_EXPR:
			return join(args, true), nil
		case pg_query.BoolExprType_NOT_EXPR:
			if len(args) != 1 {
				return nil, fmt.Errorf("%w: NOT takes one argument", ErrParseError)
			}
			return &ast.Not{Expr: args[0]}, nil
		}
	case node.GetAExpr() != nil:
		return pgAExpr(node.GetAExpr())
	case node.GetNullTest() != nil:
		nt := node.GetNullTest()
		arg, err := pgOperand(nt.Arg)
		if err != nil {
			return nil, err
		}
		return isNull(arg, nt.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL), nil
	case node.GetBooleanTest() != nil:
		bt := node.GetBooleanTest()
		arg, err := pgOperand(bt.Arg)
		if err != nil {
			return nil, err
		}
		switch bt.Booltesttype {
		case pg_query.BoolTestType_IS_TRUE:
			return compare(arg, mapping.OpEQ, literal(true)), nil
		case pg_query.BoolTestType_IS_FALSE:
			return compare(arg, mapping.OpEQ, literal(false)), nil
		case pg_query.BoolTestType_IS_NOT_TRUE:
			return compare(arg, mapping.OpNE, literal(true)), nil
		case pg_query.BoolTestType_IS_NOT_FALSE:
			return compare(arg, mapping.OpNE, literal(false)), nil
		}
	case node.GetColumnRef() != nil:
		// a bare boolean column
		arg, err := pgOperand(node)
		if err != nil {
			return nil, err
		}
		return compare(arg, mapping.OpEQ, literal(true)), nil
	default:
		return pgOperand(node)
	}
	return nil, fmt.Errorf("%w: condition", ErrNotSupported)
}

func pgAExpr(e *pg_query.A_Expr) (ast.Expr, error) {
	op := pgOperatorName(e)
	left, err := pgOperand(e.Lexpr)
	if err != nil {
		return nil, err
	}

	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		right, err := pgOperand(e.Rexpr)
		if err != nil {
			return nil, err
		}
		switch op {
		case "~", "~*", "!~", "!~*":
			return regexMatch(left, right, strings.HasSuffix(op, "*"), strings.HasPrefix(op, "!"))
		}
		native, err := operatorFor(op, "PostgreSQL")
		if err != nil {
			return nil, err
		}
		return compare(left, native, right), nil
	case pg_query.A_Expr_Kind_AEXPR_IN:
		items, err := pgList(e.Rexpr)
		if err != nil {
			return nil, err
		}
		return in(left, items, op == "<>"), nil
	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		right, err := pgOperand(e.Rexpr)
		if err != nil {
			return nil, err
		}
		return like(left, right, e.Kind == pg_query.A_Expr_Kind_AEXPR_ILIKE, strings.HasPrefix(op, "!"))
	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		bounds, err := pgList(e.Rexpr)
		if err != nil {
			return nil, err
		}
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%w: BETWEEN needs two bounds", ErrParseError)
		}
		return between(left, bounds[0], bounds[1], e.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN), nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrNotSupported, op)
}

// regexMatch maps an unanchored regex match onto like, which anchors.
func regexMatch(left, right ast.Expr, caseInsensitive, not bool) (ast.Expr, error) {
	lit, ok := right.(*ast.Literal)
	if !ok {
		return nil, fmt.Errorf("%w: regular expression must be a constant", ErrNotSupported)
	}
	pattern, ok := lit.Value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: regular expression must be a string", ErrParseError)
	}
	pattern = ".*(?:" + pattern + ")"
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	var out ast.Expr = compare(left, mapping.OpLike, literal(pattern))
	if not {
		out = &ast.Not{Expr: out}
	}
	return out, nil
}

func pgOperatorName(e *pg_query.A_Expr) string {
	if len(e.Name) > 0 {
		if str := e.Name[len(e.Name)-1].GetString_(); str != nil {
			return str.Sval
		}
	}
	return ""
}

// ============================================================================
// OPERANDS
// ============================================================================

func pgOperand(node *pg_query.Node) (ast.Expr, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: missing operand", ErrParseError)
	}
	switch {
	case node.GetColumnRef() != nil:
		path, err := pgColumn(node.GetColumnRef())
		if err != nil {
			return nil, err
		}
		return field(path), nil
	case node.GetAConst() != nil:
		v, err := pgConstant(node)
		if err != nil {
			return nil, err
		}
		return literal(v), nil
	case node.GetTypeCast() != nil:
		return pgOperand(node.GetTypeCast().Arg)
	case node.GetParamRef() != nil:
		return parameter(int(node.GetParamRef().Number)), nil
	case node.GetFuncCall() != nil:
		fc := node.GetFuncCall()
		args := make([]ast.Expr, 0, len(fc.Args))
		for _, a := range fc.Args {
			e, err := pgOperand(a)
			if err != nil {
				return nil, err
			}
			args = append(args, e)
		}
		return builtin(pgFuncName(fc), args)
	case node.GetAExpr() != nil:
		e := node.GetAExpr()
		if e.Lexpr == nil && pgOperatorName(e) == "-" {
			v, err := pgConstant(e.Rexpr)
			if err != nil {
				return nil, err
			}
			n, err := negate(v)
			if err != nil {
				return nil, err
			}
			return literal(n), nil
		}
		return pgAExpr(e)
	case node.GetBoolExpr() != nil, node.GetNullTest() != nil, node.GetBooleanTest() != nil:
		return pgCondition(node)
	}
	return nil, fmt.Errorf("%w: expression", ErrNotSupported)
}

func pgColumn(ref *pg_query.ColumnRef) (string, error) {
	parts := make([]string, 0, len(ref.Fields))
	for _, f := range ref.Fields {
		if str := f.GetString_(); str != nil {
			parts = append(parts, str.Sval)
			continue
		}
		return "", fmt.Errorf("%w: * in an expression", ErrNotSupported)
	}
	return strings.Join(parts, "."), nil
}

func isPGStar(ref *pg_query.ColumnRef) bool {
	return len(ref.Fields) > 0 && ref.Fields[len(ref.Fields)-1].GetAStar() != nil
}

func pgFuncName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) > 0 {
		if str := fc.Funcname[len(fc.Funcname)-1].GetString_(); str != nil {
			return str.Sval
		}
	}
	return ""
}

func pgList(node *pg_query.Node) ([]ast.Expr, error) {
	list := node.GetList()
	if list == nil {
		return nil, fmt.Errorf("%w: subqueries", ErrNotSupported)
	}
	items := make([]ast.Expr, 0, len(list.Items))
	for _, it := range list.Items {
		e, err := pgOperand(it)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func pgConstant(node *pg_query.Node) (any, error) {
	if tc := node.GetTypeCast(); tc != nil {
		return pgConstant(tc.Arg)
	}
	c := node.GetAConst()
	if c == nil {
		if e := node.GetAExpr(); e != nil && e.Lexpr == nil && pgOperatorName(e) == "-" {
			v, err := pgConstant(e.Rexpr)
			if err != nil {
				return nil, err
			}
			return negate(v)
		}
		return nil, fmt.Errorf("%w: expected a constant", ErrNotSupported)
	}
	switch {
	case c.Isnull:
		return nil, nil
	case c.GetIval() != nil:
		return int64(c.GetIval().Ival), nil
	case c.GetFval() != nil:
		lit, err := numberLiteral(c.GetFval().Fval)
		if err != nil {
			return nil, err
		}
		return lit.Value, nil
	case c.GetSval() != nil:
		return c.GetSval().Sval, nil
	case c.GetBoolval() != nil:
		return c.GetBoolval().Boolval, nil
	}
	return nil, fmt.Errorf("%w: constant kind", ErrNotSupported)
}

func negate(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	}
	return nil, fmt.Errorf("%w: cannot negate %v", ErrParseError, v)
}
