package parser

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/lexer"
	"github.com/omniql-engine/x8ql/mapping"
)

// =============================================================================
// CONDITIONS
// =============================================================================
//
//	or_expr    := and_expr (OR and_expr)*
//	and_expr   := not_expr (AND not_expr)*
//	not_expr   := NOT not_expr | '(' or_expr ')' | comparison
//	comparison := operand [op operand | BETWEEN operand AND operand
//	              | [NOT] IN list | LIKE operand]

// parseExpression is the entry for where, search and rank_by.
func (p *Parser) parseExpression() (ast.Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.match("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.match("not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Not{Expr: inner}, nil
	}

	if p.check(lexer.TOKEN_LPAREN) {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(lexer.TOKEN_RPAREN, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	tok := p.current()
	switch {
	case tok.Type == lexer.TOKEN_OPERATOR || tok.Type == lexer.TOKEN_EQUALS:
		p.advance()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: tok.Value, Right: right}, nil

	case isKeyword(tok, "between"):
		p.advance()
		low, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expect("and"); err != nil {
			return nil, err
		}
		high, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: mapping.OpBetween, Right: &ast.List{Items: []ast.Expr{low, high}}}, nil

	case isKeyword(tok, "in"):
		p.advance()
		right, err := p.parseInOperand()
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: mapping.OpIn, Right: right}, nil

	case isKeyword(tok, "not") && isKeyword(p.peek(1), "in"):
		p.advance()
		p.advance()
		right, err := p.parseInOperand()
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: mapping.OpNotIn, Right: right}, nil

	case isKeyword(tok, "like"):
		p.advance()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: mapping.OpLike, Right: right}, nil
	}

	return left, nil
}

// parseInOperand reads `(a, b, ...)` as a List, or any single operand.
func (p *Parser) parseInOperand() (ast.Expr, error) {
	if !p.check(lexer.TOKEN_LPAREN) {
		return p.parseOperand()
	}
	p.advance()
	list := &ast.List{Items: []ast.Expr{}}
	if p.check(lexer.TOKEN_RPAREN) {
		p.advance()
		return list, nil
	}
	for {
		item, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		if p.check(lexer.TOKEN_COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expectType(lexer.TOKEN_RPAREN, "',' or ')'"); err != nil {
			return nil, err
		}
		return list, nil
	}
}

// =============================================================================
// OPERANDS
// =============================================================================

// parseOperand reads a value, parameter, ref, function call or field.
func (p *Parser) parseOperand() (ast.Expr, error) {
	tok := p.current()
	switch tok.Type {
	case lexer.TOKEN_PARAMETER:
		p.advance()
		return &ast.Parameter{Name: tok.Value}, nil
	case lexer.TOKEN_REF:
		p.advance()
		return &ast.Ref{Path: tok.Value}, nil
	case lexer.TOKEN_STRING, lexer.TOKEN_NUMBER, lexer.TOKEN_JSON, lexer.TOKEN_LBRACKET:
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Value: v}, nil
	case lexer.TOKEN_IDENTIFIER:
		if v, ok := keywordValue(tok.Value); ok && !p.peekPathContinues() {
			p.advance()
			return &ast.Literal{Value: v}, nil
		}
		if p.peek(1).Type == lexer.TOKEN_LPAREN {
			if strings.EqualFold(tok.Value, "point") && p.peek(2).Type == lexer.TOKEN_NUMBER && p.peek(3).Type == lexer.TOKEN_NUMBER {
				return p.parseGeoPoint()
			}
			return p.parseFunction()
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return &ast.Field{Path: path}, nil
	}
	return nil, lexer.NewUnknownTokenError(tok, "operand")
}

// peekPathContinues reports whether the identifier at the cursor is the
// head of a longer path, as in `true.x` or `null[0]`.
func (p *Parser) peekPathContinues() bool {
	next := p.peek(1)
	return next.Adjacent && (next.Type == lexer.TOKEN_LBRACKET || next.Type == lexer.TOKEN_DOT)
}

// parseFunction reads `[ns.]name(args)` with positional or named args.
func (p *Parser) parseFunction() (ast.Expr, error) {
	nameTok := p.advance()
	p.advance() // Skip (

	fn := &ast.Function{Namespace: mapping.NamespaceBuiltin}
	full := strings.ToLower(nameTok.Value)
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		fn.Namespace, fn.Name = full[:i], full[i+1:]
	} else {
		fn.Name = full
	}

	if p.check(lexer.TOKEN_RPAREN) {
		p.advance()
		return fn, nil
	}

	for {
		if p.check(lexer.TOKEN_IDENTIFIER) && p.peek(1).Type == lexer.TOKEN_EQUALS {
			if len(fn.Args) > 0 {
				return nil, p.error("cannot mix positional and named arguments")
			}
			argName := p.advance().Value
			p.advance() // Skip =
			value, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			fn.NamedArgs = append(fn.NamedArgs, ast.NamedArg{Name: argName, Value: value})
		} else {
			if len(fn.NamedArgs) > 0 {
				return nil, p.error("cannot mix positional and named arguments")
			}
			arg, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			fn.Args = append(fn.Args, arg)
		}

		if p.check(lexer.TOKEN_COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expectType(lexer.TOKEN_RPAREN, "',' or ')'"); err != nil {
			return nil, err
		}
		return fn, nil
	}
}

// parseGeoPoint reads `POINT(lon lat)`.
func (p *Parser) parseGeoPoint() (ast.Expr, error) {
	p.advance() // POINT
	p.advance() // (
	lon, err := p.parseNumber(p.advance())
	if err != nil {
		return nil, err
	}
	lat, err := p.parseNumber(p.advance())
	if err != nil {
		return nil, err
	}
	if _, err := p.expectType(lexer.TOKEN_RPAREN, "')'"); err != nil {
		return nil, err
	}
	return &ast.GeoPoint{Lat: toFloat(lat), Lon: toFloat(lon)}, nil
}

// parsePath reads `a.b[0].c`, `tags[-]` or `$id`. Brackets and dots must
// follow without whitespace.
func (p *Parser) parsePath() (string, error) {
	head, err := p.expectIdentifier("field")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(head.Value)

	for {
		tok := p.current()
		if !tok.Adjacent {
			return sb.String(), nil
		}
		switch tok.Type {
		case lexer.TOKEN_LBRACKET:
			p.advance()
			idx := p.current()
			switch {
			case idx.Type == lexer.TOKEN_DASH:
			case idx.Type == lexer.TOKEN_NUMBER && isIndex(idx.Value):
			default:
				return "", p.error(fmt.Sprintf("expected index or '-', got %s", idx.Text()))
			}
			p.advance()
			if _, err := p.expectType(lexer.TOKEN_RBRACKET, "']'"); err != nil {
				return "", err
			}
			sb.WriteString("[" + idx.Value + "]")
		case lexer.TOKEN_DOT:
			p.advance()
			seg := p.current()
			if (seg.Type != lexer.TOKEN_IDENTIFIER && !(seg.Type == lexer.TOKEN_NUMBER && isIndex(seg.Value))) || !seg.Adjacent {
				return "", p.error(fmt.Sprintf("expected field name after '.', got %s", seg.Text()))
			}
			p.advance()
			sb.WriteString("." + seg.Value)
		default:
			return sb.String(), nil
		}
	}
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
