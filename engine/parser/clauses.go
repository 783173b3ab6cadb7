package parser

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/lexer"
	"github.com/omniql-engine/x8ql/mapping"
)

// parseClauseParameter consumes a lone `@name` standing for a whole clause.
func (p *Parser) parseClauseParameter() (ast.Node, bool) {
	if !p.check(lexer.TOKEN_PARAMETER) {
		return nil, false
	}
	return &ast.Parameter{Name: p.advance().Value}, true
}

// parseSelect reads `*`, `field [AS alias], ...` or a parameter.
func (p *Parser) parseSelect() (ast.Node, error) {
	if param, ok := p.parseClauseParameter(); ok {
		return param, nil
	}
	if p.check(lexer.TOKEN_STAR) {
		p.advance()
		return &ast.Select{}, nil
	}

	sel := &ast.Select{}
	for {
		field, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		term := ast.SelectTerm{Field: field}
		if p.match("as") {
			alias, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			term.Alias = alias
		}
		sel.Terms = append(sel.Terms, term)

		if !p.check(lexer.TOKEN_COMMA) {
			return sel, nil
		}
		p.advance()
	}
}

// parseCollection reads an identifier, a quoted name or a parameter.
func (p *Parser) parseCollection() (ast.Node, error) {
	if param, ok := p.parseClauseParameter(); ok {
		return param, nil
	}
	tok := p.current()
	switch tok.Type {
	case lexer.TOKEN_STRING:
		p.advance()
		return &ast.Collection{Name: tok.Value}, nil
	case lexer.TOKEN_IDENTIFIER:
		name, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return &ast.Collection{Name: name}, nil
	}
	return nil, lexer.NewUnknownTokenError(tok, "collection name")
}

// parseOrderBy reads `field [ASC|DESC], ...` or a parameter.
func (p *Parser) parseOrderBy() (ast.Node, error) {
	if param, ok := p.parseClauseParameter(); ok {
		return param, nil
	}

	order := &ast.OrderBy{}
	for {
		field, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		term := ast.OrderByTerm{Field: field}
		switch {
		case p.match("asc"):
			term.Direction = ast.Asc
		case p.match("desc"):
			term.Direction = ast.Desc
		}
		order.Terms = append(order.Terms, term)

		if !p.check(lexer.TOKEN_COMMA) {
			return order, nil
		}
		p.advance()
	}
}

// parseUpdate reads `field=op(args), ...` or a parameter.
func (p *Parser) parseUpdate() (ast.Node, error) {
	if param, ok := p.parseClauseParameter(); ok {
		return param, nil
	}

	update := &ast.Update{}
	for {
		op, err := p.parseUpdateOperation()
		if err != nil {
			return nil, err
		}
		update.Operations = append(update.Operations, op)

		if !p.check(lexer.TOKEN_COMMA) {
			return update, nil
		}
		p.advance()
	}
}

func (p *Parser) parseUpdateOperation() (ast.UpdateOperation, error) {
	field, err := p.parsePath()
	if err != nil {
		return ast.UpdateOperation{}, err
	}
	if _, err := p.expectType(lexer.TOKEN_EQUALS, "'='"); err != nil {
		return ast.UpdateOperation{}, err
	}

	opTok, err := p.expectIdentifier("update operation")
	if err != nil {
		return ast.UpdateOperation{}, err
	}
	name := strings.ToLower(opTok.Value)
	if !mapping.IsUpdateOperation(name) {
		msg := fmt.Sprintf("unknown update operation '%s'", opTok.Value)
		if suggestion := lexer.SuggestSimilar(name); mapping.IsUpdateOperation(suggestion) {
			msg += fmt.Sprintf(". Did you mean '%s'?", suggestion)
		}
		return ast.UpdateOperation{}, p.errorAt(opTok, msg)
	}
	if _, err := p.expectType(lexer.TOKEN_LPAREN, "'('"); err != nil {
		return ast.UpdateOperation{}, err
	}

	op := ast.UpdateOperation{Field: field, Op: name}
	for !p.check(lexer.TOKEN_RPAREN) {
		if len(op.Args) > 0 {
			if _, err := p.expectType(lexer.TOKEN_COMMA, "',' or ')'"); err != nil {
				return ast.UpdateOperation{}, err
			}
		}
		arg, err := p.parseOperand()
		if err != nil {
			return ast.UpdateOperation{}, err
		}
		op.Args = append(op.Args, arg)
	}
	p.advance() // Skip )

	if arity := mapping.UpdateArity[name]; len(op.Args) > arity {
		return ast.UpdateOperation{}, p.errorAt(opTok, fmt.Sprintf("%s takes at most %d argument(s), got %d", name, arity, len(op.Args)))
	}
	return op, nil
}
