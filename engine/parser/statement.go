package parser

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/lexer"
	"github.com/omniql-engine/x8ql/mapping"
)

// parseStatement reads `verb clause*` or a BATCH/TRANSACT block.
func (p *Parser) parseStatement() (*ast.Operation, error) {
	verbTok, err := p.expectIdentifier("statement verb")
	if err != nil {
		return nil, err
	}
	verb := strings.ToLower(verbTok.Value)

	if mapping.IsMultiStatement(verb) {
		if p.inMulti {
			return nil, p.errorAt(verbTok, fmt.Sprintf("%s cannot be nested", strings.ToUpper(verb)))
		}
		return p.parseMulti(verb)
	}

	op := &ast.Operation{Name: verb, Args: map[string]ast.Node{}}
	for !p.atStatementEnd() {
		if err := p.parseClause(op); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// parseMulti reads `(statement ';')* END` after the BATCH/TRANSACT verb.
func (p *Parser) parseMulti(verb string) (*ast.Operation, error) {
	p.inMulti = true
	defer func() { p.inMulti = false }()

	stmts := &ast.Statements{}
	for {
		if p.match("end") {
			break
		}
		if p.isAtEnd() {
			return nil, p.error(fmt.Sprintf("expected 'END' to close %s", strings.ToUpper(verb)))
		}
		child, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts.Operations = append(stmts.Operations, child)
		if !p.check(lexer.TOKEN_SEMICOLON) && !isKeyword(p.current(), "end") {
			return nil, p.error(fmt.Sprintf("expected ';' or 'END', got %s", p.current().Text()))
		}
		for p.check(lexer.TOKEN_SEMICOLON) {
			p.advance()
		}
	}

	key := mapping.MultiStatementArgs[verb]
	return &ast.Operation{Name: verb, Args: map[string]ast.Node{key: stmts}}, nil
}

func (p *Parser) atStatementEnd() bool {
	if p.isAtEnd() {
		return true
	}
	if p.inMulti {
		return p.check(lexer.TOKEN_SEMICOLON) || isKeyword(p.current(), "end")
	}
	return false
}

// parseClause reads one clause and stores it on op.
func (p *Parser) parseClause(op *ast.Operation) error {
	tok, err := p.expectIdentifier("clause name")
	if err != nil {
		return err
	}

	keyword := strings.ToUpper(tok.Value)
	if keyword == "ORDER" || keyword == "RANK" {
		if err := p.expect("by"); err != nil {
			return err
		}
		keyword += " BY"
	}

	def, dedicated := mapping.QueryClauses[keyword]
	key := def.Key
	if !dedicated {
		key = strings.ToLower(tok.Value)
	}
	if _, dup := op.Args[key]; dup {
		return p.errorAt(tok, fmt.Sprintf("duplicate clause '%s'", strings.ToLower(keyword)))
	}

	var value ast.Node
	if dedicated {
		value, err = p.parseClauseBody(def.Kind)
	} else {
		if p.atStatementEnd() {
			return p.error(fmt.Sprintf("expected value for '%s', got %s", key, p.current().Text()))
		}
		value, err = p.parseOperand()
	}
	if err != nil {
		return err
	}
	op.Args[key] = value
	return nil
}

func (p *Parser) parseClauseBody(kind string) (ast.Node, error) {
	switch kind {
	case KindSelect:
		return p.parseSelect()
	case KindCollection:
		return p.parseCollection()
	case KindUpdate:
		return p.parseUpdate()
	case KindOrderBy:
		return p.parseOrderBy()
	default:
		return p.parseExpression()
	}
}
