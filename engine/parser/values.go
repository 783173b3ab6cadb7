package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/lexer"
)

// keywordValue resolves null, true and false in any case.
func keywordValue(word string) (any, bool) {
	switch strings.ToLower(word) {
	case "null":
		return nil, true
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return nil, false
}

// parseValue reads a constant: string, number, JSON object, array, or
// one of null/true/false.
func (p *Parser) parseValue() (any, error) {
	tok := p.current()
	switch tok.Type {
	case lexer.TOKEN_STRING:
		p.advance()
		return tok.Value, nil
	case lexer.TOKEN_NUMBER:
		p.advance()
		return p.parseNumber(tok)
	case lexer.TOKEN_JSON:
		p.advance()
		return p.parseJSON(tok)
	case lexer.TOKEN_LBRACKET:
		return p.parseArray()
	case lexer.TOKEN_IDENTIFIER:
		if v, ok := keywordValue(tok.Value); ok {
			p.advance()
			return v, nil
		}
	}
	return nil, lexer.NewUnknownTokenError(tok, "value")
}

// parseArray reads `[value, ...]`.
func (p *Parser) parseArray() (any, error) {
	p.advance() // Skip [
	items := []any{}
	if p.check(lexer.TOKEN_RBRACKET) {
		p.advance()
		return items, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if p.check(lexer.TOKEN_COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expectType(lexer.TOKEN_RBRACKET, "',' or ']'"); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// parseNumber returns int64 for integral text and float64 otherwise.
func (p *Parser) parseNumber(tok lexer.Token) (any, error) {
	if tok.Type != lexer.TOKEN_NUMBER {
		return nil, p.errorAt(tok, fmt.Sprintf("expected number, got %s", tok.Text()))
	}
	if !strings.ContainsAny(tok.Value, ".eE") {
		if i, err := strconv.ParseInt(tok.Value, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return nil, p.errorAt(tok, fmt.Sprintf("invalid number '%s'", tok.Value))
	}
	return f, nil
}

func (p *Parser) parseJSON(tok lexer.Token) (any, error) {
	v, err := accessor.DecodeJSON([]byte(tok.Value))
	if err != nil {
		return nil, p.errorAt(tok, fmt.Sprintf("invalid object: %v", err))
	}
	return v, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
