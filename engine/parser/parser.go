package parser

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/lexer"
	"github.com/omniql-engine/x8ql/mapping"
)

// Entry kinds, re-exported from mapping for callers of this package.
const (
	KindStatement  = mapping.KindStatement
	KindWhere      = mapping.KindWhere
	KindSelect     = mapping.KindSelect
	KindCollection = mapping.KindCollection
	KindOrderBy    = mapping.KindOrderBy
	KindRankBy     = mapping.KindRankBy
	KindSearch     = mapping.KindSearch
	KindUpdate     = mapping.KindUpdate
)

// Parser implements a recursive descent parser for QL
type Parser struct {
	tokens []lexer.Token
	pos    int
	// inMulti is set while reading the statements of a BATCH/TRANSACT block.
	inMulti bool
}

// New creates a new parser from input string
func New(input string) (*Parser, error) {
	tokens, err := lexer.Tokenize(input)
	if err != nil {
		return nil, err
	}
	return &Parser{
		tokens: tokens,
		pos:    0,
	}, nil
}

// Parse reads the whole input as the given entry kind. Empty input yields
// a nil node and no error.
func (p *Parser) Parse(kind string) (ast.Node, error) {
	if p.isAtEnd() {
		return nil, nil
	}

	var node ast.Node
	var err error

	switch kind {
	case KindStatement:
		node, err = p.parseStatement()
	case KindWhere, KindSearch, KindRankBy:
		node, err = p.parseExpression()
	case KindSelect:
		node, err = p.parseSelect()
	case KindCollection:
		node, err = p.parseCollection()
	case KindOrderBy:
		node, err = p.parseOrderBy()
	case KindUpdate:
		node, err = p.parseUpdate()
	default:
		return nil, fmt.Errorf("unknown entry kind %q (supported: %v)", kind, mapping.EntryKinds)
	}

	if err != nil {
		return nil, err
	}

	// Ensure all tokens were consumed
	if !p.isAtEnd() {
		tok := p.current()
		if suggestion := lexer.SuggestSimilar(tok.Value); suggestion != "" && tok.Type == lexer.TOKEN_IDENTIFIER {
			return nil, p.error(fmt.Sprintf("unexpected %s. Did you mean '%s'?", tok.Text(), suggestion))
		}
		return nil, p.error(fmt.Sprintf("unexpected %s after %s", tok.Text(), kind))
	}

	return node, nil
}

// parse is the uncached entry point used by Cache.
func parse(text, kind string) (ast.Node, error) {
	if !mapping.IsEntryKind(kind) {
		return nil, fmt.Errorf("unknown entry kind %q (supported: %v)", kind, mapping.EntryKinds)
	}
	p, err := New(text)
	if err != nil {
		return nil, err
	}
	return p.Parse(kind)
}

// =============================================================================
// TOKEN NAVIGATION
// =============================================================================

// current returns current token without advancing
func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	return p.tokens[p.pos]
}

// advance moves to next token, returns previous
func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// peek looks ahead without advancing
func (p *Parser) peek(offset int) lexer.Token {
	pos := p.pos + offset
	if pos < 0 || pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	return p.tokens[pos]
}

// isAtEnd checks if all tokens consumed
func (p *Parser) isAtEnd() bool {
	return p.pos >= len(p.tokens) || p.current().Type == lexer.TOKEN_EOF
}

// check reports whether current token is one of the given types
func (p *Parser) check(types ...lexer.TokenType) bool {
	cur := p.current().Type
	for _, t := range types {
		if cur == t {
			return true
		}
	}
	return false
}

// isKeyword checks whether the token is the identifier kw in any case
func isKeyword(tok lexer.Token, kw string) bool {
	return tok.Type == lexer.TOKEN_IDENTIFIER && strings.EqualFold(tok.Value, kw)
}

// match consumes the current token if it is one of the given keywords
func (p *Parser) match(keywords ...string) bool {
	for _, kw := range keywords {
		if isKeyword(p.current(), kw) {
			p.advance()
			return true
		}
	}
	return false
}

// expect consumes the keyword, otherwise error
func (p *Parser) expect(keyword string) error {
	if !p.match(keyword) {
		return p.error(fmt.Sprintf("expected '%s', got %s", strings.ToUpper(keyword), p.current().Text()))
	}
	return nil
}

// expectType consumes a token of the given type, otherwise error
func (p *Parser) expectType(tokenType lexer.TokenType, what string) (lexer.Token, error) {
	if !p.check(tokenType) {
		return lexer.Token{}, p.error(fmt.Sprintf("expected %s, got %s", what, p.current().Text()))
	}
	return p.advance(), nil
}

// expectIdentifier consumes and returns identifier
func (p *Parser) expectIdentifier(what string) (lexer.Token, error) {
	return p.expectType(lexer.TOKEN_IDENTIFIER, what)
}

// =============================================================================
// ERROR HANDLING
// =============================================================================

// error creates parse error at current position
func (p *Parser) error(message string) error {
	return lexer.NewParseError(p.current(), message)
}

// errorAt creates parse error at the given token
func (p *Parser) errorAt(tok lexer.Token, message string) error {
	return lexer.NewParseError(tok, message)
}
