package lexer

// TokenType represents the category of a token
type TokenType int

const (
	TOKEN_UNKNOWN    TokenType = iota
	TOKEN_IDENTIFIER           // query, where, a.b, $id (keywords are identifiers too)
	TOKEN_STRING               // 'John', "hello"
	TOKEN_NUMBER               // 25, -3.14, 1e6
	TOKEN_PARAMETER            // @name
	TOKEN_REF                  // {{path}}
	TOKEN_JSON                 // {"raw": "object"}
	TOKEN_OPERATOR             // <, <=, >, >=, !=
	TOKEN_EQUALS               // =
	TOKEN_LPAREN               // (
	TOKEN_RPAREN               // )
	TOKEN_LBRACKET             // [
	TOKEN_RBRACKET             // ]
	TOKEN_COMMA                // ,
	TOKEN_DOT                  // .
	TOKEN_DASH                 // - (last element in a path)
	TOKEN_STAR                 // *
	TOKEN_SEMICOLON            // ;
	TOKEN_EOF                  // End of input
)

// Token represents a single token with position info
type Token struct {
	Type     TokenType
	Value    string // Decoded value (strings unquoted, parameters without @)
	Position int    // Byte offset in input
	Line     int    // Line number (1-indexed)
	Column   int    // Column number (1-indexed)
	Adjacent bool   // No whitespace between this token and the previous one
}

var tokenNames = []string{
	"UNKNOWN",
	"IDENTIFIER",
	"STRING",
	"NUMBER",
	"PARAMETER",
	"REF",
	"JSON",
	"OPERATOR",
	"EQUALS",
	"LPAREN",
	"RPAREN",
	"LBRACKET",
	"RBRACKET",
	"COMMA",
	"DOT",
	"DASH",
	"STAR",
	"SEMICOLON",
	"EOF",
}

// String returns human-readable token type name
func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// Text renders the token the way it appears in error messages.
func (t Token) Text() string {
	switch t.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_STRING:
		return "'" + t.Value + "'"
	case TOKEN_PARAMETER:
		return "@" + t.Value
	case TOKEN_REF:
		return "{{" + t.Value + "}}"
	}
	return t.Value
}
