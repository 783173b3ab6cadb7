package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer converts input string to tokens
type Tokenizer struct {
	input   string
	pos     int
	line    int
	column  int
	tokens  []Token
	spaced  bool
}

// Tokenize converts QL text to tokens. The last token is always TOKEN_EOF.
func Tokenize(input string) ([]Token, error) {
	t := &Tokenizer{
		input:  input,
		pos:    0,
		line:   1,
		column: 1,
		spaced: true,
	}
	return t.tokenize()
}

func (t *Tokenizer) tokenize() ([]Token, error) {
	for t.pos < len(t.input) {
		// Skip whitespace
		if t.skipWhitespace() {
			t.spaced = true
			continue
		}

		ch := t.input[t.pos]

		// Single character tokens
		switch ch {
		case '(':
			t.single(TOKEN_LPAREN)
			continue
		case ')':
			t.single(TOKEN_RPAREN)
			continue
		case ',':
			t.single(TOKEN_COMMA)
			continue
		case '[':
			t.single(TOKEN_LBRACKET)
			continue
		case ']':
			t.single(TOKEN_RBRACKET)
			continue
		case '.':
			t.single(TOKEN_DOT)
			continue
		case '*':
			t.single(TOKEN_STAR)
			continue
		case ';':
			t.single(TOKEN_SEMICOLON)
			continue
		case '\'', '"':
			if err := t.scanString(ch); err != nil {
				return nil, err
			}
			continue
		case '@':
			if err := t.scanParameter(); err != nil {
				return nil, err
			}
			continue
		case '{':
			var err error
			if t.pos+1 < len(t.input) && t.input[t.pos+1] == '{' {
				err = t.scanRef()
			} else {
				err = t.scanJSON()
			}
			if err != nil {
				return nil, err
			}
			continue
		case '-':
			if t.peekDigit() {
				t.scanNumber()
			} else {
				t.single(TOKEN_DASH)
			}
			continue
		}

		// Multi-character tokens
		if isWordStart(ch) {
			t.scanWord()
			continue
		}

		if isDigit(ch) {
			t.scanNumber()
			continue
		}

		// Operators: =, !=, <>, >, <, >=, <=
		if isOperatorChar(ch) {
			if err := t.scanOperator(); err != nil {
				return nil, err
			}
			continue
		}

		// Unknown character
		r, _ := utf8.DecodeRuneInString(t.input[t.pos:])
		return nil, t.errorHere(fmt.Sprintf("unexpected character '%c'", r))
	}

	// Add EOF token
	t.addToken(TOKEN_EOF, "", t.pos, t.line, t.column)

	return t.tokens, nil
}

func (t *Tokenizer) skipWhitespace() bool {
	skipped := false
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if ch == ' ' || ch == '\t' {
			t.column++
			t.pos++
			skipped = true
		} else if ch == '\n' {
			t.line++
			t.column = 1
			t.pos++
			skipped = true
		} else if ch == '\r' {
			t.pos++
			skipped = true
		} else {
			break
		}
	}
	return skipped
}

func (t *Tokenizer) advance() {
	if t.input[t.pos] == '\n' {
		t.line++
		t.column = 0
	}
	t.pos++
	t.column++
}

func (t *Tokenizer) peekDigit() bool {
	return t.pos+1 < len(t.input) && isDigit(t.input[t.pos+1])
}

func (t *Tokenizer) single(tokenType TokenType) {
	t.addToken(tokenType, t.input[t.pos:t.pos+1], t.pos, t.line, t.column)
	t.advance()
}

func (t *Tokenizer) addToken(tokenType TokenType, value string, pos, line, column int) {
	t.tokens = append(t.tokens, Token{
		Type:     tokenType,
		Value:    value,
		Position: pos,
		Line:     line,
		Column:   column,
		Adjacent: !t.spaced,
	})
	t.spaced = false
}

func (t *Tokenizer) errorHere(message string) *ParseError {
	return &ParseError{
		Message:  message,
		Position: t.pos,
		Line:     t.line,
		Column:   t.column,
	}
}

func (t *Tokenizer) scanString(quote byte) error {
	startPos, startLine, startCol := t.pos, t.line, t.column

	t.advance() // Skip opening quote

	var value strings.Builder
	for t.pos < len(t.input) {
		ch := t.input[t.pos]

		if ch == '\\' && t.pos+1 < len(t.input) {
			// Escape sequence
			t.advance()
			switch esc := t.input[t.pos]; esc {
			case 'n':
				value.WriteByte('\n')
			case 't':
				value.WriteByte('\t')
			case 'r':
				value.WriteByte('\r')
			case 'b':
				value.WriteByte('\b')
			case 'f':
				value.WriteByte('\f')
			case 'u':
				if t.pos+4 >= len(t.input) {
					return t.errorHere("incomplete unicode escape")
				}
				code, err := strconv.ParseUint(t.input[t.pos+1:t.pos+5], 16, 32)
				if err != nil {
					return t.errorHere("invalid unicode escape")
				}
				value.WriteRune(rune(code))
				for i := 0; i < 4; i++ {
					t.advance()
				}
			default:
				value.WriteByte(esc)
			}
			t.advance()
			continue
		}

		if ch == quote {
			t.advance() // Skip closing quote
			t.addToken(TOKEN_STRING, value.String(), startPos, startLine, startCol)
			return nil
		}

		value.WriteByte(ch)
		t.advance()
	}

	return &ParseError{
		Message:  fmt.Sprintf("unclosed string, expected %c", quote),
		Position: startPos,
		Line:     startLine,
		Column:   startCol,
	}
}

func (t *Tokenizer) scanNumber() {
	startPos, startCol := t.pos, t.column

	if t.input[t.pos] == '-' {
		t.advance()
	}
	t.skipDigits()

	// Decimal part
	if t.pos+1 < len(t.input) && t.input[t.pos] == '.' && isDigit(t.input[t.pos+1]) {
		t.advance()
		t.skipDigits()
	}

	// Exponent
	if t.pos < len(t.input) && (t.input[t.pos] == 'e' || t.input[t.pos] == 'E') {
		next := t.pos + 1
		if next < len(t.input) && (t.input[next] == '+' || t.input[next] == '-') {
			next++
		}
		if next < len(t.input) && isDigit(t.input[next]) {
			for t.pos < next {
				t.advance()
			}
			t.skipDigits()
		}
	}

	t.addToken(TOKEN_NUMBER, t.input[startPos:t.pos], startPos, t.line, startCol)
}

func (t *Tokenizer) skipDigits() {
	for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
		t.advance()
	}
}

// scanWord reads identifiers, keywords and dotted paths (`a.b.c`).
func (t *Tokenizer) scanWord() {
	startPos, startCol := t.pos, t.column
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if isWordChar(ch) {
			t.advance()
			continue
		}
		// Dots join words only when another word follows.
		if ch == '.' && t.pos+1 < len(t.input) && isWordStart(t.input[t.pos+1]) {
			t.advance()
			continue
		}
		break
	}
	t.addToken(TOKEN_IDENTIFIER, t.input[startPos:t.pos], startPos, t.line, startCol)
}

func (t *Tokenizer) scanParameter() error {
	startPos, startCol := t.pos, t.column
	t.advance() // Skip @
	nameStart := t.pos
	for t.pos < len(t.input) && isWordChar(t.input[t.pos]) {
		t.advance()
	}
	if t.pos == nameStart {
		return &ParseError{Message: "expected parameter name after '@'", Position: startPos, Line: t.line, Column: startCol}
	}
	t.addToken(TOKEN_PARAMETER, t.input[nameStart:t.pos], startPos, t.line, startCol)
	return nil
}

func (t *Tokenizer) scanRef() error {
	startPos, startLine, startCol := t.pos, t.line, t.column
	end := strings.Index(t.input[t.pos+2:], "}}")
	if end < 0 {
		return &ParseError{Message: "unclosed reference, expected }}", Position: startPos, Line: startLine, Column: startCol}
	}
	inner := t.input[t.pos+2 : t.pos+2+end]
	for stop := t.pos + 2 + end + 2; t.pos < stop; {
		t.advance()
	}
	t.addToken(TOKEN_REF, strings.TrimSpace(inner), startPos, startLine, startCol)
	return nil
}

// scanJSON captures a balanced `{...}` object as raw text.
func (t *Tokenizer) scanJSON() error {
	startPos, startLine, startCol := t.pos, t.line, t.column
	depth := 0
	var quote byte
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		switch {
		case quote != 0:
			if ch == '\\' && t.pos+1 < len(t.input) {
				t.advance()
			} else if ch == quote {
				quote = 0
			}
		case ch == '"':
			quote = ch
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
		}
		t.advance()
		if depth == 0 && quote == 0 {
			t.addToken(TOKEN_JSON, t.input[startPos:t.pos], startPos, startLine, startCol)
			return nil
		}
	}
	return &ParseError{Message: "unclosed object, expected }", Position: startPos, Line: startLine, Column: startCol}
}

func (t *Tokenizer) scanOperator() error {
	startPos, startCol := t.pos, t.column
	ch := t.input[t.pos]
	var next byte
	if t.pos+1 < len(t.input) {
		next = t.input[t.pos+1]
	}

	switch {
	case ch == '<' && next == '>':
		return t.errorHere("unexpected operator '<>', use '!='")
	case ch == '=' && next == '=':
		return t.errorHere("unexpected operator '==', use '='")
	case (ch == '<' || ch == '>' || ch == '!') && next == '=':
		t.advance()
		t.advance()
		t.addToken(TOKEN_OPERATOR, string([]byte{ch, next}), startPos, t.line, startCol)
	case ch == '<' || ch == '>':
		t.advance()
		t.addToken(TOKEN_OPERATOR, string(ch), startPos, t.line, startCol)
	case ch == '=':
		t.advance()
		t.addToken(TOKEN_EQUALS, "=", startPos, t.line, startCol)
	default:
		return t.errorHere(fmt.Sprintf("unexpected character '%c'", ch))
	}
	return nil
}

func isOperatorChar(ch byte) bool {
	return ch == '=' || ch == '!' || ch == '<' || ch == '>'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isWordStart(ch byte) bool {
	return ch == '_' || ch == '$' || ch >= utf8.RuneSelf || unicode.IsLetter(rune(ch))
}

func isWordChar(ch byte) bool {
	return isWordStart(ch) || isDigit(ch)
}
