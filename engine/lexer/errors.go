package lexer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/omniql-engine/x8ql/mapping"
)

// ParseError is the single syntax error kind. Line and Column are 1-based.
type ParseError struct {
	Message  string
	Position int
	Line     int
	Column   int
	Token    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d %s", e.Line, e.Column, e.Message)
}

// NewParseError creates a new parse error
func NewParseError(token Token, message string) *ParseError {
	return &ParseError{
		Message:  message,
		Position: token.Position,
		Line:     token.Line,
		Column:   token.Column,
		Token:    token.Value,
	}
}

// NewUnknownTokenError creates error with suggestion
func NewUnknownTokenError(token Token, expected string) *ParseError {
	msg := fmt.Sprintf("unexpected %s, expected %s", token.Text(), expected)
	if suggestion := SuggestSimilar(token.Value); suggestion != "" && token.Type == TOKEN_IDENTIFIER {
		msg += fmt.Sprintf(". Did you mean '%s'?", suggestion)
	}
	return NewParseError(token, msg)
}

// keywords are the words with a grammar meaning, checked in this order.
var keywords = []string{"and", "or", "not", "in", "like", "between", "as", "asc", "desc", "by", "end", "null", "true", "false"}

// SuggestSimilar finds the closest keyword, update operation or builtin
// function within two edits of unknown. It returns "" when nothing is close.
func SuggestSimilar(unknown string) string {
	unknown = strings.ToLower(unknown)
	if unknown == "" {
		return ""
	}

	var bestMatch string
	bestDistance := 999
	maxDistance := 2 // Only suggest if within 2 edits

	consider := func(candidate string) {
		if candidate == unknown {
			return
		}
		dist := levenshtein(unknown, candidate)
		// Short words match almost anything within two edits.
		limit := maxDistance
		if len(candidate) <= 3 {
			limit = 1
		}
		if dist <= limit && dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	for _, kw := range keywords {
		consider(kw)
	}
	for _, clause := range sortedClauses() {
		consider(strings.ToLower(strings.Fields(clause)[0]))
	}
	for _, op := range mapping.UpdateOperations {
		consider(op)
	}
	for _, verb := range sortedVerbs() {
		consider(verb)
	}
	for _, fn := range sortedFunctions() {
		consider(fn)
	}

	return bestMatch
}

// levenshtein calculates edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func sortedVerbs() []string {
	verbs := make([]string, 0, len(mapping.OperationGroups))
	for verb := range mapping.OperationGroups {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)
	return verbs
}

func sortedFunctions() []string {
	names := make([]string, 0, len(mapping.BuiltinFunctions))
	for name := range mapping.BuiltinFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedClauses() []string {
	clauses := make([]string, 0, len(mapping.QueryClauses))
	for clause := range mapping.QueryClauses {
		clauses = append(clauses, clause)
	}
	sort.Strings(clauses)
	return clauses
}
