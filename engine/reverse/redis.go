package reverse

import (
	"fmt"
	"strings"

	redisbuilders "github.com/omniql-engine/x8ql/engine/builders/redis"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// RedisToQuery converts the key commands of a Redis plan:
//
//	GET users:42                   get users key "42"
//	DEL users:42                   delete users key "42"
//	SET users:42 {"name":"ann"}    put users key "42"
//	SCAN 0 MATCH users:* COUNT 100 query users
//
// Only the first command is read. Comment lines starting with `--` are
// skipped, so residual filters in plan output are not recovered.
func RedisToQuery(command string) (*models.Query, error) {
	line := firstCommand(command)
	if line == "" {
		return nil, ErrEmptyQuery
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var (
		q   *models.Query
		err error
	)
	switch strings.ToUpper(name) {
	case "GET":
		q, err = redisKeyed(mapping.VerbGet, rest)
	case "DEL":
		if strings.ContainsAny(rest, " \t") {
			return nil, fmt.Errorf("%w: DEL of several keys", ErrNotSupported)
		}
		q, err = redisKeyed(mapping.VerbDelete, rest)
	case "SET":
		key, doc, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, fmt.Errorf("%w: SET needs a key and a value", ErrParseError)
		}
		if q, err = redisKeyed(mapping.VerbPut, key); err != nil {
			return nil, err
		}
		if q.Value, err = redisbuilders.Decode(strings.TrimSpace(doc)); err != nil {
			return nil, fmt.Errorf("%w: SET value: %v", ErrParseError, err)
		}
	case "SCAN":
		q, err = redisScan(strings.Fields(rest))
	default:
		return nil, fmt.Errorf("%w: Redis command %s", ErrNotSupported, name)
	}
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func firstCommand(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return line
	}
	return ""
}

// redisKeyed splits `collection:key`. The first separator wins, so keys
// may contain it.
func redisKeyed(verb, redisKey string) (*models.Query, error) {
	collection, key, ok := strings.Cut(redisKey, redisbuilders.Separator)
	if !ok || collection == "" || key == "" {
		return nil, fmt.Errorf("%w: key %q is not collection%skey", ErrParseError, redisKey, redisbuilders.Separator)
	}
	return &models.Query{Operation: verb, Collection: collection, Key: key}, nil
}

func redisScan(args []string) (*models.Query, error) {
	pattern := ""
	for i := 1; i < len(args)-1; i++ {
		if strings.EqualFold(args[i], "MATCH") {
			pattern = args[i+1]
		}
	}
	prefix, ok := strings.CutSuffix(pattern, redisbuilders.Separator+"*")
	if !ok || prefix == "" || hasGlob(prefix) {
		return nil, fmt.Errorf("%w: SCAN needs MATCH collection%s*", ErrNotSupported, redisbuilders.Separator)
	}
	return &models.Query{Operation: mapping.VerbQuery, Collection: unescapeGlob(prefix)}, nil
}

// hasGlob reports an unescaped glob metacharacter.
func hasGlob(s string) bool {
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*' || r == '?' || r == '[':
			return true
		}
	}
	return false
}

func unescapeGlob(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}
