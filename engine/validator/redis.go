package validator

import (
	"fmt"
	"strings"
)

// redisArity is the minimum argument count of the commands plans use.
var redisArity = map[string]int{
	"GET":    1,
	"SET":    2,
	"DEL":    1,
	"MGET":   1,
	"SCAN":   1,
	"EXISTS": 1,
	"KEYS":   1,
}

// ValidateRedis validates Redis command syntax. Multi line input is one
// command per line; `--` lines are comments.
func ValidateRedis(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("empty Redis command")
	}
	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		parts := strings.Fields(line)
		command := strings.ToUpper(parts[0])
		arity, ok := redisArity[command]
		if !ok {
			return fmt.Errorf("unknown Redis command: %s", command)
		}
		if len(parts)-1 < arity {
			return fmt.Errorf("%s needs at least %d argument(s)", command, arity)
		}
	}
	return nil
}
