package validator

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// mongoCommands are the command names a MongoDB query document may start
// with.
var mongoCommands = map[string]bool{
	"find":           true,
	"findOne":        true,
	"countDocuments": true,
	"insertOne":      true,
	"insertMany":     true,
	"replaceOne":     true,
	"updateOne":      true,
	"updateMany":     true,
	"deleteOne":      true,
	"deleteMany":     true,
	"aggregate":      true,
}

// ValidateMongoDB validates a command document in extended JSON, as
// `{"find": "users", "filter": {...}}`.
func ValidateMongoDB(query string) error {
	_, err := parseMongoCommand(query)
	return err
}

// ValidateMongoDBWithDetails returns detailed validation result
func ValidateMongoDBWithDetails(query string) (*ValidationResult, error) {
	_, err := parseMongoCommand(query)
	return result(err), nil
}

func parseMongoCommand(query string) (bson.D, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty MongoDB command")
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &doc); err != nil {
		return nil, fmt.Errorf("invalid extended JSON: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("empty MongoDB command")
	}
	if !mongoCommands[doc[0].Key] {
		return nil, fmt.Errorf("unknown MongoDB command: %s", doc[0].Key)
	}
	if _, ok := doc[0].Value.(string); !ok {
		return nil, fmt.Errorf("%s needs a collection name", doc[0].Key)
	}
	return doc, nil
}

// ValidateMongoDBDocument validates a BSON document map
func ValidateMongoDBDocument(doc map[string]any) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	return nil
}
