package translator

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/x8ql/engine/accessor"
	mongobuilders "github.com/omniql-engine/x8ql/engine/builders/mongodb"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// MongoDB command names.
const (
	MongoFind       = "find"
	MongoFindOne    = "findOne"
	MongoCount      = "countDocuments"
	MongoReplaceOne = "replaceOne"
	MongoUpdateMany = "updateMany"
	MongoDeleteMany = "deleteMany"
)

// DocumentQuery is a MongoDB collection operation. Documents carry their
// item key in _id.
type DocumentQuery struct {
	Command    string
	Collection string
	Filter     bson.D
	Sort       bson.D
	Projection bson.D
	Update     bson.D
	// Replacement is the full document of a replaceOne upsert.
	Replacement bson.M
	Limit       *int64
	Skip        *int64
}

// String renders the command as relaxed extended JSON.
func (d *DocumentQuery) String() string {
	cmd := bson.D{{Key: d.Command, Value: d.Collection}}
	if d.Filter != nil {
		cmd = append(cmd, bson.E{Key: "filter", Value: d.Filter})
	}
	if len(d.Sort) > 0 {
		cmd = append(cmd, bson.E{Key: "sort", Value: d.Sort})
	}
	if len(d.Projection) > 0 {
		cmd = append(cmd, bson.E{Key: "projection", Value: d.Projection})
	}
	if d.Skip != nil {
		cmd = append(cmd, bson.E{Key: "skip", Value: *d.Skip})
	}
	if d.Limit != nil {
		cmd = append(cmd, bson.E{Key: "limit", Value: *d.Limit})
	}
	if d.Update != nil {
		cmd = append(cmd, bson.E{Key: "update", Value: d.Update})
	}
	if d.Replacement != nil {
		cmd = append(cmd, bson.E{Key: "replacement", Value: d.Replacement}, bson.E{Key: "upsert", Value: true})
	}
	data, err := bson.MarshalExtJSON(cmd, false, false)
	if err != nil {
		return fmt.Sprintf("%s %s: %v", d.Command, d.Collection, err)
	}
	return string(data)
}

// TranslateMongoDB lowers q onto a MongoDB command.
func TranslateMongoDB(q *models.Query, opts Options) (*DocumentQuery, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: missing collection", models.ErrInvalidStatement)
	}
	out := &DocumentQuery{Collection: opts.CollectionName(q.Collection)}

	filter, err := mongoFilter(q)
	if err != nil {
		return nil, fmt.Errorf("MongoDB: %w", err)
	}
	out.Filter = filter

	switch q.Operation {
	case mapping.VerbQuery:
		out.Command = MongoFind
		sort, present, err := mongobuilders.BuildSort(q.OrderBy)
		if err != nil {
			return nil, fmt.Errorf("MongoDB: %w", err)
		}
		out.Sort = sort
		out.Filter = mongobuilders.And(out.Filter, present)
		if out.Projection, err = mongobuilders.BuildProjection(q.Select); err != nil {
			return nil, fmt.Errorf("MongoDB: %w", err)
		}
		out.Limit, out.Skip = q.Limit, q.Offset
	case mapping.VerbGet:
		out.Command = MongoFindOne
		if out.Projection, err = mongobuilders.BuildProjection(q.Select); err != nil {
			return nil, fmt.Errorf("MongoDB: %w", err)
		}
	case mapping.VerbCount:
		out.Command = MongoCount
	case mapping.VerbPut:
		if !accessor.IsObject(q.Value) {
			return nil, fmt.Errorf("%w: put value must be an object, got %T", models.ErrInvalidStatement, q.Value)
		}
		out.Command = MongoReplaceOne
		if out.Replacement, err = replacement(q); err != nil {
			return nil, err
		}
	case mapping.VerbUpdate:
		out.Command = MongoUpdateMany
		if out.Update, err = mongobuilders.BuildUpdate(q.Update); err != nil {
			return nil, fmt.Errorf("MongoDB: %w", err)
		}
	case mapping.VerbDelete:
		out.Command = MongoDeleteMany
	default:
		return nil, fmt.Errorf("%w: verb %s", models.ErrNotSupported, q.Operation)
	}
	return out, nil
}

// mongoFilter combines the key and the where clause.
func mongoFilter(q *models.Query) (bson.D, error) {
	where, err := mongobuilders.BuildFilter(q.Where)
	if err != nil {
		return nil, err
	}
	if !q.HasKey() {
		return where, nil
	}
	key := bson.D{{Key: mongobuilders.KeyField, Value: q.KeyString()}}
	return mongobuilders.And(key, where), nil
}

// replacement normalizes the put value through JSON, so records and maps
// store alike.
func replacement(q *models.Query) (bson.M, error) {
	data, err := json.Marshal(q.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: put value: %v", models.ErrInvalidStatement, err)
	}
	v, err := accessor.DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: put value must be an object", models.ErrInvalidStatement)
	}
	doc[mongobuilders.KeyField] = q.KeyString()
	return bson.M(doc), nil
}
