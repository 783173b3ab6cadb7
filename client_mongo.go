package x8ql

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongobuilders "github.com/omniql-engine/x8ql/engine/builders/mongodb"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/translator"
)

// ============================================
// MONGODB IMPLEMENTATION
// ============================================

func (c *Client) execMongo(ctx context.Context, dq *translator.DocumentQuery) ([]map[string]any, error) {
	coll := c.mongoDB.Collection(dq.Collection)
	filter := dq.Filter
	if filter == nil {
		filter = bson.D{}
	}

	switch dq.Command {
	case translator.MongoFind:
		return c.mongoFind(ctx, coll, filter, dq)
	case translator.MongoFindOne:
		opts := options.FindOne()
		if len(dq.Projection) > 0 {
			opts.SetProjection(dq.Projection)
		}
		var doc bson.M
		err := coll.FindOne(ctx, filter, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []map[string]any{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("findOne error: %w", err)
		}
		return []map[string]any{mongobuilders.Document(doc)}, nil
	case translator.MongoCount:
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("count error: %w", err)
		}
		return counted(n), nil
	case translator.MongoReplaceOne:
		if _, err := coll.ReplaceOne(ctx, filter, dq.Replacement, options.Replace().SetUpsert(true)); err != nil {
			return nil, fmt.Errorf("replace error: %w", err)
		}
		return affected(1), nil
	case translator.MongoUpdateMany:
		res, err := coll.UpdateMany(ctx, filter, dq.Update)
		if err != nil {
			return nil, fmt.Errorf("update error: %w", err)
		}
		return affected(res.MatchedCount), nil
	case translator.MongoDeleteMany:
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("delete error: %w", err)
		}
		return affected(res.DeletedCount), nil
	}
	return nil, fmt.Errorf("%w: MongoDB command %s", ErrNotSupported, dq.Command)
}

func (c *Client) mongoFind(ctx context.Context, coll *mongo.Collection, filter bson.D, dq *translator.DocumentQuery) ([]map[string]any, error) {
	opts := options.Find()
	if dq.Limit != nil {
		// limit 0 is no limit in MongoDB
		if *dq.Limit == 0 {
			return []map[string]any{}, nil
		}
		opts.SetLimit(*dq.Limit)
	}
	if dq.Skip != nil {
		opts.SetSkip(*dq.Skip)
	}
	if len(dq.Sort) > 0 {
		opts.SetSort(dq.Sort)
	}
	if len(dq.Projection) > 0 {
		opts.SetProjection(dq.Projection)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find error: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("find error: %w", err)
	}
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = mongobuilders.Document(doc)
	}
	return out, nil
}

// transactMongo needs a replica set or sharded cluster.
func (c *Client) transactMongo(ctx context.Context, queries []*models.Query) ([]map[string]any, error) {
	session, err := c.mongoDB.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	res, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		var out []map[string]any
		for i, q := range queries {
			rows, err := c.exec(sc, q, nil)
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i+1, err)
			}
			out = append(out, rows...)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]map[string]any)
	return rows, nil
}
