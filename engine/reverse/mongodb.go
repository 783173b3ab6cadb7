package reverse

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/x8ql/engine/ast"
	mongobuilders "github.com/omniql-engine/x8ql/engine/builders/mongodb"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// ENTRY POINT
// ============================================================================

// MongoDBToQuery converts an extended JSON command document such as
// {"find": "users", "filter": {...}, "sort": {...}, "limit": 10}.
func MongoDBToQuery(command string) (*models.Query, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(command), false, &cmd); err != nil {
		return nil, fmt.Errorf("%w: invalid extended JSON: %v", ErrParseError, err)
	}
	if len(cmd) == 0 {
		return nil, ErrEmptyQuery
	}
	collection, ok := cmd[0].Value.(string)
	if !ok || collection == "" {
		return nil, fmt.Errorf("%w: %s needs a collection name", ErrParseError, cmd[0].Key)
	}
	args := cmd.Map()

	q := &models.Query{Collection: collection}
	switch cmd[0].Key {
	case "find":
		q.Operation = mapping.VerbQuery
	case "findOne":
		q.Operation = mapping.VerbGet
	case "countDocuments", "count":
		q.Operation = mapping.VerbCount
	case "deleteMany":
		q.Operation = mapping.VerbDelete
	case "updateMany":
		q.Operation = mapping.VerbUpdate
	case "replaceOne":
		q.Operation = mapping.VerbPut
	default:
		return nil, fmt.Errorf("%w: MongoDB command %s", ErrNotSupported, cmd[0].Key)
	}

	filter, err := mongoDocument(args["filter"], "filter")
	if err != nil {
		return nil, err
	}
	if q.Operation == mapping.VerbGet || q.Operation == mapping.VerbPut {
		q.Key, filter = takeKey(filter)
		if q.Operation == mapping.VerbGet && q.Key == nil {
			q.Operation = mapping.VerbQuery
			one := int64(1)
			q.Limit = &one
		}
	}
	if q.Operation != mapping.VerbPut {
		if q.Where, err = mongoFilter(filter); err != nil {
			return nil, err
		}
	} else if len(filter) > 0 {
		return nil, fmt.Errorf("%w: replaceOne filters other than _id", ErrNotSupported)
	}

	if q.OrderBy, err = mongoSort(args["sort"]); err != nil {
		return nil, err
	}
	if q.Select, err = mongoProjection(args["projection"]); err != nil {
		return nil, err
	}
	if v, ok := args["limit"]; ok {
		if q.Limit, err = mongoCount(v, "limit"); err != nil {
			return nil, err
		}
		// limit 0 is no limit in MongoDB
		if q.Limit != nil && *q.Limit == 0 {
			q.Limit = nil
		}
	}
	if v, ok := args["skip"]; ok {
		if q.Offset, err = mongoCount(v, "skip"); err != nil {
			return nil, err
		}
	}

	switch q.Operation {
	case mapping.VerbUpdate:
		doc, err := mongoDocument(args["update"], "update")
		if err != nil {
			return nil, err
		}
		if q.Update, err = mongoUpdate(doc); err != nil {
			return nil, err
		}
	case mapping.VerbPut:
		doc, err := mongoDocument(args["replacement"], "replacement")
		if err != nil {
			return nil, err
		}
		value := make(map[string]any, len(doc))
		for _, e := range doc {
			if e.Key == mongobuilders.KeyField {
				if q.Key == nil {
					q.Key = mongoValue(e.Value)
				}
				continue
			}
			value[e.Key] = mongoValue(e.Value)
		}
		q.Value = value
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// MongoDBToWhere converts a filter document.
func MongoDBToWhere(filter string) (ast.Expr, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(filter), false, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid extended JSON: %v", ErrParseError, err)
	}
	return mongoFilter(doc)
}

// takeKey pulls a top level {_id: <scalar>} out of filter.
func takeKey(filter bson.D) (any, bson.D) {
	for i, e := range filter {
		if e.Key != mongobuilders.KeyField {
			continue
		}
		switch v := mongoValue(e.Value).(type) {
		case string, int64, float64:
			rest := append(bson.D{}, filter[:i]...)
			return v, append(rest, filter[i+1:]...)
		}
	}
	return nil, filter
}

// ============================================================================
// FILTERS
// ============================================================================

func mongoFilter(doc bson.D) (ast.Expr, error) {
	var terms []ast.Expr
	for _, e := range doc {
		var (
			term ast.Expr
			err  error
		)
		switch e.Key {
		case "$and", "$or", "$nor":
			term, err = mongoLogical(e.Key, e.Value)
		case "$expr", "$where", "$text":
			err = fmt.Errorf("%w: %s", ErrNotSupported, e.Key)
		default:
			if strings.HasPrefix(e.Key, "$") {
				err = fmt.Errorf("%w: top level %s", ErrNotSupported, e.Key)
				break
			}
			term, err = mongoField(e.Key, e.Value)
		}
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return join(terms, false), nil
}

func mongoLogical(op string, v any) (ast.Expr, error) {
	items, ok := v.(bson.A)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("%w: %s needs a non-empty array", ErrParseError, op)
	}
	terms := make([]ast.Expr, 0, len(items))
	for _, item := range items {
		doc, ok := item.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%w: %s items must be documents", ErrParseError, op)
		}
		term, err := mongoFilter(doc)
		if err != nil {
			return nil, err
		}
		if term == nil {
			// an empty document matches everything
			term = literal(true)
		}
		terms = append(terms, term)
	}
	switch op {
	case "$and":
		return join(terms, false), nil
	case "$nor":
		return &ast.Not{Expr: join(terms, true)}, nil
	}
	return join(terms, true), nil
}

// mongoField converts {path: value} and {path: {$op: value, ...}}.
func mongoField(path string, v any) (ast.Expr, error) {
	f := field(path)
	if re, ok := v.(primitive.Regex); ok {
		// legacy {$regex, $options} pairs decode as a regex value
		return mongoOperator(f, "$regex", re, "")
	}
	ops, isOps := operatorDocument(v)
	if !isOps {
		value := mongoValue(v)
		if _, isMap := value.(map[string]any); isMap {
			return nil, fmt.Errorf("%w: equality against a document", ErrNotSupported)
		}
		return compare(f, mapping.OpEQ, literal(value)), nil
	}

	options := ""
	if o, ok := ops.Map()["$options"].(string); ok {
		options = o
	}
	var terms []ast.Expr
	for _, e := range ops {
		if e.Key == "$options" {
			continue
		}
		term, err := mongoOperator(f, e.Key, e.Value, options)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return join(terms, false), nil
}

func operatorDocument(v any) (bson.D, bool) {
	doc, ok := v.(bson.D)
	if !ok || len(doc) == 0 {
		return nil, false
	}
	return doc, strings.HasPrefix(doc[0].Key, "$")
}

func mongoOperator(f *ast.Field, op string, v any, options string) (ast.Expr, error) {
	switch op {
	case "$in", "$nin":
		items, err := mongoList(v, op)
		if err != nil {
			return nil, err
		}
		return in(f, items, op == "$nin"), nil
	case "$exists":
		defined, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: $exists needs a boolean", ErrParseError)
		}
		if defined {
			return call(mapping.FuncIsDefined, f), nil
		}
		return call(mapping.FuncIsNotDefined, f), nil
	case "$regex":
		pattern, ci := "", strings.Contains(options, "i")
		switch r := v.(type) {
		case string:
			pattern = r
		case primitive.Regex:
			pattern = r.Pattern
			ci = ci || strings.Contains(r.Options, "i")
		default:
			return nil, fmt.Errorf("%w: $regex needs a string", ErrParseError)
		}
		return regexMatch(f, literal(pattern), ci, false)
	case "$type":
		return mongoType(f, v)
	case "$not":
		doc, ok := operatorDocument(v)
		if !ok {
			return nil, fmt.Errorf("%w: $not needs an operator document", ErrParseError)
		}
		inner, err := mongoField(f.Path, doc)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Expr: inner}, nil
	case "$elemMatch":
		return mongoElemMatch(f, v)
	case "$size":
		n := mongoValue(v)
		if _, ok := n.(int64); !ok {
			return nil, fmt.Errorf("%w: $size needs an integer", ErrParseError)
		}
		return compare(call(mapping.FuncArrayLength, f), mapping.OpEQ, literal(n)), nil
	}
	qlOp, err := operatorFor(op, "MongoDB")
	if err != nil {
		return nil, err
	}
	return compare(f, qlOp, literal(mongoValue(v))), nil
}

func mongoType(f *ast.Field, v any) (ast.Expr, error) {
	var native string
	switch t := v.(type) {
	case string:
		native = t
	case bson.A:
		if len(t) > 0 {
			native, _ = t[0].(string)
		}
	}
	for _, valueType := range mapping.ValueTypes {
		names, _ := mapping.NativeTypes("MongoDB", valueType)
		for _, name := range names {
			if name == native {
				return call(mapping.FuncIsType, f, literal(valueType)), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: $type %v", ErrNotSupported, v)
}

// mongoElemMatch reads the two $elemMatch shapes the builders emit.
func mongoElemMatch(f *ast.Field, v any) (ast.Expr, error) {
	doc, ok := operatorDocument(v)
	if !ok || len(doc) != 1 {
		return nil, fmt.Errorf("%w: $elemMatch other than $eq or $in", ErrNotSupported)
	}
	switch doc[0].Key {
	case "$eq":
		return call(mapping.FuncArrayContains, f, literal(mongoValue(doc[0].Value))), nil
	case "$in":
		items, err := mongoList(doc[0].Value, "$in")
		if err != nil {
			return nil, err
		}
		return call(mapping.FuncArrayContainsAny, f, &ast.List{Items: items}), nil
	}
	return nil, fmt.Errorf("%w: $elemMatch %s", ErrNotSupported, doc[0].Key)
}

func mongoList(v any, op string) ([]ast.Expr, error) {
	arr, ok := v.(bson.A)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs an array", ErrParseError, op)
	}
	items := make([]ast.Expr, 0, len(arr))
	for _, item := range arr {
		items = append(items, literal(mongoValue(item)))
	}
	return items, nil
}

// ============================================================================
// SORT, PROJECTION, PAGING
// ============================================================================

func mongoSort(v any) (*ast.OrderBy, error) {
	if v == nil {
		return nil, nil
	}
	doc, err := mongoDocument(v, "sort")
	if err != nil || len(doc) == 0 {
		return nil, err
	}
	ob := &ast.OrderBy{}
	for _, e := range doc {
		dir := ast.Asc
		switch mongoValue(e.Value) {
		case int64(1), float64(1):
		case int64(-1), float64(-1):
			dir = ast.Desc
		default:
			return nil, fmt.Errorf("%w: sort direction for %s", ErrNotSupported, e.Key)
		}
		ob.Terms = append(ob.Terms, ast.OrderByTerm{Field: e.Key, Direction: dir})
	}
	return ob, nil
}

func mongoProjection(v any) (*ast.Select, error) {
	if v == nil {
		return nil, nil
	}
	doc, err := mongoDocument(v, "projection")
	if err != nil {
		return nil, err
	}
	sel := &ast.Select{}
	for _, e := range doc {
		switch x := mongoValue(e.Value).(type) {
		case string:
			if !strings.HasPrefix(x, "$") {
				return nil, fmt.Errorf("%w: projection %s", ErrNotSupported, e.Key)
			}
			sel.Terms = append(sel.Terms, ast.SelectTerm{Field: x[1:], Alias: e.Key})
		case int64, float64, bool:
			included := x != int64(0) && x != float64(0) && x != false
			if e.Key == mongobuilders.KeyField && !included {
				continue
			}
			if !included {
				return nil, fmt.Errorf("%w: exclusion projections", ErrNotSupported)
			}
			sel.Terms = append(sel.Terms, ast.SelectTerm{Field: e.Key})
		default:
			return nil, fmt.Errorf("%w: projection %s", ErrNotSupported, e.Key)
		}
	}
	if len(sel.Terms) == 0 {
		return nil, nil
	}
	return sel, nil
}

func mongoCount(v any, name string) (*int64, error) {
	switch n := mongoValue(v).(type) {
	case int64:
		if n >= 0 {
			return &n, nil
		}
	case float64:
		if n >= 0 && n == float64(int64(n)) {
			i := int64(n)
			return &i, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrParseError, name)
}

// ============================================================================
// UPDATES
// ============================================================================

func mongoUpdate(doc bson.D) (*ast.Update, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrParseError)
	}
	update := ast.NewUpdate()
	for _, group := range doc {
		fields, err := mongoDocument(group.Value, group.Key)
		if err != nil {
			return nil, err
		}
		for _, e := range fields {
			if err := mongoUpdateField(update, group.Key, e.Key, e.Value); err != nil {
				return nil, err
			}
		}
	}
	return update, nil
}

func mongoUpdateField(update *ast.Update, op, path string, v any) error {
	switch op {
	case "$set":
		update.Put(path, mongoValue(v))
	case "$unset":
		update.Delete(path)
	case "$inc":
		delta := mongoValue(v)
		switch delta.(type) {
		case int64, float64:
		default:
			return fmt.Errorf("%w: $inc needs a number", ErrParseError)
		}
		update.Increment(path, delta)
	case "$rename":
		dst, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: $rename needs a field name", ErrParseError)
		}
		update.Move(dst, path)
	case "$pop":
		switch mongoValue(v) {
		case int64(1):
			update.Delete(path + ".-")
		case int64(-1):
			update.Delete(path + ".0")
		default:
			return fmt.Errorf("%w: $pop needs 1 or -1", ErrParseError)
		}
	case "$addToSet":
		items, err := eachOf(v)
		if err != nil {
			return err
		}
		update.ArrayUnion(path, items)
	case "$pullAll":
		items, ok := mongoValue(v).([]any)
		if !ok {
			return fmt.Errorf("%w: $pullAll needs an array", ErrParseError)
		}
		update.ArrayRemove(path, items)
	case "$push":
		return mongoPush(update, path, v)
	default:
		return fmt.Errorf("%w: update operator %s", ErrNotSupported, op)
	}
	return nil
}

// mongoPush reads {$each: [v], $position: n} as one insert at path.n.
func mongoPush(update *ast.Update, path string, v any) error {
	doc, isOps := operatorDocument(v)
	if !isOps {
		update.Insert(path+".-", mongoValue(v))
		return nil
	}
	args := doc.Map()
	each, ok := mongoValue(args["$each"]).([]any)
	if !ok || len(each) != 1 || len(doc) > 2 {
		return fmt.Errorf("%w: $push with more than one $each item", ErrNotSupported)
	}
	target := path + ".-"
	if pos, ok := args["$position"]; ok {
		n, ok := mongoValue(pos).(int64)
		if !ok || n < 0 {
			return fmt.Errorf("%w: $position must be a non-negative integer", ErrParseError)
		}
		target = fmt.Sprintf("%s.%d", path, n)
	}
	update.Insert(target, each[0])
	return nil
}

func eachOf(v any) ([]any, error) {
	if doc, isOps := operatorDocument(v); isOps {
		if doc[0].Key != "$each" {
			return nil, fmt.Errorf("%w: %s", ErrNotSupported, doc[0].Key)
		}
		items, ok := mongoValue(doc[0].Value).([]any)
		if !ok {
			return nil, fmt.Errorf("%w: $each needs an array", ErrParseError)
		}
		return items, nil
	}
	return []any{mongoValue(v)}, nil
}

// ============================================================================
// VALUES
// ============================================================================

func mongoDocument(v any, name string) (bson.D, error) {
	if v == nil {
		return nil, nil
	}
	doc, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a document", ErrParseError, name)
	}
	return doc, nil
}

func mongoValue(v any) any {
	return mongobuilders.Plain(v)
}
