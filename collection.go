package mongolite

import (
	"fmt"
	"strings"

	"github.com/mongolite/mongolite/internal/pipeline"
	"github.com/mongolite/mongolite/internal/query"
	"github.com/mongolite/mongolite/internal/store"
	"github.com/mongolite/mongolite/internal/update"
	"github.com/mongolite/mongolite/pkg/document"
	"github.com/xeipuuv/gojsonschema"
)

// Collection composes the query matcher, update applier and aggregation
// pipeline over one collection's document store. Every read is a full
// scan; every write goes back through the store row by row.
type Collection struct {
	name   string
	store  store.Store
	schema *gojsonschema.Schema
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// SetSchema assigns a JSON schema that every inserted document must
// satisfy. Pass the schema as a JSON string; it replaces any previous
// schema.
func (c *Collection) SetSchema(schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("invalid json schema: %w", err)
	}
	c.schema = schema
	return nil
}

func (c *Collection) validate(data []byte) error {
	if c.schema == nil {
		return nil
	}
	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, result.Errors()[0])
	}
	return nil
}

// row is one scanned document paired with its store key.
type row struct {
	key string
	doc *document.Document
}

func (c *Collection) scan() ([]row, error) {
	stored, err := c.store.Scan()
	if err != nil {
		return nil, err
	}
	rows := make([]row, 0, len(stored))
	for _, r := range stored {
		doc, err := document.Parse(r.Data)
		if err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", r.Key, err)
		}
		rows = append(rows, row{key: r.Key, doc: doc})
	}
	return rows, nil
}

// firstMatch scans for the first document satisfying filter. The third
// return is false when nothing matched.
func (c *Collection) firstMatch(filter *document.Document) (row, bool, error) {
	rows, err := c.scan()
	if err != nil {
		return row{}, false, err
	}
	for _, r := range rows {
		matched, err := query.Match(r.doc, filter)
		if err != nil {
			return row{}, false, err
		}
		if matched {
			return r, true, nil
		}
	}
	return row{}, false, nil
}

// InsertOne validates, assigns an _id if absent and stores the
// document. The input document is not mutated.
func (c *Collection) InsertOne(doc *document.Document) (*InsertOneResult, error) {
	if doc == nil {
		doc = document.New()
	}
	stored := document.CloneDocument(doc)

	id, err := ensureID(stored)
	if err != nil {
		return nil, err
	}

	data, err := stored.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := c.validate(data); err != nil {
		return nil, err
	}
	if err := c.store.Insert(id, data); err != nil {
		return nil, err
	}
	return &InsertOneResult{InsertedID: id}, nil
}

// InsertMany inserts documents one by one; the first failure aborts and
// leaves earlier inserts in place.
func (c *Collection) InsertMany(docs []*document.Document) ([]*InsertOneResult, error) {
	results := make([]*InsertOneResult, 0, len(docs))
	for _, doc := range docs {
		res, err := c.InsertOne(doc)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Find returns a cursor over every document matching filter.
func (c *Collection) Find(filter *document.Document, opts FindOptions) (*Cursor, error) {
	rows, err := c.scan()
	if err != nil {
		return nil, err
	}
	var matched []*document.Document
	for _, r := range rows {
		ok, err := query.Match(r.doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r.doc)
		}
	}
	return newCursor(matched, opts), nil
}

// FindOne returns the first matching document, or ErrDocumentNotFound.
func (c *Collection) FindOne(filter *document.Document, opts FindOptions) (*document.Document, error) {
	opts.Limit = 1
	cur, err := c.Find(filter, opts)
	if err != nil {
		return nil, err
	}
	docs, err := cur.All()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs[0], nil
}

// CountDocuments reports how many documents match filter.
func (c *Collection) CountDocuments(filter *document.Document) (int, error) {
	cur, err := c.Find(filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	return cur.Count()
}

// Distinct collects the unique values at a dotted path across every
// matching document, flattening arrays, in first-seen order. Null and
// missing values are skipped.
func (c *Collection) Distinct(key string, filter *document.Document) ([]any, error) {
	rows, err := c.scan()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []any
	add := func(v any) {
		if v == nil {
			return
		}
		ck := document.Canonical(v)
		if !seen[ck] {
			seen[ck] = true
			out = append(out, v)
		}
	}

	for _, r := range rows {
		matched, err := query.Match(r.doc, filter)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		val, ok := document.Get(r.doc, key)
		if !ok {
			continue
		}
		if arr, isArr := val.([]any); isArr {
			for _, item := range arr {
				add(item)
			}
		} else {
			add(val)
		}
	}
	return out, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(filter *document.Document) (*DeleteResult, error) {
	r, found, err := c.firstMatch(filter)
	if err != nil {
		return nil, err
	}
	if !found {
		return &DeleteResult{}, nil
	}
	if err := c.store.Delete(r.key); err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: 1}, nil
}

// DeleteMany removes every document matching filter. Deletes are issued
// row by row; a mid-scan failure leaves earlier deletes in place.
func (c *Collection) DeleteMany(filter *document.Document) (*DeleteResult, error) {
	rows, err := c.scan()
	if err != nil {
		return nil, err
	}
	deleted := 0
	for _, r := range rows {
		matched, err := query.Match(r.doc, filter)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		if err := c.store.Delete(r.key); err != nil {
			return nil, err
		}
		deleted++
	}
	return &DeleteResult{DeletedCount: deleted}, nil
}

// UpdateOne applies the update operators to the first document matching
// filter. With upsert, a missing match seeds a fresh document from
// $setOnInsert plus the remaining operators and inserts it.
func (c *Collection) UpdateOne(filter, upd *document.Document, upsert bool) (*UpdateResult, error) {
	r, found, err := c.firstMatch(filter)
	if err != nil {
		return nil, err
	}
	if found {
		newDoc, err := update.Apply(r.doc, upd, false)
		if err != nil {
			return nil, err
		}
		if err := c.writeBack(r.key, newDoc); err != nil {
			return nil, err
		}
		return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	if !upsert {
		return &UpdateResult{}, nil
	}
	return c.upsert(upd)
}

// upsert seeds a document with a generated _id, applies $setOnInsert
// first and the remaining operators after, then inserts the result.
func (c *Collection) upsert(upd *document.Document) (*UpdateResult, error) {
	seed := document.New()
	seed.Set("_id", newObjectID())

	rest := document.New()
	for _, op := range upd.Keys() {
		arg, _ := upd.Get(op)
		if op == "$setOnInsert" {
			fields, ok := arg.(*document.Document)
			if !ok {
				return nil, fmt.Errorf("%w: $setOnInsert requires a document argument", ErrInvalidUpdate)
			}
			for _, k := range fields.Keys() {
				v, _ := fields.Get(k)
				document.Set(seed, k, document.Clone(v))
			}
			continue
		}
		rest.Set(op, arg)
	}

	inserted, err := update.Apply(seed, rest, true)
	if err != nil {
		return nil, err
	}
	res, err := c.InsertOne(inserted)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{UpsertedID: res.InsertedID}, nil
}

// UpdateMany applies the update operators to every matching document.
// A write is issued per match even when nothing changed; ModifiedCount
// counts only real changes. Writes are not atomic across matches: the
// first failure aborts the scan with earlier writes already applied.
func (c *Collection) UpdateMany(filter, upd *document.Document) (*UpdateResult, error) {
	rows, err := c.scan()
	if err != nil {
		return nil, err
	}
	res := &UpdateResult{}
	for _, r := range rows {
		matched, err := query.Match(r.doc, filter)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		res.MatchedCount++
		newDoc, err := update.Apply(r.doc, upd, false)
		if err != nil {
			return nil, err
		}
		if !document.Equal(newDoc, r.doc) {
			res.ModifiedCount++
		}
		if err := c.writeBack(r.key, newDoc); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ReplaceOne swaps the first matching document for the replacement,
// which must not contain operator keys. The original _id is preserved
// when the replacement omits one.
func (c *Collection) ReplaceOne(filter, replacement *document.Document, upsert bool) (*UpdateResult, error) {
	if err := checkReplacement(replacement); err != nil {
		return nil, err
	}
	r, found, err := c.firstMatch(filter)
	if err != nil {
		return nil, err
	}
	if found {
		rep := withOriginalID(replacement, r.doc)
		if err := c.writeBack(r.key, rep); err != nil {
			return nil, err
		}
		return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	if !upsert {
		return &UpdateResult{}, nil
	}
	res, err := c.InsertOne(replacement)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{UpsertedID: res.InsertedID}, nil
}

// FindOneAndUpdate updates the first match and returns its before- or
// after-image per returnDocument (ReturnBefore or ReturnAfter).
func (c *Collection) FindOneAndUpdate(filter, upd *document.Document, returnDocument string) (*document.Document, error) {
	r, found, err := c.firstMatch(filter)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDocumentNotFound
	}
	newDoc, err := update.Apply(r.doc, upd, false)
	if err != nil {
		return nil, err
	}
	if err := c.writeBack(r.key, newDoc); err != nil {
		return nil, err
	}
	if returnDocument == ReturnBefore {
		return r.doc, nil
	}
	return newDoc, nil
}

// FindOneAndDelete deletes the first match and returns it.
func (c *Collection) FindOneAndDelete(filter *document.Document) (*document.Document, error) {
	r, found, err := c.firstMatch(filter)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDocumentNotFound
	}
	if err := c.store.Delete(r.key); err != nil {
		return nil, err
	}
	return r.doc, nil
}

// FindOneAndReplace replaces the first match and returns its before- or
// after-image per returnDocument.
func (c *Collection) FindOneAndReplace(filter, replacement *document.Document, returnDocument string) (*document.Document, error) {
	if err := checkReplacement(replacement); err != nil {
		return nil, err
	}
	r, found, err := c.firstMatch(filter)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDocumentNotFound
	}
	rep := withOriginalID(replacement, r.doc)
	if err := c.writeBack(r.key, rep); err != nil {
		return nil, err
	}
	if returnDocument == ReturnBefore {
		return r.doc, nil
	}
	return rep, nil
}

// Aggregate runs an aggregation pipeline over the whole collection.
func (c *Collection) Aggregate(stages []*document.Document) ([]*document.Document, error) {
	rows, err := c.scan()
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	return pipeline.Run(docs, stages)
}

// Transaction runs fn inside one store transaction. Every write fn
// issues through this collection is committed together when fn returns
// nil and rolled back when it returns an error.
func (c *Collection) Transaction(fn func() error) error {
	if err := c.store.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := c.store.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return c.store.Commit()
}

// BulkWrite executes an ordered batch of write models inside one store
// transaction. Any failure rolls back the whole batch.
func (c *Collection) BulkWrite(models []WriteModel) (*BulkWriteResult, error) {
	if err := c.store.Begin(); err != nil {
		return nil, err
	}

	res := &BulkWriteResult{}
	for _, m := range models {
		var err error
		switch t := m.(type) {
		case InsertOneModel:
			_, err = c.InsertOne(t.Document)
			if err == nil {
				res.InsertedCount++
			}
		case UpdateOneModel:
			var ur *UpdateResult
			ur, err = c.UpdateOne(t.Filter, t.Update, t.Upsert)
			if err == nil {
				res.MatchedCount += ur.MatchedCount
				res.ModifiedCount += ur.ModifiedCount
				if ur.UpsertedID != "" {
					res.UpsertedIDs = append(res.UpsertedIDs, ur.UpsertedID)
				}
			}
		case DeleteOneModel:
			var dr *DeleteResult
			dr, err = c.DeleteOne(t.Filter)
			if err == nil {
				res.DeletedCount += dr.DeletedCount
			}
		default:
			err = fmt.Errorf("unsupported bulk write model %T", m)
		}
		if err != nil {
			if rbErr := c.store.Rollback(); rbErr != nil {
				return nil, fmt.Errorf("bulk write failed: %w (rollback: %v)", err, rbErr)
			}
			return nil, fmt.Errorf("bulk write failed: %w", err)
		}
	}

	if err := c.store.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Collection) writeBack(key string, doc *document.Document) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return err
	}
	return c.store.Update(key, data)
}

// ensureID returns the document's _id, generating and setting one if
// absent. A present _id must be a non-empty string.
func ensureID(doc *document.Document) (string, error) {
	v, ok := doc.Get("_id")
	if !ok {
		id := newObjectID()
		doc.Set("_id", id)
		return id, nil
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: _id must be a non-empty string", ErrInvalidDocument)
	}
	return id, nil
}

func checkReplacement(replacement *document.Document) error {
	if replacement == nil {
		return fmt.Errorf("%w: replacement must be a document", ErrInvalidUpdate)
	}
	for _, k := range replacement.Keys() {
		if strings.HasPrefix(k, "$") {
			return fmt.Errorf("%w: replacement document must not contain update operators", ErrInvalidUpdate)
		}
	}
	return nil
}

func withOriginalID(replacement, original *document.Document) *document.Document {
	rep := document.CloneDocument(replacement)
	if !rep.Has("_id") {
		if id, ok := original.Get("_id"); ok {
			rep.Set("_id", id)
		}
	}
	return rep
}
