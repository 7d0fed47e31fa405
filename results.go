package mongolite

import "github.com/mongolite/mongolite/pkg/document"

// InsertOneResult reports the id of an inserted document.
type InsertOneResult struct {
	InsertedID string
}

// UpdateResult reports what an update or replace touched. A write is
// always issued for every match; ModifiedCount only reflects whether
// the document actually changed.
type UpdateResult struct {
	MatchedCount  int
	ModifiedCount int
	UpsertedID    string // empty unless an upsert inserted a document
}

// DeleteResult reports how many documents a delete removed.
type DeleteResult struct {
	DeletedCount int
}

// BulkWriteResult aggregates the counts of a bulk_write batch.
type BulkWriteResult struct {
	InsertedCount int
	MatchedCount  int
	ModifiedCount int
	DeletedCount  int
	UpsertedIDs   []string
}

// WriteModel is one request inside a BulkWrite batch: an
// InsertOneModel, UpdateOneModel or DeleteOneModel.
type WriteModel interface {
	isWriteModel()
}

// InsertOneModel inserts one document.
type InsertOneModel struct {
	Document *document.Document
}

// UpdateOneModel updates the first document matching Filter.
type UpdateOneModel struct {
	Filter *document.Document
	Update *document.Document
	Upsert bool
}

// DeleteOneModel deletes the first document matching Filter.
type DeleteOneModel struct {
	Filter *document.Document
}

func (InsertOneModel) isWriteModel() {}
func (UpdateOneModel) isWriteModel() {}
func (DeleteOneModel) isWriteModel() {}

// ReturnDocument selects which image a find-and-modify call returns.
const (
	ReturnBefore = "before"
	ReturnAfter  = "after"
)
