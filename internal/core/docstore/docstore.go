package docstore

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned by Create when the document id is already taken.
	ErrExists = errors.New("document already exists")

	// ErrPathConflict is returned when a field path traverses a value that
	// is not an object, or increments a non-numeric leaf.
	ErrPathConflict = errors.New("field path conflicts with document shape")
)

// Document is a decoded JSON document body. Numeric leaves are
// json.Number so exact values survive a read/write round trip.
type Document map[string]any

// Entry pairs a document with its id for query results.
type Entry struct {
	ID  string
	Doc Document
}

// FieldDelta is one atomic numeric increment addressed by a field path.
type FieldDelta struct {
	Path  FieldPath
	Delta decimal.Decimal
}

// FieldValue is one non-increment field write.
type FieldValue struct {
	Path  FieldPath
	Value any
}

// Store is a document-oriented key/value persistence abstraction.
// Documents are addressed by (collection, id); fields inside a document
// are addressed by explicit path segments, never by a concatenated
// string, so segment names may contain any characters.
//
// Increment is atomic per call: concurrent increments against the same
// document never lose updates. No ordering is guaranteed between calls
// touching different documents.
type Store interface {
	// Get returns the document body, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Create inserts a new document, or returns ErrExists.
	Create(ctx context.Context, collection, id string, doc Document) error

	// Increment applies numeric field increments atomically. Missing
	// intermediate objects are created; a non-object intermediate or a
	// non-numeric leaf yields ErrPathConflict. Returns ErrNotFound when
	// the document does not exist.
	Increment(ctx context.Context, collection, id string, deltas []FieldDelta) error

	// Set writes field values on an existing document, creating missing
	// intermediate objects. Returns ErrNotFound when the document does
	// not exist.
	Set(ctx context.Context, collection, id string, fields []FieldValue) error

	// Update applies fn to the document body atomically: no concurrent
	// Update, Increment or Set against the same document interleaves
	// between the read and the write. Returns ErrNotFound when the
	// document does not exist; an error from fn aborts the update.
	Update(ctx context.Context, collection, id string, fn func(Document) (Document, error)) error

	// Query returns all documents whose top-level field equals value.
	Query(ctx context.Context, collection, field, value string) ([]Entry, error)

	// DeleteAll removes every document in the collection. Deleting an
	// empty or absent collection is not an error, so repeated invocation
	// is always safe.
	DeleteAll(ctx context.Context, collection string) error
}

// Pinger reports store connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
