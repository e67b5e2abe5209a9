package core

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDocNotFound     = errors.New("document not found")
	ErrInvalidPath     = errors.New("invalid collection path")
	ErrInvalidOperator = errors.New("invalid filter operator")
)

// Filter operators
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpIn             = "in"
	OpArrayContains  = "array-contains"
)

// Write operations
const (
	WriteSet = iota + 1
	WriteUpdate
	WriteDelete
)

type (
	// Document is a schemaless record addressed by its collection path and ID.
	Document struct {
		ID         string
		Collection string
		Data       map[string]interface{}
	}

	Filter struct {
		Field string
		Op    string
		Value interface{}
	}

	// Query selects documents of a collection.
	// When Group is set, Collection is a collection ID (eg. "submissions") and every collection
	// with that ID is searched, whatever its parent document.
	Query struct {
		Collection string
		Group      bool
		Filters    []Filter
		Orderings  []DBOrdering
		Limit      int
	}

	Write struct {
		Op         int
		Collection string
		ID         string
		Data       map[string]interface{}
	}

	// Snapshot is the full result set of a listened Query at some point in time.
	Snapshot struct {
		Docs []Document
		Err  error
	}

	// DocumentStore is implemented by every storage backend.
	DocumentStore interface {
		Get(ctx context.Context, collection, id string) (Document, error)
		Query(ctx context.Context, q Query) ([]Document, error)
		// Create stores data under a generated ID and returns it.
		Create(ctx context.Context, collection string, data map[string]interface{}) (string, error)
		// Set creates or replaces a document.
		Set(ctx context.Context, collection, id string, data map[string]interface{}) error
		// Update merges the top-level fields of data into an existing document.
		// It fails with ErrDocNotFound when the document does not exist.
		Update(ctx context.Context, collection, id string, data map[string]interface{}) error
		// Delete removes a document; deleting a missing document is not an error.
		Delete(ctx context.Context, collection, id string) error
		// Batch applies all writes atomically.
		Batch(ctx context.Context, writes ...Write) error
		// Listen sends a Snapshot of q's results now and after every change, until ctx is done.
		Listen(ctx context.Context, q Query) (<-chan Snapshot, error)
		Close() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

func (d Document) Path() string {
	return DocPath(d.Collection, d.ID)
}

// DataTo decodes the document data into v and sets its `id` field.
func (d Document) DataTo(v interface{}) error {
	return DecodeDocument(d, v)
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func NewGroupQuery(collectionID string) Query {
	return Query{Collection: collectionID, Group: true}
}

func (q Query) Where(field, op string, value interface{}) Query {
	q.Filters = append(q.Filters[:len(q.Filters):len(q.Filters)], Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(orderings ...DBOrdering) Query {
	q.Orderings = append(q.Orderings[:len(q.Orderings):len(q.Orderings)], orderings...)
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Matches reports whether a document living in `collection` belongs to the queried collection(s).
func (q Query) Matches(collection string) bool {
	if q.Group {
		return CollectionID(collection) == q.Collection
	}
	return collection == q.Collection
}

// Validate checks the query shape before it reaches a backend.
func (q Query) Validate() error {
	if q.Group {
		if q.Collection == "" || strings.Contains(q.Collection, "/") {
			return ErrInvalidPath
		}
	} else if err := ValidateCollection(q.Collection); err != nil {
		return err
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual, OpIn, OpArrayContains:
		default:
			return errors.Wrap(ErrInvalidOperator, f.Op)
		}
	}
	return nil
}

// ValidateCollection checks that path has the `col/doc/col/...` shape (an odd number of segments).
func ValidateCollection(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	segs := strings.Split(path, "/")
	if len(segs)%2 == 0 {
		return ErrInvalidPath
	}
	for _, s := range segs {
		if s == "" {
			return ErrInvalidPath
		}
	}
	return nil
}

func DocPath(collection, id string) string {
	return collection + "/" + id
}

// CollectionID returns the last segment of a collection path.
func CollectionID(collection string) string {
	if i := strings.LastIndex(collection, "/"); i >= 0 {
		return collection[i+1:]
	}
	return collection
}

// ParentPath returns the path of the document owning a sub-collection, or "" for root collections.
func ParentPath(collection string) string {
	if i := strings.LastIndex(collection, "/"); i >= 0 {
		return collection[:i]
	}
	return ""
}
