package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors shared by all backends.
var (
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrSchemaConflict indicates an existing collection's schema is
	// incompatible with the requested one. Requires operator intervention.
	ErrSchemaConflict = errors.New("collection schema conflict")

	// ErrNotFound indicates no row exists for the requested ID.
	ErrNotFound = errors.New("row not found")
)

// FieldType enumerates the scalar field types a collection schema may declare.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldBool   FieldType = "bool"
	FieldJSON   FieldType = "json"
)

// Field is a single scalar field in a collection schema.
type Field struct {
	Name      string
	Type      FieldType
	MaxLength int // VarChar length hint for backends that need one
}

// Schema describes a collection: its name, vector dimension, similarity
// metric, and scalar fields. The primary key is always the string field "id"
// and the vector field is always "embedding"; they are implicit and must not
// appear in Fields.
type Schema struct {
	Collection string
	Dim        int
	Metric     string // "COSINE" or "L2"
	Fields     []Field
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq       Op = "=="
	OpLt       Op = "<"
	OpGt       Op = ">"
	OpContains Op = "contains" // JSON array membership
)

// Condition is a single predicate over a scalar field.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. A nil or empty Filter matches every
// row in the collection.
type Filter []Condition

// Row is a stored record: a primary key, its embedding, and scalar fields
// keyed by schema field name.
type Row struct {
	ID     string
	Vector []float32
	Fields map[string]any
}

// ScoredRow is a Row with the similarity score assigned by the backend.
// Higher is more similar regardless of the configured metric; backends using
// distance metrics negate before returning.
type ScoredRow struct {
	Row
	Score float32
}

// Store is the vector storage and similarity search interface. The default
// deployment uses the Milvus REST backend; the sqlite backend serves
// local-first setups and the memory backend serves tests.
type Store interface {
	// EnsureCollection idempotently verifies the collection exists with a
	// compatible schema and a vector index, creating both when absent.
	EnsureCollection(ctx context.Context, schema Schema) error

	// Upsert inserts or replaces rows keyed by ID. Visibility to subsequent
	// searches is subject to the backend's consistency step; callers must
	// not assume immediate visibility.
	Upsert(ctx context.Context, rows []Row) error

	// Search returns up to limit rows ordered by descending similarity,
	// restricted to rows matching filter. An empty result is not an error.
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredRow, error)

	// Get returns the row with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Row, error)

	// Delete removes the row with the given ID. Deleting an absent row is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of rows in the collection.
	Count(ctx context.Context) (int64, error)

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}
