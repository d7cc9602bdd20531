// Package taskstore adapts task records to the vector store's row format.
// It owns the collection schema and the bootstrap that guarantees the
// collection exists before any search.
package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/taskrank/internal/task"
	"github.com/kalambet/taskrank/internal/vectorstore"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "task_vectors"

// DefaultDim matches the embedding provider's default model output length.
const DefaultDim = 1536

// Repository translates between task.Record and vector store rows.
type Repository struct {
	store  vectorstore.Store
	schema vectorstore.Schema
}

// New creates a Repository over the given store. Zero collection or dim fall
// back to the defaults.
func New(store vectorstore.Store, collection string, dim int) *Repository {
	if collection == "" {
		collection = DefaultCollection
	}
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Repository{
		store: store,
		schema: vectorstore.Schema{
			Collection: collection,
			Dim:        dim,
			Metric:     "COSINE",
			Fields: []vectorstore.Field{
				{Name: "name", Type: vectorstore.FieldString, MaxLength: 500},
				{Name: "description", Type: vectorstore.FieldString, MaxLength: 10000},
				{Name: "workspace", Type: vectorstore.FieldString, MaxLength: 100},
				{Name: "userId", Type: vectorstore.FieldString, MaxLength: 100},
				{Name: "projectId", Type: vectorstore.FieldString, MaxLength: 100},
				{Name: "dueDate", Type: vectorstore.FieldString, MaxLength: 30},
				{Name: "status", Type: vectorstore.FieldString, MaxLength: 50},
				{Name: "priority", Type: vectorstore.FieldInt},
				{Name: "assignee", Type: vectorstore.FieldString, MaxLength: 100},
				{Name: "tags", Type: vectorstore.FieldJSON, MaxLength: 2048},
				{Name: "customFields", Type: vectorstore.FieldJSON, MaxLength: 8192},
				{Name: "completed", Type: vectorstore.FieldBool},
				{Name: "createdAt", Type: vectorstore.FieldString, MaxLength: 30},
				{Name: "modifiedAt", Type: vectorstore.FieldString, MaxLength: 30},
			},
		},
	}
}

// Candidate is a task returned by vector search with its similarity score.
type Candidate struct {
	Task       task.Record
	Similarity float32
}

// EnsureCollection idempotently verifies the backing collection exists with
// the expected schema and a vector index, creating both when absent.
func (r *Repository) EnsureCollection(ctx context.Context) error {
	return r.store.EnsureCollection(ctx, r.schema)
}

// Upsert inserts or replaces the row for the given record. vec must have the
// collection's configured dimension. Visibility to subsequent searches is
// subject to the store's consistency step.
func (r *Repository) Upsert(ctx context.Context, rec task.Record, vec []float32) error {
	if len(vec) != r.schema.Dim {
		return fmt.Errorf("embedding length %d does not match collection dimension %d", len(vec), r.schema.Dim)
	}
	row, err := toRow(rec, vec)
	if err != nil {
		return err
	}
	return r.store.Upsert(ctx, []vectorstore.Row{row})
}

// Search returns up to limit candidates ordered by descending similarity,
// restricted to records matching the filter. An empty result is not an
// error.
func (r *Repository) Search(ctx context.Context, vec []float32, filter task.Filter, limit int) ([]Candidate, error) {
	rows, err := r.store.Search(ctx, vec, compileFilter(filter), limit)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row.Row)
		if err != nil {
			return nil, fmt.Errorf("decoding row %s: %w", row.ID, err)
		}
		candidates = append(candidates, Candidate{Task: rec, Similarity: row.Score})
	}
	return candidates, nil
}

// Get returns the record with the given ID, or vectorstore.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (task.Record, error) {
	row, err := r.store.Get(ctx, id)
	if err != nil {
		return task.Record{}, err
	}
	return fromRow(row)
}

// Count returns the number of records in the collection.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx)
}

// Health reports whether the backing store is reachable.
func (r *Repository) Health(ctx context.Context) error {
	return r.store.Health(ctx)
}

// Dim returns the collection's configured embedding dimension.
func (r *Repository) Dim() int {
	return r.schema.Dim
}

// compileFilter maps the domain filter onto store conditions. The zero
// filter compiles to nil, which matches every row.
func compileFilter(f task.Filter) vectorstore.Filter {
	var out vectorstore.Filter
	if f.ProjectID != "" {
		out = append(out, vectorstore.Condition{Field: "projectId", Op: vectorstore.OpEq, Value: f.ProjectID})
	}
	if f.AssigneeID != "" {
		out = append(out, vectorstore.Condition{Field: "assignee", Op: vectorstore.OpEq, Value: f.AssigneeID})
	}
	if f.DueBefore != "" {
		// Records without a due date store "", which sorts before every
		// real date; the lower bound keeps them out of DueBefore results.
		out = append(out,
			vectorstore.Condition{Field: "dueDate", Op: vectorstore.OpGt, Value: ""},
			vectorstore.Condition{Field: "dueDate", Op: vectorstore.OpLt, Value: f.DueBefore})
	}
	if f.DueAfter != "" {
		out = append(out, vectorstore.Condition{Field: "dueDate", Op: vectorstore.OpGt, Value: f.DueAfter})
	}
	if f.Completed != nil {
		out = append(out, vectorstore.Condition{Field: "completed", Op: vectorstore.OpEq, Value: *f.Completed})
	}
	for _, tag := range f.Tags {
		out = append(out, vectorstore.Condition{Field: "tags", Op: vectorstore.OpContains, Value: tag})
	}
	return out
}

func toRow(rec task.Record, vec []float32) (vectorstore.Row, error) {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return vectorstore.Row{}, fmt.Errorf("encoding tags: %w", err)
	}
	cfJSON, err := json.Marshal(rec.CustomFields)
	if err != nil {
		return vectorstore.Row{}, fmt.Errorf("encoding custom fields: %w", err)
	}

	status := "open"
	if rec.Completed {
		status = "completed"
	}

	return vectorstore.Row{
		ID:     rec.ID,
		Vector: vec,
		Fields: map[string]any{
			"name":         rec.Name,
			"description":  rec.Description,
			"workspace":    rec.Workspace,
			"userId":       rec.AssigneeID,
			"projectId":    rec.ProjectID,
			"dueDate":      rec.DueDate,
			"status":       status,
			"priority":     rec.Priority(),
			"assignee":     rec.AssigneeID,
			"tags":         string(tagsJSON),
			"customFields": string(cfJSON),
			"completed":    rec.Completed,
			"createdAt":    rec.CreatedAt.UTC().Format(time.RFC3339),
			"modifiedAt":   rec.ModifiedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func fromRow(row vectorstore.Row) (task.Record, error) {
	rec := task.Record{
		ID:          row.ID,
		Name:        stringField(row.Fields, "name"),
		Description: stringField(row.Fields, "description"),
		Workspace:   stringField(row.Fields, "workspace"),
		ProjectID:   stringField(row.Fields, "projectId"),
		AssigneeID:  stringField(row.Fields, "assignee"),
		DueDate:     stringField(row.Fields, "dueDate"),
	}

	if v, ok := row.Fields["completed"].(bool); ok {
		rec.Completed = v
	}

	if s := stringField(row.Fields, "tags"); s != "" {
		if err := json.Unmarshal([]byte(s), &rec.Tags); err != nil {
			return task.Record{}, fmt.Errorf("decoding tags: %w", err)
		}
	}
	if s := stringField(row.Fields, "customFields"); s != "" {
		if err := json.Unmarshal([]byte(s), &rec.CustomFields); err != nil {
			return task.Record{}, fmt.Errorf("decoding custom fields: %w", err)
		}
	}

	if s := stringField(row.Fields, "createdAt"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return task.Record{}, fmt.Errorf("parsing createdAt: %w", err)
		}
		rec.CreatedAt = t
	}
	if s := stringField(row.Fields, "modifiedAt"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return task.Record{}, fmt.Errorf("parsing modifiedAt: %w", err)
		}
		rec.ModifiedAt = t
	}

	return rec, nil
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
