package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE task_vectors (
		id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		fields TEXT NOT NULL DEFAULT '{}'
	)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	return db
}

func testSQLite(t *testing.T, dim int) *SQLite {
	t.Helper()
	s := NewSQLite(testDB(t))
	if err := s.EnsureCollection(context.Background(), testSchema(dim)); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	return s
}

func TestSQLite_EnsureCollectionConflict(t *testing.T) {
	s := testSQLite(t, 3)
	ctx := context.Background()

	if err := s.Upsert(ctx, []Row{{ID: "a", Vector: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// Same dimension is fine against a populated table.
	if err := s.EnsureCollection(ctx, testSchema(3)); err != nil {
		t.Fatalf("repeat EnsureCollection: %v", err)
	}
	if err := s.EnsureCollection(ctx, testSchema(5)); !errors.Is(err, ErrSchemaConflict) {
		t.Errorf("err = %v, want ErrSchemaConflict", err)
	}
}

func TestSQLite_UpsertReplaces(t *testing.T) {
	s := testSQLite(t, 2)
	ctx := context.Background()

	if err := s.Upsert(ctx, []Row{{ID: "a", Vector: []float32{1, 0}, Fields: map[string]any{"name": "one"}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, []Row{{ID: "a", Vector: []float32{0, 1}, Fields: map[string]any{"name": "two"}}}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	row, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Fields["name"] != "two" {
		t.Errorf("name = %v, want two", row.Fields["name"])
	}
	if row.Vector[0] != 0 || row.Vector[1] != 1 {
		t.Errorf("vector = %v", row.Vector)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestSQLite_SearchTopK(t *testing.T) {
	s := testSQLite(t, 2)
	ctx := context.Background()

	rows := []Row{
		{ID: "x", Vector: []float32{1, 0}, Fields: map[string]any{"assignee": "u1"}},
		{ID: "y", Vector: []float32{0, 1}, Fields: map[string]any{"assignee": "u1"}},
		{ID: "xy", Vector: []float32{1, 1}, Fields: map[string]any{"assignee": "u2"}},
	}
	if err := s.Upsert(ctx, rows); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Search(ctx, []float32{1, 0.1}, nil, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "x" || got[1].ID != "xy" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %v, %v", got[0].Score, got[1].Score)
	}

	filtered, err := s.Search(ctx, []float32{1, 0.1}, Filter{{Field: "assignee", Op: OpEq, Value: "u2"}}, 10)
	if err != nil {
		t.Fatalf("filtered Search: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "xy" {
		t.Errorf("filtered = %v", filtered)
	}
}

func TestSQLite_SearchEmpty(t *testing.T) {
	s := testSQLite(t, 2)
	got, err := s.Search(context.Background(), []float32{1, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestSQLite_GetDeleteMissing(t *testing.T) {
	s := testSQLite(t, 2)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	// Deleting an absent row is not an error.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, float32(math.Pi)}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
