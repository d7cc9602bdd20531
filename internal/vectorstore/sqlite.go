package vectorstore

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Compile-time check that SQLite implements Store.
var _ Store = (*SQLite)(nil)

// SQLite provides vector storage and brute-force cosine similarity search
// backed by a local SQLite database. It is the default backend for
// local-first deployments where no Milvus instance is available.
//
// Rows live in the task_vectors table (created via migrations): the scalar
// fields are kept as a JSON object and the embedding as a little-endian
// float32 blob. Brute force is fine up to ~100K rows; beyond that, point the
// factory at the milvus backend instead.
type SQLite struct {
	db  *sql.DB
	dim int
}

// NewSQLite wraps an existing *sql.DB for vector operations. The
// task_vectors table must already exist (created via storage migrations).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureCollection records the expected dimension and verifies any existing
// rows are compatible with it. The table itself is managed by migrations,
// so schema conflicts can only arise from a dimension change.
func (s *SQLite) EnsureCollection(ctx context.Context, schema Schema) error {
	if schema.Dim <= 0 {
		return fmt.Errorf("invalid dimension %d", schema.Dim)
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM task_vectors LIMIT 1`).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Empty table, any dimension is fine.
	case err != nil:
		return fmt.Errorf("%w: probing task_vectors: %v", ErrUnavailable, err)
	default:
		if got := len(blob) / 4; got != schema.Dim {
			return fmt.Errorf("%w: stored dimension %d, requested %d", ErrSchemaConflict, got, schema.Dim)
		}
	}
	s.dim = schema.Dim
	return nil
}

// Upsert replaces rows keyed by ID. SQLite supports native upsert, so no
// delete-then-insert dance is needed here.
func (s *SQLite) Upsert(ctx context.Context, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning upsert transaction: %v", ErrUnavailable, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO task_vectors (id, embedding, fields)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, fields = excluded.fields`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if s.dim != 0 && len(r.Vector) != s.dim {
			tx.Rollback()
			return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(r.Vector), s.dim)
		}
		fieldsJSON, err := json.Marshal(r.Fields)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encoding fields for %s: %w", r.ID, err)
		}
		if _, err := stmt.Exec(r.ID, encodeFloat32s(r.Vector), string(fieldsJSON)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting row %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// rowScore pairs a row with its similarity during the scan.
type rowScore struct {
	row   Row
	score float32
}

// Search performs a brute-force cosine scan over all rows, evaluating the
// filter in Go against the decoded fields and keeping the top-limit rows in
// a min-heap.
func (s *SQLite) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredRow, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, fields FROM task_vectors`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &rowScoreHeap{}
	heap.Init(h)

	// Reusable decode buffer to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id, fieldsJSON string
		var blob []byte
		if err := rows.Scan(&id, &blob, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("decoding fields for %s: %w", id, err)
		}
		if !filter.matches(fields) {
			continue
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := dotProduct(vector, buf, queryNorm)
		if h.Len() < limit {
			vec := make([]float32, len(buf))
			copy(vec, buf)
			heap.Push(h, rowScore{row: Row{ID: id, Vector: vec, Fields: fields}, score: score})
		} else if score > (*h)[0].score {
			vec := make([]float32, len(buf))
			copy(vec, buf)
			(*h)[0] = rowScore{row: Row{ID: id, Vector: vec, Fields: fields}, score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	// Drain the heap into descending-score order.
	results := make([]ScoredRow, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		item := heap.Pop(h).(rowScore)
		results[i] = ScoredRow{Row: item.row, Score: item.score}
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Row, error) {
	var blob []byte
	var fieldsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding, fields FROM task_vectors WHERE id = ?`, id).Scan(&blob, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("%w: fetching row %s: %v", ErrUnavailable, id, err)
	}

	vec, err := decodeFloat32s(blob)
	if err != nil {
		return Row{}, fmt.Errorf("decoding embedding for %s: %w", id, err)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return Row{}, fmt.Errorf("decoding fields for %s: %w", id, err)
	}
	return Row{ID: id, Vector: vec, Fields: fields}, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: deleting row %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_vectors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting rows: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (s *SQLite) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// A length that is not a multiple of 4 indicates data corruption.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it across rows during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// dotProduct computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func dotProduct(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// rowScoreHeap is a min-heap of rowScore ordered by score, used to track the
// top-limit candidates during the scan.
type rowScoreHeap []rowScore

func (h rowScoreHeap) Len() int           { return len(h) }
func (h rowScoreHeap) Less(i, j int) bool { return h[i].score < h[j].score }
func (h rowScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rowScoreHeap) Push(x any)        { *h = append(*h, x.(rowScore)) }
func (h *rowScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
