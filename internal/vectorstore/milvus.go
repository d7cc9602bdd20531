package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Compile-time check that Milvus implements Store.
var _ Store = (*Milvus)(nil)

// Milvus implements Store against the Milvus v2 RESTful API. It is the
// production backend; a hosted Zilliz endpoint works the same way with a
// bearer token.
type Milvus struct {
	baseURL    string
	token      string
	schema     Schema
	httpClient *http.Client
}

// MilvusConfig configures the Milvus REST client.
type MilvusConfig struct {
	BaseURL string
	Token   string // optional bearer token (Zilliz Cloud)
	Timeout time.Duration
}

// NewMilvus creates a Milvus-backed vector store.
func NewMilvus(cfg MilvusConfig) (*Milvus, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("milvus base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Milvus{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// milvusResponse is the envelope every v2 REST endpoint returns.
type milvusResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (m *Milvus) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: POST %s: status %d: %s", ErrUnavailable, path, resp.StatusCode, string(b))
	}

	var envelope milvusResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	if envelope.Code != 0 {
		return nil, &milvusError{code: envelope.Code, message: envelope.Message, path: path}
	}
	return envelope.Data, nil
}

// milvusError is a non-zero API status from the server.
type milvusError struct {
	code    int
	message string
	path    string
}

func (e *milvusError) Error() string {
	return fmt.Sprintf("milvus %s: code %d: %s", e.path, e.code, e.message)
}

// collection-not-found codes across Milvus versions.
func (e *milvusError) notFound() bool {
	return e.code == 100 || e.code == 4 ||
		strings.Contains(e.message, "can't find collection") ||
		strings.Contains(e.message, "collection not found")
}

type describeData struct {
	Fields []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"fields"`
}

// EnsureCollection verifies the collection exists with a compatible field
// set and a vector index on the embedding field, creating everything when
// absent. Incompatible existing collections surface ErrSchemaConflict and
// require operator intervention; the client never drops data.
func (m *Milvus) EnsureCollection(ctx context.Context, schema Schema) error {
	m.schema = schema

	data, err := m.post(ctx, "/v2/vectordb/collections/describe", map[string]any{
		"collectionName": schema.Collection,
	})
	if err == nil {
		var desc describeData
		if err := json.Unmarshal(data, &desc); err != nil {
			return fmt.Errorf("decoding describe response: %w", err)
		}
		return checkSchemaCompat(schema, desc)
	}

	var apiErr *milvusError
	if !errors.As(err, &apiErr) || !apiErr.notFound() {
		return err
	}

	// Collection absent: create schema, index, then load.
	fields := []map[string]any{
		{
			"fieldName":         "id",
			"dataType":          "VarChar",
			"isPrimary":         true,
			"elementTypeParams": map[string]any{"max_length": "100"},
		},
		{
			"fieldName":         "embedding",
			"dataType":          "FloatVector",
			"elementTypeParams": map[string]any{"dim": fmt.Sprintf("%d", schema.Dim)},
		},
	}
	for _, f := range schema.Fields {
		fields = append(fields, milvusField(f))
	}

	if _, err := m.post(ctx, "/v2/vectordb/collections/create", map[string]any{
		"collectionName": schema.Collection,
		"schema":         map[string]any{"fields": fields},
	}); err != nil {
		return fmt.Errorf("creating collection %s: %w", schema.Collection, err)
	}

	if _, err := m.post(ctx, "/v2/vectordb/indexes/create", map[string]any{
		"collectionName": schema.Collection,
		"indexParams": []map[string]any{
			{
				"fieldName":  "embedding",
				"indexName":  "embedding_idx",
				"metricType": schema.Metric,
			},
		},
	}); err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}

	if _, err := m.post(ctx, "/v2/vectordb/collections/load", map[string]any{
		"collectionName": schema.Collection,
	}); err != nil {
		return fmt.Errorf("loading collection %s: %w", schema.Collection, err)
	}

	return nil
}

func milvusField(f Field) map[string]any {
	out := map[string]any{"fieldName": f.Name}
	switch f.Type {
	case FieldString, FieldJSON:
		maxLen := f.MaxLength
		if maxLen == 0 {
			maxLen = 1024
		}
		out["dataType"] = "VarChar"
		out["elementTypeParams"] = map[string]any{"max_length": fmt.Sprintf("%d", maxLen)}
	case FieldInt:
		out["dataType"] = "Int64"
	case FieldBool:
		out["dataType"] = "Bool"
	}
	return out
}

// checkSchemaCompat verifies every requested field exists in the live
// collection. Extra live fields are tolerated; missing ones are a conflict.
func checkSchemaCompat(schema Schema, desc describeData) error {
	live := make(map[string]bool, len(desc.Fields))
	for _, f := range desc.Fields {
		live[f.Name] = true
	}
	if !live["id"] || !live["embedding"] {
		return fmt.Errorf("%w: collection %s lacks id/embedding fields", ErrSchemaConflict, schema.Collection)
	}
	for _, f := range schema.Fields {
		if !live[f.Name] {
			return fmt.Errorf("%w: collection %s missing field %q", ErrSchemaConflict, schema.Collection, f.Name)
		}
	}
	return nil
}

// Upsert implements update as delete-then-insert: the insert primitive does
// not replace rows with an existing primary key. Rows become visible to
// searches only after the server's consistency step.
func (m *Milvus) Upsert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	entities := make([]map[string]any, len(rows))
	for i, r := range rows {
		ids[i] = fmt.Sprintf("%q", r.ID)
		entity := map[string]any{"id": r.ID, "embedding": r.Vector}
		for k, v := range r.Fields {
			entity[k] = v
		}
		entities[i] = entity
	}

	if _, err := m.post(ctx, "/v2/vectordb/entities/delete", map[string]any{
		"collectionName": m.schema.Collection,
		"filter":         fmt.Sprintf("id in [%s]", strings.Join(ids, ", ")),
	}); err != nil {
		return fmt.Errorf("deleting existing rows: %w", err)
	}

	if _, err := m.post(ctx, "/v2/vectordb/entities/insert", map[string]any{
		"collectionName": m.schema.Collection,
		"data":           entities,
	}); err != nil {
		return fmt.Errorf("inserting rows: %w", err)
	}
	return nil
}

type searchHit map[string]json.RawMessage

func (m *Milvus) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredRow, error) {
	if limit <= 0 {
		limit = 5
	}

	body := map[string]any{
		"collectionName": m.schema.Collection,
		"data":           [][]float32{vector},
		"limit":          limit,
		"outputFields":   []string{"*"},
	}
	if expr := filter.Expr(); expr != "" {
		body["filter"] = expr
	}

	data, err := m.post(ctx, "/v2/vectordb/entities/search", body)
	if err != nil {
		return nil, err
	}

	var hits []searchHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, fmt.Errorf("decoding search hits: %w", err)
	}

	results := make([]ScoredRow, 0, len(hits))
	for _, h := range hits {
		row, score, err := m.decodeHit(h)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredRow{Row: row, Score: score})
	}
	return results, nil
}

func (m *Milvus) decodeHit(h searchHit) (Row, float32, error) {
	row := Row{Fields: make(map[string]any)}
	var score float32
	for k, raw := range h {
		switch k {
		case "id":
			if err := json.Unmarshal(raw, &row.ID); err != nil {
				return Row{}, 0, fmt.Errorf("decoding hit id: %w", err)
			}
		case "distance":
			if err := json.Unmarshal(raw, &score); err != nil {
				return Row{}, 0, fmt.Errorf("decoding hit distance: %w", err)
			}
		case "embedding":
			if err := json.Unmarshal(raw, &row.Vector); err != nil {
				return Row{}, 0, fmt.Errorf("decoding hit embedding: %w", err)
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return Row{}, 0, fmt.Errorf("decoding hit field %q: %w", k, err)
			}
			row.Fields[k] = v
		}
	}
	// For L2 the server reports distance (lower is better); negate so
	// callers always sort descending.
	if strings.EqualFold(m.schema.Metric, "L2") {
		score = -score
	}
	return row, score, nil
}

func (m *Milvus) Get(ctx context.Context, id string) (Row, error) {
	data, err := m.post(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": m.schema.Collection,
		"filter":         fmt.Sprintf("id == %q", id),
		"outputFields":   []string{"*"},
		"limit":          1,
	})
	if err != nil {
		return Row{}, err
	}

	var hits []searchHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return Row{}, fmt.Errorf("decoding query hits: %w", err)
	}
	if len(hits) == 0 {
		return Row{}, ErrNotFound
	}
	row, _, err := m.decodeHit(hits[0])
	return row, err
}

func (m *Milvus) Delete(ctx context.Context, id string) error {
	_, err := m.post(ctx, "/v2/vectordb/entities/delete", map[string]any{
		"collectionName": m.schema.Collection,
		"filter":         fmt.Sprintf("id == %q", id),
	})
	return err
}

func (m *Milvus) Count(ctx context.Context) (int64, error) {
	data, err := m.post(ctx, "/v2/vectordb/collections/get_stats", map[string]any{
		"collectionName": m.schema.Collection,
	})
	if err != nil {
		return 0, err
	}
	var stats struct {
		RowCount int64 `json:"rowCount"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return 0, fmt.Errorf("decoding collection stats: %w", err)
	}
	return stats.RowCount, nil
}

func (m *Milvus) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v2/vectordb/collections/list", nil)
	if err != nil {
		return err
	}
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
