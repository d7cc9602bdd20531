// Package api exposes the ranking engine and task repository over HTTP and
// MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/kalambet/taskrank/internal/embedding"
	"github.com/kalambet/taskrank/internal/ranking"
	"github.com/kalambet/taskrank/internal/task"
	"github.com/kalambet/taskrank/internal/vectorstore"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxBatchSize       = 100
)

// Ranker runs ranking queries.
type Ranker interface {
	Rank(ctx context.Context, query string, scope ranking.Scope) ([]task.RankedTask, error)
}

// Summarizer produces the optional result summary.
type Summarizer interface {
	Summarize(ctx context.Context, query string, tasks []task.RankedTask) (string, error)
}

// TaskStore is the repository surface the API needs.
type TaskStore interface {
	Upsert(ctx context.Context, rec task.Record, vec []float32) error
	Get(ctx context.Context, id string) (task.Record, error)
	Count(ctx context.Context) (int64, error)
	Health(ctx context.Context) error
}

// Embedder embeds task text on ingestion.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Deps holds the collaborators for the HTTP handler.
type Deps struct {
	Ranker      Ranker
	Summarizer  Summarizer // optional; prioritize omits summaries when nil
	Tasks       TaskStore
	Embedder    Embedder
	Token       string // optional bearer token; empty disables auth
	CORSOrigins []string
}

// NewHandler returns the HTTP API. All task routes sit behind bearer auth
// when a token is configured; /health is always open.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/v1/prioritize", handlePrioritize(deps))
		r.Post("/v1/tasks", handleIngestTask(deps))
		r.Post("/v1/tasks/batch", handleIngestBatch(deps))
		r.Get("/v1/tasks/count", handleTaskCount(deps))
		r.Get("/v1/tasks/{id}", handleGetTask(deps))
	})

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

// Scope mirrors ranking.Scope on the wire.
type Scope struct {
	UserID string       `json:"userId"`
	Filter *task.Filter `json:"filter,omitempty"`
}

type PrioritizeRequest struct {
	Query          string `json:"query"`
	Scope          Scope  `json:"scope"`
	IncludeSummary bool   `json:"includeSummary"`
}

type PrioritizeResponse struct {
	Tasks   []task.RankedTask `json:"tasks"`
	Summary string            `json:"summary,omitempty"`
	// Synced is false when the collection holds no tasks at all, so an
	// empty result means "nothing indexed yet" rather than "no match".
	Synced *bool `json:"synced,omitempty"`
}

func handlePrioritize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req PrioritizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		scope := ranking.Scope{UserID: req.Scope.UserID}
		if req.Scope.Filter != nil {
			scope.Filter = *req.Scope.Filter
		}

		tasks, err := deps.Ranker.Rank(r.Context(), req.Query, scope)
		if err != nil {
			writeRankError(w, err)
			return
		}

		resp := PrioritizeResponse{Tasks: tasks}
		if len(tasks) == 0 {
			if n, err := deps.Tasks.Count(r.Context()); err == nil && n == 0 {
				synced := false
				resp.Synced = &synced
			}
		}
		if req.IncludeSummary && deps.Summarizer != nil {
			summary, err := deps.Summarizer.Summarize(r.Context(), req.Query, tasks)
			if err != nil {
				// The ranked list is still useful without prose.
				slog.Warn("summary generation failed", "error", err)
			} else {
				resp.Summary = summary
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// writeRankError maps ranking failures onto HTTP statuses: bad input is the
// caller's fault, provider and store outages are upstream failures the
// caller may retry.
func writeRankError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ranking.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query must not be empty")
	case errors.Is(err, embedding.ErrUnavailable):
		httpError(w, http.StatusBadGateway, "api_error", "embedding provider unavailable: %v", err)
	case errors.Is(err, vectorstore.ErrUnavailable):
		httpError(w, http.StatusServiceUnavailable, "api_error", "vector store unavailable: %v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "ranking failed: %v", err)
	}
}

type IngestTaskRequest struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	DueDate      string             `json:"due_date"`
	ProjectID    string             `json:"project_id"`
	AssigneeID   string             `json:"assignee_id"`
	Workspace    string             `json:"workspace"`
	Tags         []string           `json:"tags"`
	CustomFields []task.CustomField `json:"custom_fields"`
	Completed    bool               `json:"completed"`
}

// record validates the request and builds the stored form, generating an ID
// when the caller did not supply one.
func (req IngestTaskRequest) record(now time.Time) (task.Record, error) {
	if strings.TrimSpace(req.Name) == "" {
		return task.Record{}, errors.New("name is required")
	}
	if req.DueDate != "" {
		if _, err := time.Parse(task.DateLayout, req.DueDate); err != nil {
			return task.Record{}, errors.New("due_date must be YYYY-MM-DD")
		}
	}

	rec := task.Record{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		DueDate:      req.DueDate,
		ProjectID:    req.ProjectID,
		AssigneeID:   req.AssigneeID,
		Workspace:    req.Workspace,
		Tags:         req.Tags,
		CustomFields: req.CustomFields,
		Completed:    req.Completed,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return rec, nil
}

func handleIngestTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req IngestTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		rec, err := req.record(time.Now().UTC())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		vec, err := deps.Embedder.Embed(r.Context(), rec.EmbeddingText())
		if err != nil {
			if errors.Is(err, embedding.ErrUnavailable) {
				httpError(w, http.StatusBadGateway, "api_error", "embedding provider unavailable: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "embedding task: %v", err)
			return
		}

		if err := deps.Tasks.Upsert(r.Context(), rec, vec); err != nil {
			if errors.Is(err, vectorstore.ErrUnavailable) {
				httpError(w, http.StatusServiceUnavailable, "api_error", "vector store unavailable: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "storing task: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     rec.ID,
			"status": "indexed",
		})
	}
}

type IngestBatchRequest struct {
	Tasks []IngestTaskRequest `json:"tasks"`
}

func handleIngestBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req IngestBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Tasks) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "tasks must not be empty")
			return
		}
		if len(req.Tasks) > maxBatchSize {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "batch exceeds %d tasks", maxBatchSize)
			return
		}

		now := time.Now().UTC()
		recs := make([]task.Record, len(req.Tasks))
		texts := make([]string, len(req.Tasks))
		for i, tr := range req.Tasks {
			rec, err := tr.record(now)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "task %d: %v", i, err)
				return
			}
			recs[i] = rec
			texts[i] = rec.EmbeddingText()
		}

		vecs, err := deps.Embedder.EmbedBatch(r.Context(), texts)
		if err != nil {
			if errors.Is(err, embedding.ErrUnavailable) {
				httpError(w, http.StatusBadGateway, "api_error", "embedding provider unavailable: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "embedding tasks: %v", err)
			return
		}

		ids := make([]string, len(recs))
		for i, rec := range recs {
			if err := deps.Tasks.Upsert(r.Context(), rec, vecs[i]); err != nil {
				if errors.Is(err, vectorstore.ErrUnavailable) {
					httpError(w, http.StatusServiceUnavailable, "api_error", "vector store unavailable: %v", err)
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "storing task %s: %v", rec.ID, err)
				return
			}
			ids[i] = rec.ID
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ids":    ids,
			"status": "indexed",
		})
	}
}

func handleGetTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := deps.Tasks.Get(r.Context(), id)
		if errors.Is(err, vectorstore.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "fetching task: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

func handleTaskCount(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Tasks.Count(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting tasks: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"count": count})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := deps.Tasks.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
