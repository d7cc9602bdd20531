// Package ranking orders tasks for a free-text query: embed the query,
// retrieve the semantically closest candidates, score them, and sort. The
// scoring step is deterministic; an optional enrichment step asks the
// language model for free-text reasons and never fails the overall call.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/taskrank/internal/task"
	"github.com/kalambet/taskrank/internal/taskstore"
)

// ErrInvalidInput indicates the query was empty after trimming whitespace.
var ErrInvalidInput = errors.New("query must not be empty")

const (
	defaultCandidateLimit    = 10
	defaultEnrichConcurrency = 3
	defaultEnrichTimeout     = 10 * time.Second
)

// Strategy selects how candidates are scored.
type Strategy string

const (
	// StrategyStructural scores by due dates, tags, and custom fields.
	StrategyStructural Strategy = "structural"
	// StrategySimilarity reports the normalized vector similarity as the
	// score and leaves explanation to the enrichment step.
	StrategySimilarity Strategy = "similarity-only"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyStructural, StrategySimilarity:
		return Strategy(s), nil
	case "":
		return StrategyStructural, nil
	default:
		return "", fmt.Errorf("unknown ranking strategy %q", s)
	}
}

// Scope restricts a ranking call to one user's visible tasks.
type Scope struct {
	UserID string
	Filter task.Filter
}

// Embedder turns the query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves candidates by vector similarity.
type Searcher interface {
	Search(ctx context.Context, vec []float32, filter task.Filter, limit int) ([]taskstore.Candidate, error)
}

// Completer produces free-text completions for reason enrichment.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	Strategy          Strategy
	CandidateLimit    int
	EnrichReasons     bool
	EnrichTimeout     time.Duration
	EnrichConcurrency int
}

// Engine is the ranking pipeline. Safe for concurrent use; each Rank call is
// independent.
type Engine struct {
	embedder Embedder
	repo     Searcher
	gen      Completer
	cfg      Config
	now      func() time.Time
}

// New creates an Engine. gen may be nil, which disables reason enrichment.
func New(embedder Embedder, repo Searcher, gen Completer, cfg Config) *Engine {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyStructural
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaultCandidateLimit
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = defaultEnrichTimeout
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = defaultEnrichConcurrency
	}
	return &Engine{
		embedder: embedder,
		repo:     repo,
		gen:      gen,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Rank returns the tasks relevant to query, highest priority first. The
// scope's filter is combined with the user's assignee restriction and an
// open-tasks-only predicate. An empty candidate set returns an empty slice,
// not an error.
func (e *Engine) Rank(ctx context.Context, query string, scope Scope) ([]task.RankedTask, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	filter := scope.Filter
	if scope.UserID != "" {
		filter.AssigneeID = scope.UserID
	}
	open := false
	filter.Completed = &open

	candidates, err := e.repo.Search(ctx, vec, filter, e.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("searching candidates: %w", err)
	}
	if len(candidates) == 0 {
		return []task.RankedTask{}, nil
	}

	today := e.now()
	ranked := make([]task.RankedTask, len(candidates))
	for i, c := range candidates {
		ranked[i] = task.RankedTask{Record: c.Task}
		switch e.cfg.Strategy {
		case StrategySimilarity:
			ranked[i].PriorityScore = normalizeSimilarity(c.Similarity)
			ranked[i].PriorityReasons = FallbackReasons()
		default:
			score, reasons := scoreStructural(c.Task, today)
			ranked[i].PriorityScore = score
			ranked[i].PriorityReasons = reasons
		}
	}

	if e.gen != nil && (e.cfg.EnrichReasons || e.cfg.Strategy == StrategySimilarity) {
		e.enrichReasons(ctx, query, ranked)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PriorityScore > ranked[j].PriorityScore
	})
	return ranked, nil
}

// enrichReasons asks the generator for per-task reason lists, fanning out
// with bounded concurrency. A task whose call fails, times out, or parses
// badly keeps the reasons it already has; enrichment never fails the rank.
func (e *Engine) enrichReasons(ctx context.Context, query string, ranked []task.RankedTask) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
	defer cancel()

	sem := make(chan struct{}, e.cfg.EnrichConcurrency)
	var wg sync.WaitGroup
	for i := range ranked {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			resp, err := e.gen.Complete(timeoutCtx, reasonPrompt(query, ranked[i].Record))
			if err != nil {
				slog.Debug("reason enrichment failed, keeping deterministic reasons",
					"task", ranked[i].ID, "error", err)
				return
			}
			reasons, err := parseReasons(resp)
			if err != nil {
				slog.Debug("reason enrichment unparseable, keeping deterministic reasons",
					"task", ranked[i].ID, "error", err)
				return
			}
			ranked[i].PriorityReasons = reasons
		}()
	}
	wg.Wait()
}

func reasonPrompt(query string, rec task.Record) string {
	var b strings.Builder
	b.WriteString("Explain briefly why this task matters for the query.\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\nTask: ")
	b.WriteString(rec.Name)
	if rec.Description != "" {
		b.WriteString("\nDetails: ")
		b.WriteString(rec.Description)
	}
	if rec.DueDate != "" {
		b.WriteString("\nDue: ")
		b.WriteString(rec.DueDate)
	}
	if len(rec.Tags) > 0 {
		b.WriteString("\nTags: ")
		b.WriteString(strings.Join(rec.Tags, ", "))
	}
	b.WriteString("\nRespond with only a JSON array of short reason strings.")
	return b.String()
}
