package vectorstore

import (
	"strings"
	"testing"
)

func TestFilterMatches(t *testing.T) {
	fields := map[string]any{
		"projectId": "p1",
		"assignee":  "u1",
		"dueDate":   "2026-09-05",
		"completed": false,
		"tags":      `["Urgent","infra"]`,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", nil, true},
		{"eq match", Filter{{Field: "projectId", Op: OpEq, Value: "p1"}}, true},
		{"eq mismatch", Filter{{Field: "projectId", Op: OpEq, Value: "p2"}}, false},
		{"eq bool", Filter{{Field: "completed", Op: OpEq, Value: false}}, true},
		{"lt date", Filter{{Field: "dueDate", Op: OpLt, Value: "2026-10-01"}}, true},
		{"lt date boundary", Filter{{Field: "dueDate", Op: OpLt, Value: "2026-09-05"}}, false},
		{"gt date", Filter{{Field: "dueDate", Op: OpGt, Value: "2026-09-01"}}, true},
		{"contains tag", Filter{{Field: "tags", Op: OpContains, Value: "urgent"}}, true},
		{"contains missing tag", Filter{{Field: "tags", Op: OpContains, Value: "billing"}}, false},
		{"contains rejects superstring tag", Filter{{Field: "tags", Op: OpContains, Value: "infrastructure"}}, false},
		{"missing field", Filter{{Field: "nope", Op: OpEq, Value: "x"}}, false},
		{"conjunction", Filter{
			{Field: "projectId", Op: OpEq, Value: "p1"},
			{Field: "assignee", Op: OpEq, Value: "u2"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.matches(fields); got != tt.want {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterExpr(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"empty", nil, ""},
		{"string eq", Filter{{Field: "projectId", Op: OpEq, Value: "p1"}}, `projectId == "p1"`},
		{"bool eq", Filter{{Field: "completed", Op: OpEq, Value: false}}, "completed == false"},
		{"lt", Filter{{Field: "dueDate", Op: OpLt, Value: "2026-10-01"}}, `dueDate < "2026-10-01"`},
		{"contains quotes the element", Filter{{Field: "tags", Op: OpContains, Value: "urgent"}}, `tags like '%"urgent"%'`},
		{"conjunction", Filter{
			{Field: "assignee", Op: OpEq, Value: "u1"},
			{Field: "completed", Op: OpEq, Value: false},
		}, `assignee == "u1" and completed == false`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Expr(); got != tt.want {
				t.Errorf("Expr() = %q, want %q", got, tt.want)
			}
		})
	}
}

// The like pattern for a tag must not match a row whose JSON text merely
// contains the tag as a substring of another tag.
func TestFilterExprTagNearMiss(t *testing.T) {
	f := Filter{{Field: "tags", Op: OpContains, Value: "urgent"}}
	expr := f.Expr()

	pattern := strings.TrimSuffix(strings.TrimPrefix(expr, `tags like '%`), `%'`)
	if pattern != `"urgent"` {
		t.Fatalf("pattern = %q, want the JSON-quoted element", pattern)
	}

	nearMiss := `["non-urgent","backend"]`
	if strings.Contains(nearMiss, pattern) {
		t.Errorf("pattern %q matches near-miss row %q", pattern, nearMiss)
	}
	match := `["urgent","backend"]`
	if !strings.Contains(match, pattern) {
		t.Errorf("pattern %q does not match row %q", pattern, match)
	}
}
