package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/taskrank/internal/task"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func testMCPDeps() (MCPDeps, *mockRanker, *mockTaskStore) {
	ranker := &mockRanker{}
	store := newMockTaskStore()
	return MCPDeps{Ranker: ranker, Tasks: store}, ranker, store
}

// --- tests ---

func TestMCPTool_PrioritizeTasks(t *testing.T) {
	deps, ranker, _ := testMCPDeps()
	ranker.tasks = []task.RankedTask{
		{
			Record:          task.Record{ID: "t1", Name: "Fix login"},
			PriorityScore:   90,
			PriorityReasons: []string{"Due today"},
		},
	}
	handler := mcpPrioritizeTasks(deps)

	req := makeCallToolRequest("prioritize_tasks", map[string]interface{}{
		"query":      "login bugs",
		"user_id":    "u1",
		"project_id": "p1",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	if ranker.lastQuery != "login bugs" {
		t.Errorf("query = %q", ranker.lastQuery)
	}
	if ranker.lastScope.UserID != "u1" || ranker.lastScope.Filter.ProjectID != "p1" {
		t.Errorf("scope = %+v", ranker.lastScope)
	}

	var resp PrioritizeResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Name != "Fix login" {
		t.Errorf("tasks = %+v", resp.Tasks)
	}
}

func TestMCPTool_PrioritizeTasks_IncludeSummary(t *testing.T) {
	deps, ranker, _ := testMCPDeps()
	ranker.tasks = []task.RankedTask{{Record: task.Record{ID: "t1", Name: "x"}}}
	deps.Summarizer = &mockSummarizer{summary: "Start with t1."}
	handler := mcpPrioritizeTasks(deps)

	req := makeCallToolRequest("prioritize_tasks", map[string]interface{}{
		"query":           "next",
		"include_summary": true,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp PrioritizeResponse
	json.Unmarshal([]byte(toolText(t, result)), &resp)
	if resp.Summary != "Start with t1." {
		t.Errorf("summary = %q", resp.Summary)
	}
}

func TestMCPTool_PrioritizeTasks_MissingQuery(t *testing.T) {
	deps, _, _ := testMCPDeps()
	handler := mcpPrioritizeTasks(deps)

	result, err := handler(context.Background(), makeCallToolRequest("prioritize_tasks", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing query")
	}
}

func TestMCPTool_PrioritizeTasks_RankError(t *testing.T) {
	deps, ranker, _ := testMCPDeps()
	ranker.err = errors.New("store down")
	handler := mcpPrioritizeTasks(deps)

	result, err := handler(context.Background(), makeCallToolRequest("prioritize_tasks", map[string]interface{}{
		"query": "q",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "store down") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_GetTask(t *testing.T) {
	deps, _, store := testMCPDeps()
	store.recs["t1"] = task.Record{ID: "t1", Name: "found"}
	handler := mcpGetTask(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_task", map[string]interface{}{
		"id": "t1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var rec task.Record
	json.Unmarshal([]byte(toolText(t, result)), &rec)
	if rec.Name != "found" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestMCPTool_GetTask_NotFound(t *testing.T) {
	deps, _, _ := testMCPDeps()
	handler := mcpGetTask(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_task", map[string]interface{}{
		"id": "missing",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing task")
	}
}
