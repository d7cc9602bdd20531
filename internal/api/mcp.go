package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/taskrank/internal/ranking"
	"github.com/kalambet/taskrank/internal/task"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ranker     Ranker
	Summarizer Summarizer // optional; prioritize_tasks omits summaries when nil
	Tasks      TaskStore
}

// NewMCPServer creates an MCP server exposing task prioritization to
// MCP-capable clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"taskrank",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("taskrank — semantic task search and priority ranking over your task list."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("prioritize_tasks",
			mcp.WithDescription("Rank the tasks most relevant to a free-text query, highest priority first, with reasons."),
			mcp.WithString("query", mcp.Description("What to look for, in natural language"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Restrict results to tasks assigned to this user")),
			mcp.WithString("project_id", mcp.Description("Restrict results to one project")),
			mcp.WithBoolean("include_summary", mcp.Description("Also produce a prose summary of the result")),
		),
		mcpPrioritizeTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Fetch a single task by ID."),
			mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		),
		mcpGetTask(deps),
	)

	return s
}

func mcpPrioritizeTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		scope := ranking.Scope{
			UserID: req.GetString("user_id", ""),
			Filter: task.Filter{ProjectID: req.GetString("project_id", "")},
		}

		tasks, err := deps.Ranker.Rank(ctx, query, scope)
		if err != nil {
			return mcpError(fmt.Sprintf("ranking failed: %v", err)), nil
		}

		resp := PrioritizeResponse{Tasks: tasks}
		if req.GetBool("include_summary", false) && deps.Summarizer != nil {
			if summary, err := deps.Summarizer.Summarize(ctx, query, tasks); err == nil {
				resp.Summary = summary
			}
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Tasks.Get(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("task %s: %v", id, err)), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal task: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
