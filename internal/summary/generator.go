// Package summary produces the optional natural-language overview of a
// ranking result.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/taskrank/internal/task"
)

// Completer produces free-text completions.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator composes a short prose summary of ranked tasks.
type Generator struct {
	gen Completer
}

// New creates a Generator over the given completer.
func New(gen Completer) *Generator {
	return &Generator{gen: gen}
}

// Summarize returns a brief summary of the ranked tasks in the context of
// the user's query. An empty task list summarizes without calling the model.
func (g *Generator) Summarize(ctx context.Context, query string, tasks []task.RankedTask) (string, error) {
	if len(tasks) == 0 {
		return fmt.Sprintf("No relevant tasks found for: %q. Try different search terms.", query), nil
	}

	resp, err := g.gen.Complete(ctx, summaryPrompt(query, tasks))
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

func summaryPrompt(query string, tasks []task.RankedTask) string {
	var b strings.Builder
	b.WriteString("The user asked: ")
	fmt.Fprintf(&b, "%q", query)
	b.WriteString("\nThese tasks matched, highest priority first:\n")
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. %s", i+1, t.Name)
		if t.DueDate != "" {
			fmt.Fprintf(&b, " (due %s)", t.DueDate)
		}
		if len(t.PriorityReasons) > 0 {
			fmt.Fprintf(&b, " - %s", strings.Join(t.PriorityReasons, "; "))
		}
		b.WriteString("\n")
	}
	b.WriteString("Write a brief summary advising the user what to work on and in what order. Plain prose, no lists.")
	return b.String()
}
