package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/taskrank/internal/task"
)

type mockCompleter struct {
	resp       string
	err        error
	lastPrompt string
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.lastPrompt = prompt
	return m.resp, m.err
}

func ranked(name, due string, reasons ...string) task.RankedTask {
	return task.RankedTask{
		Record:          task.Record{ID: name, Name: name, DueDate: due},
		PriorityReasons: reasons,
	}
}

func TestSummarize(t *testing.T) {
	gen := &mockCompleter{resp: "  Start with the billing migration, it is overdue.\n"}
	g := New(gen)

	got, err := g.Summarize(context.Background(), "what first?", []task.RankedTask{
		ranked("Billing migration", "2026-08-30", "Overdue by 2 days", "Urgent"),
		ranked("Write retro notes", "", "Due soon"),
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Start with the billing migration, it is overdue." {
		t.Errorf("got %q", got)
	}

	for _, want := range []string{
		`"what first?"`,
		"1. Billing migration (due 2026-08-30) - Overdue by 2 days; Urgent",
		"2. Write retro notes",
	} {
		if !strings.Contains(gen.lastPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.lastPrompt)
		}
	}
}

func TestSummarize_EmptyTasks(t *testing.T) {
	gen := &mockCompleter{err: errors.New("should not be called")}
	g := New(gen)

	got, err := g.Summarize(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(got, "No relevant tasks found") {
		t.Errorf("got %q", got)
	}
	if gen.lastPrompt != "" {
		t.Error("empty result must not call the model")
	}
}

func TestSummarize_ModelFailure(t *testing.T) {
	g := New(&mockCompleter{err: errors.New("offline")})
	if _, err := g.Summarize(context.Background(), "q", []task.RankedTask{ranked("x", "")}); err == nil {
		t.Fatal("expected error")
	}
}
