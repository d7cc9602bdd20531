package task

import (
	"strings"
	"testing"
)

func TestHasTag(t *testing.T) {
	r := Record{Tags: []string{"Urgent", "infra"}}
	if !r.HasTag("urgent") {
		t.Error("HasTag must be case-insensitive")
	}
	if r.HasTag("billing") {
		t.Error("HasTag(billing) = true")
	}
	if (Record{}).HasTag("urgent") {
		t.Error("empty record has no tags")
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name   string
		fields []CustomField
		want   int
	}{
		{"no fields", nil, 0},
		{"numeric priority", []CustomField{{Name: "Priority", Value: "3"}}, 3},
		{"name match is case-insensitive", []CustomField{{Name: "task priority level", Value: "7"}}, 7},
		{"non-numeric value", []CustomField{{Name: "Priority", Value: "High"}}, 0},
		{"unrelated field", []CustomField{{Name: "Team", Value: "5"}}, 0},
		{"first priority field wins", []CustomField{
			{Name: "Priority", Value: "2"},
			{Name: "Old priority", Value: "9"},
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Record{CustomFields: tt.fields}).Priority(); got != tt.want {
				t.Errorf("Priority() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDue(t *testing.T) {
	if _, ok := (Record{}).Due(); ok {
		t.Error("empty due date parsed")
	}
	if _, ok := (Record{DueDate: "tomorrow"}).Due(); ok {
		t.Error("garbage due date parsed")
	}
	due, ok := (Record{DueDate: "2026-09-03"}).Due()
	if !ok {
		t.Fatal("valid due date rejected")
	}
	if due.Format(DateLayout) != "2026-09-03" {
		t.Errorf("due = %v", due)
	}
}

func TestEmbeddingText(t *testing.T) {
	r := Record{
		Name:        "Ship billing migration",
		Description: "Move invoices over",
		Tags:        []string{"urgent", "billing"},
		CustomFields: []CustomField{
			{Name: "Priority", Value: "High"},
			{Name: "Estimate", Value: ""},
		},
	}
	got := r.EmbeddingText()
	for _, want := range []string{
		"Ship billing migration",
		"Move invoices over",
		"Tags: urgent, billing",
		"Priority: High",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "Estimate") {
		t.Error("empty custom field values must be skipped")
	}

	if got := (Record{Name: "just a name"}).EmbeddingText(); got != "just a name" {
		t.Errorf("minimal record text = %q", got)
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("zero filter reported non-zero")
	}
	done := false
	for _, f := range []Filter{
		{ProjectID: "p"},
		{AssigneeID: "u"},
		{DueBefore: "2026-01-01"},
		{DueAfter: "2026-01-01"},
		{Completed: &done},
		{Tags: []string{"x"}},
	} {
		if f.IsZero() {
			t.Errorf("filter %+v reported zero", f)
		}
	}
}
