package task

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for due dates. Due dates carry
// no time-of-day component; they are compared at day granularity.
const DateLayout = "2006-01-02"

// CustomField is a single custom field attached to a task, in the order the
// external task source reports them.
type CustomField struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Record is a unit of work to be prioritized. Records are created on
// ingestion from the external task source and mutated on re-sync; the core
// never deletes them.
type Record struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	DueDate      string        `json:"due_date,omitempty"` // DateLayout, empty when unset
	ProjectID    string        `json:"project_id,omitempty"`
	AssigneeID   string        `json:"assignee_id,omitempty"`
	Workspace    string        `json:"workspace,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
	Completed    bool          `json:"completed"`
	CreatedAt    time.Time     `json:"created_at"`
	ModifiedAt   time.Time     `json:"modified_at"`
}

// HasTag reports whether the record carries the given tag (case-insensitive).
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Priority returns the numeric value of the first custom field whose name
// mentions priority, or 0 when there is none or its value is not a number.
func (r Record) Priority() int {
	for _, cf := range r.CustomFields {
		if !strings.Contains(strings.ToLower(cf.Name), "priority") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(cf.Value))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Due parses the record's due date. ok is false when no due date is set or
// the stored value does not parse.
func (r Record) Due() (t time.Time, ok bool) {
	if r.DueDate == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(DateLayout, r.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// EmbeddingText returns the canonical text the record's embedding is derived
// from. The embedding is a cached value: it must be recomputed whenever the
// output of this function changes.
func (r Record) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Description != "" {
		b.WriteString("\n")
		b.WriteString(r.Description)
	}
	if len(r.Tags) > 0 {
		b.WriteString("\nTags: ")
		b.WriteString(strings.Join(r.Tags, ", "))
	}
	for _, cf := range r.CustomFields {
		if cf.Value == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(cf.Name)
		b.WriteString(": ")
		b.WriteString(cf.Value)
	}
	return b.String()
}

// RankedTask is a Record plus the derived priority fields produced by the
// ranking engine. Created fresh per ranking request; never persisted.
type RankedTask struct {
	Record
	PriorityScore   float64  `json:"priority_score"`
	PriorityReasons []string `json:"priority_reasons"`
}

// Filter is a conjunction of optional predicates restricting which records
// are eligible for a search. The zero Filter matches every record.
type Filter struct {
	ProjectID  string   `json:"project_id,omitempty"`
	AssigneeID string   `json:"assignee_id,omitempty"`
	DueBefore  string   `json:"due_before,omitempty"` // DateLayout, exclusive
	DueAfter   string   `json:"due_after,omitempty"`  // DateLayout, exclusive
	Completed  *bool    `json:"completed,omitempty"`
	Tags       []string `json:"tags,omitempty"` // record must carry every listed tag
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return f.ProjectID == "" && f.AssigneeID == "" && f.DueBefore == "" &&
		f.DueAfter == "" && f.Completed == nil && len(f.Tags) == 0
}
