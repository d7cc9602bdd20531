package ranking

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/taskrank/internal/task"
)

// Structural score contributions. Due-date urgency dominates, tags adjust,
// custom fields nudge.
const (
	scoreOverdue      = 100
	scoreDueToday     = 90
	scoreDueTwoDays   = 80
	scoreDueSoon      = 70
	scoreDistantBase  = 60
	scoreTagUrgent    = 100
	scoreTagHighPrio  = 50
	scoreTagBlocked   = -30
	scoreCustomField  = 40
	distantDueHorizon = 7
)

// scoreStructural computes the deterministic priority score and its reasons
// for one record. Contributions are additive; fired reasons append in rule
// order: due date, tags, custom fields. Pure given the record and today's
// date.
func scoreStructural(rec task.Record, today time.Time) (float64, []string) {
	var score float64
	var reasons []string

	if due, ok := rec.Due(); ok {
		d := daysUntil(due, today)
		switch {
		case d < 0:
			score += scoreOverdue
			reasons = append(reasons, fmt.Sprintf("Overdue by %d days", -d))
		case d == 0:
			score += scoreDueToday
			reasons = append(reasons, "Due today")
		case d <= 2:
			score += scoreDueTwoDays
			reasons = append(reasons, "Due in next 2 days")
		case d <= distantDueHorizon:
			score += scoreDueSoon
			reasons = append(reasons, "Due soon")
		default:
			score += max(0, float64(scoreDistantBase-d))
		}
	}

	if rec.HasTag("urgent") {
		score += scoreTagUrgent
		reasons = append(reasons, "Urgent")
	} else if rec.HasTag("high-priority") {
		score += scoreTagHighPrio
		reasons = append(reasons, "High priority task")
	}
	if rec.HasTag("blocked") {
		score += scoreTagBlocked
		reasons = append(reasons, "Task is blocked")
	}

	for _, cf := range rec.CustomFields {
		if strings.Contains(strings.ToLower(cf.Name), "priority") &&
			strings.Contains(strings.ToLower(cf.Value), "high") {
			score += scoreCustomField
			reasons = append(reasons, "High priority custom field")
			break
		}
	}

	return score, reasons
}

// daysUntil returns the whole days from today until due, negative when due
// is in the past. Both times are compared at day granularity in UTC.
func daysUntil(due, today time.Time) int {
	d := startOfDay(due).Sub(startOfDay(today))
	return int(d / (24 * time.Hour))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalizeSimilarity maps a cosine similarity in [-1, 1] onto [0, 1] so the
// similarity-only strategy reports scores on a stable scale.
func normalizeSimilarity(s float32) float64 {
	return (float64(s) + 1) / 2
}
