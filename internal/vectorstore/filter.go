package vectorstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// matches evaluates a filter against a row's scalar fields. Used by the
// sqlite and memory backends, which have no native predicate pushdown for
// the document-style fields this store keeps.
func (f Filter) matches(fields map[string]any) bool {
	for _, c := range f {
		if !c.matches(fields) {
			return false
		}
	}
	return true
}

func (c Condition) matches(fields map[string]any) bool {
	v, ok := fields[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", c.Value)
	case OpLt:
		return compareStrings(v, c.Value) < 0
	case OpGt:
		return compareStrings(v, c.Value) > 0
	case OpContains:
		return jsonArrayContains(v, fmt.Sprintf("%v", c.Value))
	default:
		return false
	}
}

// compareStrings orders two values lexicographically. Due dates are stored as
// ISO-8601 strings, so lexicographic order equals calendar order.
func compareStrings(a, b any) int {
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// jsonArrayContains reports whether v, a JSON-encoded string array, contains
// want. Non-array values never match.
func jsonArrayContains(v any, want string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return false
	}
	for _, it := range items {
		if strings.EqualFold(it, want) {
			return true
		}
	}
	return false
}

// Expr compiles the filter into a Milvus boolean expression string.
// An empty filter compiles to "" which Milvus treats as match-all.
func (f Filter) Expr() string {
	if len(f) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, c.expr())
	}
	return strings.Join(parts, " and ")
}

func (c Condition) expr() string {
	switch c.Op {
	case OpContains:
		// The field stores the JSON text of a string array. Matching the
		// quoted element keeps a tag like "urgent" from matching a row
		// tagged "non-urgent".
		return fmt.Sprintf(`%s like '%%"%v"%%'`, c.Field, c.Value)
	case OpEq, OpLt, OpGt:
		switch v := c.Value.(type) {
		case string:
			return fmt.Sprintf("%s %s %q", c.Field, c.Op, v)
		case bool:
			return fmt.Sprintf("%s %s %t", c.Field, c.Op, v)
		default:
			return fmt.Sprintf("%s %s %v", c.Field, c.Op, v)
		}
	default:
		return ""
	}
}
