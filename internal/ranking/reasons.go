package ranking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fallbackReasons substitutes for reasons the generator failed to produce or
// produced in a shape we could not parse.
var fallbackReasons = []string{"Relevance to query", "Task importance"}

// FallbackReasons returns a fresh copy of the fixed fallback reason list.
func FallbackReasons() []string {
	return append([]string(nil), fallbackReasons...)
}

// parseReasons extracts a list of reason strings from an LLM response.
// Models frequently wrap JSON in markdown code fences or prepend
// conversational filler, so the parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first [ and last ] to extract the JSON array
//  3. Attempts json.Unmarshal on the extracted substring
//
// Blank entries are dropped; an array with no usable entries is an error.
func parseReasons(resp string) ([]string, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var reasons []string
	if err := json.Unmarshal([]byte(s[start:end+1]), &reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}

	out := reasons[:0]
	for _, r := range reasons {
		if t := strings.TrimSpace(r); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable reasons in response")
	}
	return out, nil
}
