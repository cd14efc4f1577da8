package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONSpan returns the outermost brace-delimited span of s. The second
// return is false when s contains no such span; replies without one are
// clarifying questions, not plans.
func ExtractJSONSpan(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// RepairJSON applies the one tolerated transformation to almost-valid JSON:
// removing trailing commas before a closing brace or bracket. Anything else
// wrong with the input is left for the decoder to reject, so repair never
// masks a genuinely malformed plan. Null optional fields are handled by
// pointer-free struct decoding, not here.
func RepairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}

		if c == ',' {
			// Drop the comma if the next non-whitespace byte closes a
			// container.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}

		b.WriteByte(c)
	}

	return b.String()
}

// ParsePlan extracts, repairs, decodes, and validates a plan from raw model
// output. The caller distinguishes "no span" (question) from a parse or
// validation failure (error) via ExtractJSONSpan before calling this.
func ParsePlan(raw string) (*OrchestrationPlan, error) {
	span, ok := ExtractJSONSpan(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var p OrchestrationPlan
	if err := json.Unmarshal([]byte(RepairJSON(span)), &p); err != nil {
		return nil, fmt.Errorf("plan JSON decode failed: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("plan validation failed: %w", err)
	}
	return &p, nil
}
