package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block some reasoning
// models emit before their answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON pulls the first JSON object or array out of a model reply that
// may wrap it in prose, markdown fences or a think block.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	candidates := [][2]byte{{'{', '}'}, {'[', ']'}}
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, pair := range candidates {
		if s, ok := balancedSpan(cleaned, pair[0], pair[1]); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", NewError(ErrorTypeResponse, "no valid JSON found in response", false, nil)
}

// balancedSpan returns the first open..close span with balanced nesting,
// ignoring brackets inside string literals.
func balancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, NewError(ErrorTypeResponse, "unmarshal JSON", false, err)
	}
	return result, nil
}
