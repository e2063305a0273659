package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONFound is returned when no valid JSON object is found in the input
var ErrNoJSONFound = errors.New("no valid JSON object found in response")

// extractStrategy attempts to pull a valid JSON document out of raw LLM text.
// Returns ("", false) when the strategy does not apply.
type extractStrategy func(s string) (string, bool)

// strategies are tried in order; the first success wins.
var strategies = []extractStrategy{
	directParse,
	fencedParse,
	bracketParse,
}

// ExtractJSON extracts valid JSON from an LLM response that may contain
// markdown fences, prose, or other garbage around the payload.
func ExtractJSON(response string) (string, error) {
	if strings.TrimSpace(response) == "" {
		return "", ErrNoJSONFound
	}

	for _, strategy := range strategies {
		if jsonStr, ok := strategy(response); ok {
			return jsonStr, nil
		}
	}

	return "", fmt.Errorf("%w: response length=%d", ErrNoJSONFound, len(response))
}

// ExtractJSONTo extracts JSON from response and unmarshals it into target
func ExtractJSONTo(response string, target interface{}) error {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(jsonStr), target)
}

// directParse accepts the trimmed response when it is already valid JSON
func directParse(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if json.Valid([]byte(s)) {
		return s, true
	}
	return "", false
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// fencedParse strips markdown code fences and retries the direct parse
func fencedParse(s string) (string, bool) {
	s = strings.TrimSpace(s)

	if matches := fenceRe.FindStringSubmatch(s); len(matches) > 1 {
		inner := strings.TrimSpace(matches[1])
		if json.Valid([]byte(inner)) {
			return inner, true
		}
	}

	// Unterminated fences: trim the markers manually
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	if json.Valid([]byte(s)) {
		return s, true
	}
	return "", false
}

// bracketParse scans for balanced {...} candidates and accepts the first valid
// one. Candidates containing a "scores" key are preferred so that a stray
// example object in the prose does not shadow the real payload.
func bracketParse(s string) (string, bool) {
	var fallback string

	for offset := 0; offset < len(s); {
		start := strings.Index(s[offset:], "{")
		if start == -1 {
			break
		}
		start += offset

		candidate := balancedObject(s, start)
		if candidate == "" {
			break
		}

		if json.Valid([]byte(candidate)) {
			if strings.Contains(candidate, `"scores"`) {
				return candidate, true
			}
			if fallback == "" {
				fallback = candidate
			}
		}

		offset = start + len(candidate)
	}

	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// balancedObject returns the brace-balanced substring starting at start, or ""
// when the braces never close. String literals and escapes are respected.
func balancedObject(s string, start int) string {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
