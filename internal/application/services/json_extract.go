package services

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object found in model answer")

// extractJSONObject returns the first balanced {...} span of text that is
// valid JSON. Prose and markdown fences around the object are ignored.
func extractJSONObject(text string) ([]byte, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedObjectEnd(text, start); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return []byte(candidate), nil
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errNoJSONObject
}

// balancedObjectEnd returns the index of the brace closing the object opened
// at start, or -1. Braces inside string literals do not count.
func balancedObjectEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
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

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
