// Package jsonx extracts JSON payloads from LLM responses that may wrap them
// in markdown fences or surrounding prose.
package jsonx

import "strings"

// ExtractObject returns the first JSON object found in response, preferring
// fenced code blocks, then falling back to balanced-brace scanning. Returns
// "" when no object is present.
func ExtractObject(response string) string {
	if s := fromFence(response, '{'); s != "" {
		return s
	}
	return balanced(response, '{', '}')
}

// ExtractArray is ExtractObject for top-level JSON arrays.
func ExtractArray(response string) string {
	if s := fromFence(response, '['); s != "" {
		return s
	}
	return balanced(response, '[', ']')
}

// fromFence pulls the contents of a ```json or plain ``` block when its
// payload starts with the wanted opener.
func fromFence(response string, open byte) string {
	lower := strings.ToLower(response)
	start := strings.Index(lower, "```json")
	offset := 7
	if start == -1 {
		start = strings.Index(response, "```")
		offset = 3
	}
	if start == -1 {
		return ""
	}
	body := response[start+offset:]
	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	content := strings.TrimSpace(body[:end])
	if len(content) > 0 && content[0] == open {
		return content
	}
	return ""
}

// balanced scans for the first balanced open..close run, skipping brackets
// inside string literals.
func balanced(s string, open, close byte) string {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			if depth == 0 {
				start = i
			}
			depth++
		case c == close:
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
