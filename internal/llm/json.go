package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a model response. Handles
// fenced code blocks and surrounding prose. Returns "" when no balanced
// object is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	// Strip a ```json / ``` fence if the whole response is fenced
	if strings.HasPrefix(response, "```") {
		if nl := strings.Index(response, "\n"); nl != -1 {
			body := response[nl+1:]
			if end := strings.LastIndex(body, "```"); end != -1 {
				response = strings.TrimSpace(body[:end])
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}
	return ""
}

// ParseJSON extracts and unmarshals the first JSON object in a model
// response into out.
func ParseJSON(response string, out any) error {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return errNoJSON
	}
	return json.Unmarshal([]byte(jsonStr), out)
}

type noJSONError struct{}

func (noJSONError) Error() string { return "no JSON object found in response" }

var errNoJSON = noJSONError{}
