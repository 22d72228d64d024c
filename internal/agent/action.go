package agent

import (
	"encoding/json"
	"strings"
)

// Action types the model may emit.
const (
	ActionTool  = "tool"
	ActionFinal = "final"
)

// Action is one decision decoded from the model's output: either a
// tool invocation or the final answer.
type Action struct {
	Type    string          `json:"type"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content string          `json:"content,omitempty"`
}

// ExtractAction pulls the first balanced JSON object out of raw model
// output and decodes it as an Action. Models wrap JSON in prose or
// code fences, so the scanner finds the first '{' and walks to its
// matching '}' while tracking string literals and escapes. Returns nil
// when no decodable action is present.
func ExtractAction(raw string) *Action {
	candidate := extractJSONObject(raw)
	if candidate == "" {
		return nil
	}

	var action Action
	if err := json.Unmarshal([]byte(candidate), &action); err != nil {
		return nil
	}
	if action.Type == "" {
		return nil
	}
	// Models vary the casing of the type field; match it loosely.
	action.Type = strings.ToLower(action.Type)

	// A tool call carries a name and never final content; a final answer
	// carries content and never a tool name. Mixed objects are treated
	// as parse failures. Unknown types pass through for the loop to
	// reject by name.
	switch action.Type {
	case ActionTool:
		if action.Name == "" || action.Content != "" {
			return nil
		}
	case ActionFinal:
		if action.Name != "" || len(action.Input) > 0 {
			return nil
		}
	}
	return &action
}

// extractJSONObject returns the first brace-balanced object in raw, or
// "" when none terminates.
func extractJSONObject(raw string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch c {
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
					return raw[start : i+1]
				}
			}
		}
	}
	return ""
}
