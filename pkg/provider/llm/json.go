package llm

import (
	"encoding/json"
	"strings"
)

// StripCodeFence removes a leading ```json (or bare ```) line and a trailing
// ``` from s. Text without a fence is returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeJSON unmarshals a model reply into v after removing a surrounding
// markdown code fence.
func DecodeJSON(content string, v any) error {
	return json.Unmarshal([]byte(StripCodeFence(content)), v)
}
