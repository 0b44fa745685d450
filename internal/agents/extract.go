package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON unmarshals a model response into out, tolerating markdown code
// fences around the JSON payload.
func ExtractJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	fenced := stripCodeFences(text)
	if err := json.Unmarshal([]byte(fenced), out); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	return nil
}

func stripCodeFences(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	} else {
		return s
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
