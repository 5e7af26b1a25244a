package docgen

import (
	"encoding/json"
	"strings"
)

// ParseStructuredPayload extracts a JSON object from an orchestrator
// response, accepting either a fenced code block or raw JSON. Returns false
// when nothing parses; callers treat that as non-fatal.
func ParseStructuredPayload(text string) (map[string]any, bool) {
	candidate := strings.TrimSpace(text)

	if fenced, ok := extractFencedBlock(candidate); ok {
		candidate = fenced
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// extractFencedBlock returns the contents of the first ``` fenced block,
// tolerating a language tag after the opening fence.
func extractFencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]

	// skip a language tag like "json" up to the first newline
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
