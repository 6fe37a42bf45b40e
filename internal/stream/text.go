package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Text returns the concatenated text blocks of an assistant record. The
// second result is false when rec is not an assistant record or carries no
// text block at all; an empty text block yields ("", true).
func Text(rec Record) (string, bool) {
	a, ok := rec.(*AssistantRecord)
	if !ok {
		return "", false
	}
	var sb strings.Builder
	found := false
	for _, b := range a.Message.Blocks {
		if b.Type != "text" || b.Text == nil {
			continue
		}
		found = true
		sb.WriteString(*b.Text)
	}
	return sb.String(), found
}

// TextOfLine parses line and returns its assistant text. Malformed lines and
// non-assistant records yield ("", false).
func TextOfLine(line []byte) (string, bool) {
	rec, err := ParseLine(line)
	if err != nil {
		return "", false
	}
	return Text(rec)
}

// SessionIDOfLine returns the session_id carried by line, if any.
func SessionIDOfLine(line []byte) (string, bool) {
	rec, err := ParseLine(line)
	if err != nil {
		return "", false
	}
	id := rec.SessionID()
	return id, id != ""
}

// Render formats a record as human-readable lines for terminal output.
// Assistant text is printed as is, tool calls as "[tool] name input", tool
// results as "[result] id". Other records render to nothing.
func Render(rec Record) []string {
	var out []string
	switch r := rec.(type) {
	case *AssistantRecord:
		for _, b := range r.Message.Blocks {
			switch b.Type {
			case "text":
				if b.Text != nil && *b.Text != "" {
					out = append(out, *b.Text)
				}
			case "tool_use":
				out = append(out, fmt.Sprintf("[%s] %s", b.Name, compactJSON(b.Input, 120)))
			}
		}
	case *UserRecord:
		for _, id := range r.Message.ToolResultIDs() {
			if r.ResultAgentID != "" {
				out = append(out, fmt.Sprintf("[result] %s (agent %s)", id, r.ResultAgentID))
				continue
			}
			out = append(out, fmt.Sprintf("[result] %s", id))
		}
	}
	return out
}

// compactJSON renders raw on one line, truncated to limit runes.
func compactJSON(raw json.RawMessage, limit int) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	s := []rune(string(data))
	if len(s) > limit {
		return string(s[:limit]) + "..."
	}
	return string(s)
}
