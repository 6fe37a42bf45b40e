// Package stream decodes the newline-delimited JSON emitted by the Claude CLI
// in stream-json mode and by its session history files.
//
// Each line decodes into a [Record], a closed set of variants: [UserRecord],
// [AssistantRecord] and [OtherRecord]. Every record keeps its original
// top-level fields so that callers can re-emit it unchanged.
package stream

import (
	"encoding/json"
	"errors"
)

// Kind identifies the top-level "type" of a record.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindSystem    Kind = "system"
	KindResult    Kind = "result"
)

// ErrNotObject is returned when a line is valid JSON but not an object.
var ErrNotObject = errors.New("stream line is not a JSON object")

// Record is one decoded stream line.
type Record interface {
	// Kind returns the record's "type" field.
	Kind() Kind
	// Fields returns the original top-level fields. Callers must not mutate
	// the returned map.
	Fields() map[string]json.RawMessage
	// SessionID returns the "session_id" field, if present.
	SessionID() string
}

type base struct {
	kind      Kind
	sessionID string
	fields    map[string]json.RawMessage
}

func (b base) Kind() Kind                         { return b.kind }
func (b base) Fields() map[string]json.RawMessage { return b.fields }
func (b base) SessionID() string                  { return b.sessionID }

// UserRecord is a "user" line. Tool results appear in Message.Blocks.
type UserRecord struct {
	base
	Message Message

	// ResultAgentID is toolUseResult.agentId when it is a string. It is set
	// when a Task tool call returns the id of the sub-worker it launched.
	ResultAgentID string
}

// AssistantRecord is an "assistant" line.
type AssistantRecord struct {
	base
	Message Message
}

// OtherRecord is any line whose type is neither user nor assistant
// (system, result, and so on).
type OtherRecord struct {
	base
}

// Message is the "message" payload of user and assistant records.
type Message struct {
	Role string
	// Blocks holds the well-formed content blocks. Content that is not an
	// array, and array items that are not objects, are skipped.
	Blocks []ContentBlock
}

// ContentBlock is one item of message.content.
type ContentBlock struct {
	Type string `json:"type"`
	// Text is nil when the block has no string "text" field.
	Text      *string         `json:"-"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ParseLine decodes one NDJSON line. It returns an error for malformed JSON
// and ErrNotObject for JSON values that are not objects.
func ParseLine(line []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotObject
		}
		return nil, err
	}
	// "null" decodes into a nil map without error.
	if fields == nil {
		return nil, ErrNotObject
	}

	b := base{fields: fields}
	b.kind = Kind(stringField(fields, "type"))
	b.sessionID = stringField(fields, "session_id")

	switch b.kind {
	case KindUser:
		rec := &UserRecord{base: b, Message: decodeMessage(fields["message"])}
		rec.ResultAgentID = resultAgentID(fields["toolUseResult"])
		return rec, nil
	case KindAssistant:
		return &AssistantRecord{base: b, Message: decodeMessage(fields["message"])}, nil
	default:
		return &OtherRecord{base: b}, nil
	}
}

// stringField returns fields[key] when it is a JSON string.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func resultAgentID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return stringField(obj, "agentId")
}

func decodeMessage(raw json.RawMessage) Message {
	var m Message
	if len(raw) == 0 {
		return m
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return m
	}
	m.Role = stringField(obj, "role")

	var items []json.RawMessage
	if err := json.Unmarshal(obj["content"], &items); err != nil {
		return m
	}
	for _, item := range items {
		block, ok := decodeBlock(item)
		if ok {
			m.Blocks = append(m.Blocks, block)
		}
	}
	return m
}

func decodeBlock(raw json.RawMessage) (ContentBlock, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return ContentBlock{}, false
	}
	var block ContentBlock
	block.Type = stringField(obj, "type")
	block.ID = stringField(obj, "id")
	block.Name = stringField(obj, "name")
	block.ToolUseID = stringField(obj, "tool_use_id")
	block.Input = obj["input"]
	block.Content = obj["content"]
	if rawText, ok := obj["text"]; ok {
		var text string
		if err := json.Unmarshal(rawText, &text); err == nil {
			block.Text = &text
		}
	}
	if rawErr, ok := obj["is_error"]; ok {
		_ = json.Unmarshal(rawErr, &block.IsError)
	}
	return block, true
}

// ToolUses returns the tool_use blocks of the message.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}

// ToolResultIDs returns the tool_use_id of every tool_result block.
func (m Message) ToolResultIDs() []string {
	var out []string
	for _, b := range m.Blocks {
		if b.Type == "tool_result" && b.ToolUseID != "" {
			out = append(out, b.ToolUseID)
		}
	}
	return out
}
