package stream

import "testing"

func TestTextOfLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   string
		wantOK bool
	}{
		{
			name:   "single text",
			line:   `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Hello from Claude"}]}}`,
			want:   "Hello from Claude",
			wantOK: true,
		},
		{
			name:   "multiple text blocks concatenated",
			line:   `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Hello "},{"type":"text","text":"World"}]}}`,
			want:   "Hello World",
			wantOK: true,
		},
		{
			name:   "mixed content keeps only text",
			line:   `{"type":"assistant","message":{"content":[{"type":"text","text":"Before tool "},{"type":"tool_use","id":"t","name":"x","input":{}},{"type":"text","text":"after tool"}]}}`,
			want:   "Before tool after tool",
			wantOK: true,
		},
		{
			name:   "empty text block",
			line:   `{"type":"assistant","message":{"content":[{"type":"text","text":""}]}}`,
			want:   "",
			wantOK: true,
		},
		{
			name:   "multiline",
			line:   `{"type":"assistant","message":{"content":[{"type":"text","text":"Line 1\nLine 2"}]}}`,
			want:   "Line 1\nLine 2",
			wantOK: true,
		},
		{name: "null", line: `null`},
		{name: "primitive", line: `"just a string"`},
		{name: "no type", line: `{"message":{"content":[]}}`},
		{name: "system", line: `{"type":"system","message":"Hello"}`},
		{name: "only tool calls", line: `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t","name":"x","input":{}}]}}`},
		{name: "no content", line: `{"type":"assistant","message":{"role":"assistant"}}`},
		{name: "null message", line: `{"type":"assistant","message":null}`},
		{name: "no message", line: `{"type":"assistant"}`},
		{name: "empty content", line: `{"type":"assistant","message":{"content":[]}}`},
		{name: "text without text", line: `{"type":"assistant","message":{"content":[{"type":"text"}]}}`},
		{name: "invalid json", line: `{oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TextOfLine([]byte(tt.line))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("TextOfLine() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSessionIDOfLine(t *testing.T) {
	id, ok := SessionIDOfLine([]byte(`{"type":"system","subtype":"init","session_id":"9c4e"}`))
	if !ok || id != "9c4e" {
		t.Errorf("SessionIDOfLine() = (%q, %v), want (9c4e, true)", id, ok)
	}
	if _, ok := SessionIDOfLine([]byte(`{"type":"system"}`)); ok {
		t.Error("SessionIDOfLine() without session_id should report false")
	}
	if _, ok := SessionIDOfLine([]byte(`{"type":"system","session_id":7}`)); ok {
		t.Error("SessionIDOfLine() with numeric session_id should report false")
	}
}

func TestRender(t *testing.T) {
	rec, err := ParseLine([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"Working"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"a.go"}}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	lines := Render(rec)
	if len(lines) != 2 {
		t.Fatalf("len(Render()) = %d, want 2", len(lines))
	}
	if lines[0] != "Working" {
		t.Errorf("lines[0] = %q, want %q", lines[0], "Working")
	}
	if lines[1] != `[Read] {"file_path":"a.go"}` {
		t.Errorf("lines[1] = %q", lines[1])
	}

	rec, _ = ParseLine([]byte(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1"}]},"toolUseResult":{"agentId":"a1"}}`))
	lines = Render(rec)
	if len(lines) != 1 || lines[0] != "[result] t1 (agent a1)" {
		t.Errorf("Render(user) = %v", lines)
	}
}
