package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseLine_Variants(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind Kind
	}{
		{"user", `{"type":"user","message":{"role":"user","content":[]}}`, KindUser},
		{"assistant", `{"type":"assistant","message":{"role":"assistant","content":[]}}`, KindAssistant},
		{"system", `{"type":"system","subtype":"init","session_id":"s-1"}`, KindSystem},
		{"result", `{"type":"result","result":"done"}`, KindResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseLine([]byte(tt.line))
			if err != nil {
				t.Fatalf("ParseLine: %v", err)
			}
			if rec.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", rec.Kind(), tt.kind)
			}
		})
	}
}

func TestParseLine_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		notObject bool
	}{
		{"invalid json", `{not json`, false},
		{"truncated", `{"type":"assistant"`, false},
		{"null", `null`, true},
		{"number", `42`, true},
		{"string", `"just a string"`, true},
		{"array", `[1,2]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine([]byte(tt.line))
			if err == nil {
				t.Fatal("ParseLine() error = nil, want error")
			}
			if got := errors.Is(err, ErrNotObject); got != tt.notObject {
				t.Errorf("errors.Is(err, ErrNotObject) = %v, want %v (err=%v)", got, tt.notObject, err)
			}
		})
	}
}

func TestParseLine_UserResultAgentID(t *testing.T) {
	line := `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"done"}]},"toolUseResult":{"agentId":"agent-abc"}}`
	rec, err := ParseLine([]byte(line))
	if err != nil {
		t.Fatal(err)
	}
	u, ok := rec.(*UserRecord)
	if !ok {
		t.Fatalf("record type = %T, want *UserRecord", rec)
	}
	if u.ResultAgentID != "agent-abc" {
		t.Errorf("ResultAgentID = %q, want %q", u.ResultAgentID, "agent-abc")
	}
	ids := u.Message.ToolResultIDs()
	if len(ids) != 1 || ids[0] != "toolu_1" {
		t.Errorf("ToolResultIDs() = %v, want [toolu_1]", ids)
	}

	numeric := `{"type":"user","message":{"role":"user","content":[]},"toolUseResult":{"agentId":123}}`
	rec, _ = ParseLine([]byte(numeric))
	if got := rec.(*UserRecord).ResultAgentID; got != "" {
		t.Errorf("numeric agentId: ResultAgentID = %q, want empty", got)
	}
}

func TestParseLine_TolerantContent(t *testing.T) {
	line := `{"type":"assistant","message":{"role":"assistant","content":[null,"x",{"type":"text","text":123},{"type":"tool_use","id":"t1","name":"Task","input":{}}]}}`
	rec, err := ParseLine([]byte(line))
	if err != nil {
		t.Fatal(err)
	}
	a := rec.(*AssistantRecord)
	if len(a.Message.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(a.Message.Blocks))
	}
	if a.Message.Blocks[0].Text != nil {
		t.Error("non-string text should decode to nil Text")
	}
	uses := a.Message.ToolUses()
	if len(uses) != 1 || uses[0].Name != "Task" || uses[0].ID != "t1" {
		t.Errorf("ToolUses() = %+v", uses)
	}

	notArray := `{"type":"assistant","message":{"role":"assistant","content":"not an array"}}`
	rec, _ = ParseLine([]byte(notArray))
	if n := len(rec.(*AssistantRecord).Message.Blocks); n != 0 {
		t.Errorf("non-array content: len(Blocks) = %d, want 0", n)
	}
}

func TestParseLine_PreservesFields(t *testing.T) {
	rec, err := ParseLine([]byte(`{"type":"system","subtype":"init","session_id":"abc","cwd":"/tmp"}`))
	if err != nil {
		t.Fatal(err)
	}
	if rec.SessionID() != "abc" {
		t.Errorf("SessionID() = %q, want %q", rec.SessionID(), "abc")
	}
	if string(rec.Fields()["cwd"]) != `"/tmp"` {
		t.Errorf("Fields()[cwd] = %s, want \"/tmp\"", rec.Fields()["cwd"])
	}
}

func TestReadLines(t *testing.T) {
	input := "a\n\nb\nc\n"
	var got []string
	err := ReadLines(context.Background(), strings.NewReader(input), func(line []byte) error {
		got = append(got, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("lines = %v, want [a b c]", got)
	}

	stop := errors.New("stop")
	n := 0
	err = ReadLines(context.Background(), strings.NewReader(input), func([]byte) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("ReadLines with callback error = (%v, %d calls), want (stop, 1)", err, n)
	}
}
