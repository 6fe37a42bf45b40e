package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleLog = `{"time":"2026-01-02T10:00:02Z","level":"INFO","msg":"worker settled","quest_id":"q1","step_id":"s1","phase":"settle","signal":"complete"}
not json
{"time":"2026-01-02T10:00:01Z","level":"DEBUG","msg":"dispatch","quest_id":"q1","step_id":"s1","phase":"dispatch"}

{"time":"2026-01-02T10:00:03Z","level":"ERROR","msg":"spawn failed","quest_id":"q1","step_id":"s2"}
`

func TestParseLogs(t *testing.T) {
	entries, err := ParseLogs(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Message != "dispatch" {
		t.Errorf("first entry = %q, want dispatch (sorted by time)", entries[0].Message)
	}
	if entries[1].Attrs["signal"] != "complete" {
		t.Errorf("attrs = %v, want signal=complete", entries[1].Attrs)
	}
	if entries[1].StepID != "s1" || entries[1].Phase != "settle" {
		t.Errorf("entry = %+v", entries[1])
	}
}

func TestFilterLogs(t *testing.T) {
	entries, err := ParseLogs(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"empty", LogFilter{}, 3},
		{"level info", LogFilter{Level: "info"}, 2},
		{"step", LogFilter{StepID: "s2"}, 1},
		{"phase", LogFilter{Phase: "dispatch"}, 1},
		{"message", LogFilter{MessageContains: "settled"}, 1},
		{"quest mismatch", LogFilter{QuestID: "other"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(FilterLogs(entries, tt.filter)); got != tt.want {
				t.Errorf("FilterLogs() returned %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadLogs(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadLogs(dir); err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadLogs(empty dir) error = %v, want not-exist", err)
	}

	if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := ReadLogs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
	if line := FormatText(entries[2]); !strings.Contains(line, "spawn failed") || !strings.Contains(line, "step=s2") {
		t.Errorf("FormatText() = %q", line)
	}
}
