// Package testutil provides testing utilities for questline tests.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/signal"
)

// StepID returns a deterministic step UUID for index n (1-based), e.g.
// StepID(1) == "00000000-0000-4000-8000-000000000001".
func StepID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// PendingStep creates a pending step depending on deps.
func PendingStep(id, name string, deps ...string) quest.Step {
	return quest.Step{
		ID:          id,
		Name:        name,
		Description: "Implement " + name,
		DependsOn:   deps,
		Status:      quest.StepPending,
	}
}

// WriteQuest saves a quest holding steps to a fresh temp file and returns
// its path.
func WriteQuest(t *testing.T, id string, steps ...quest.Step) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), id+".json")
	q := &quest.Quest{
		ID:        id,
		Title:     "Quest " + id,
		Status:    quest.QuestPending,
		CreatedAt: time.Now(),
		Steps:     steps,
	}
	if err := quest.NewStore().Save(path, q); err != nil {
		t.Fatalf("failed to write quest: %v", err)
	}
	return path
}

// LoadQuest loads the quest at path, failing the test on error.
func LoadQuest(t *testing.T, path string) *quest.Quest {
	t.Helper()
	q, err := quest.NewStore().Load(path)
	if err != nil {
		t.Fatalf("failed to load quest: %v", err)
	}
	return q
}

// Eventually polls cond every 10ms until it returns true, failing the test
// after timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v: %s", timeout, msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WriteFakeWorker writes an executable shell script that behaves like the
// Claude CLI in stream-json mode: it reads the prompt from stdin, prints an
// init record carrying a session id, one line of text, and a signal-back
// call for the step named on the prompt's "Step ID:" line. kind is the
// signal to send.
func WriteFakeWorker(t *testing.T, kind signal.Kind) string {
	t.Helper()
	SkipIfNoShell(t)

	script := strings.Join([]string{
		"#!/bin/sh",
		`step=$(sed -n 's/^Step ID: //p' | head -n 1)`,
		`session="sess-$step"`,
		`printf '{"type":"system","subtype":"init","session_id":"%s"}\n' "$session"`,
		`printf '{"type":"assistant","session_id":"%s","message":{"content":[{"type":"text","text":"working on %s"}]}}\n' "$session" "$step"`,
		`printf '{"type":"assistant","session_id":"%s","message":{"content":[{"type":"tool_use","id":"sig-1","name":"` +
			signal.DefaultToolName + `","input":{"signal":"` + string(kind) + `","stepId":"%s","summary":"done"}}]}}\n' "$session" "$step"`,
		"",
	}, "\n")

	path := filepath.Join(t.TempDir(), "fake-claude")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake worker: %v", err)
	}
	return path
}

// SkipIfNoShell skips the test if /bin/sh or sed is not installed.
func SkipIfNoShell(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"sh", "sed", "head"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}
