package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/event"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", FileName)
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("journal file not created: %v", err)
	}
}

func TestAttach_RecordsRunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	bus := event.NewBus()
	detach := j.Attach(bus)

	bus.Publish(event.NewQuestStartedEvent("run-1", "add-auth", "/q/add-auth.json", "Add auth", 3))
	bus.Publish(event.NewStepUpdatedEvent("run-1", "step-a", "in_progress", "", ""))
	bus.Publish(event.NewWorkerOutputEvent("step-a", 0, []byte(`{"type":"assistant"}`)))
	bus.Publish(event.NewChatLineEvent("sess-1", json.RawMessage(`{"type":"entry"}`)))
	bus.Publish(event.NewWorkerSettledEvent("run-1", "step-a", 0, "sess-1", "complete", false, false, 0))
	bus.Publish(event.NewQuestFinishedEvent("run-1", "add-auth", event.OutcomeCompleted, nil, ""))
	detach()
	bus.Publish(event.NewStepUpdatedEvent("run-1", "step-b", "in_progress", "", ""))

	run, err := j.Run("run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.QuestID != "add-auth" || run.Title != "Add auth" || run.SlotCount != 3 {
		t.Errorf("run = %+v, want quest add-auth, title Add auth, 3 slots", run)
	}
	if !run.Finished() {
		t.Error("Finished() = false, want true")
	}
	if run.Outcome != string(event.OutcomeCompleted) {
		t.Errorf("Outcome = %q, want %q", run.Outcome, event.OutcomeCompleted)
	}

	entries, err := j.Events("run-1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	want := []string{
		event.TypeQuestStarted,
		event.TypeStepUpdated,
		event.TypeWorkerSettled,
		event.TypeQuestFinished,
	}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, typ := range want {
		if entries[i].Type != typ {
			t.Errorf("entries[%d].Type = %q, want %q", i, entries[i].Type, typ)
		}
		if entries[i].RunID != "run-1" {
			t.Errorf("entries[%d].RunID = %q, want run-1", i, entries[i].RunID)
		}
	}

	var settled struct {
		SessionID string `json:"sessionId"`
		Signal    string `json:"signal"`
	}
	if err := json.Unmarshal(entries[2].Data, &settled); err != nil {
		t.Fatalf("unmarshal settled data: %v", err)
	}
	if settled.SessionID != "sess-1" || settled.Signal != "complete" {
		t.Errorf("settled = %+v, want sess-1/complete", settled)
	}
}

func TestRecord_WithoutRunID(t *testing.T) {
	j := openTestJournal(t)
	err := j.Record(event.NewWorkerOutputEvent("step-a", 0, []byte(`{}`)))
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Record() error = %v, want *ValidationError", err)
	}
}

func TestRecord_EventBeforeStart(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Record(event.NewStepUpdatedEvent("run-x", "step-a", "failed", "", "")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	run, err := j.Run("run-x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Finished() {
		t.Error("Finished() = true, want false")
	}
}

func TestRuns_MostRecentFirst(t *testing.T) {
	j := openTestJournal(t)
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if err := j.Record(event.NewQuestStartedEvent(id, "q", "/q.json", "Q", 1)); err != nil {
			t.Fatalf("Record(%s): %v", id, err)
		}
	}

	runs, err := j.Runs(0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Errorf("runs[%d] started after runs[%d]", i, i-1)
		}
	}

	limited, err := j.Runs(2)
	if err != nil {
		t.Fatalf("Runs(2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(Runs(2)) = %d, want 2", len(limited))
	}
}

func TestRun_NotFound(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.Run("nope")
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Run(nope) error = %v, want *NotFoundError", err)
	}
}
