// Package internal contains integration tests that run a quest end to end
// through a real worker process, the event bus, the journal, and the
// websocket feed.
package internal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/broadcast"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/journal"
	"github.com/Iron-Ham/questline/internal/orchestrator"
	"github.com/Iron-Ham/questline/internal/prompt"
	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/signal"
	"github.com/Iron-Ham/questline/internal/testutil"
)

func newSpawner(t *testing.T, kind signal.Kind) *agent.ClaudeSpawner {
	t.Helper()
	return &agent.ClaudeSpawner{
		Command:    testutil.WriteFakeWorker(t, kind),
		SignalTool: signal.DefaultToolName,
		Prompts:    prompt.NewResolver(),
	}
}

// TestQuestRun_EndToEnd runs a two-step quest where the second step depends
// on the first, with every observer attached.
func TestQuestRun_EndToEnd(t *testing.T) {
	spawner := newSpawner(t, signal.Complete)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stepA, stepB := testutil.StepID(1), testutil.StepID(2)
	path := testutil.WriteQuest(t, "add-auth",
		testutil.PendingStep(stepA, "Create user model"),
		testutil.PendingStep(stepB, "Add login endpoint", stepA),
	)

	bus := event.NewBus()

	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()
	defer j.Attach(bus)()

	relay := broadcast.NewChatRelay(bus)
	defer relay.Attach()()

	hub := broadcast.NewHub()
	defer hub.Attach(bus)()
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "test finished")
	testutil.Eventually(t, 5*time.Second, func() bool { return hub.Clients() == 1 }, "hub never registered the client")

	orch := orchestrator.New(quest.NewStore(), spawner, orchestrator.Options{
		SlotCount: 2,
		WorkDir:   t.TempDir(),
	})
	orch.SetEventBus(bus)

	res, err := orch.Run(ctx, path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed {
		t.Fatalf("Completed = false, incomplete = %v", res.IncompleteIDs())
	}
	if res.Outcome() != event.OutcomeCompleted {
		t.Errorf("Outcome() = %q, want %q", res.Outcome(), event.OutcomeCompleted)
	}

	t.Run("quest file", func(t *testing.T) {
		q := testutil.LoadQuest(t, path)
		for _, step := range q.Steps {
			if step.Status != quest.StepComplete {
				t.Errorf("step %s status = %q, want complete", step.Name, step.Status)
			}
			if step.CurrentSession == nil {
				t.Errorf("step %s has no session recorded", step.Name)
				continue
			}
			if want := "sess-" + step.ID; step.CurrentSession.SessionID != want {
				t.Errorf("step %s session = %q, want %q", step.Name, step.CurrentSession.SessionID, want)
			}
		}
	})

	t.Run("journal", func(t *testing.T) {
		run, err := j.Run(res.RunID)
		if err != nil {
			t.Fatalf("journal.Run: %v", err)
		}
		if run.QuestID != "add-auth" {
			t.Errorf("QuestID = %q, want %q", run.QuestID, "add-auth")
		}
		if run.Outcome != string(event.OutcomeCompleted) {
			t.Errorf("Outcome = %q, want %q", run.Outcome, event.OutcomeCompleted)
		}
		if !run.Finished() {
			t.Error("run not marked finished")
		}

		entries, err := j.Events(res.RunID)
		if err != nil {
			t.Fatalf("journal.Events: %v", err)
		}
		if len(entries) == 0 {
			t.Fatal("no events recorded")
		}
		if entries[0].Type != event.TypeQuestStarted {
			t.Errorf("first event = %q, want %q", entries[0].Type, event.TypeQuestStarted)
		}
		if last := entries[len(entries)-1]; last.Type != event.TypeQuestFinished {
			t.Errorf("last event = %q, want %q", last.Type, event.TypeQuestFinished)
		}
		dispatched := 0
		for _, e := range entries {
			if e.Type == event.TypeStepDispatched {
				dispatched++
			}
		}
		if dispatched != 2 {
			t.Errorf("dispatched = %d, want 2", dispatched)
		}
	})

	t.Run("websocket feed", func(t *testing.T) {
		sessions := make(map[string]bool)
		for {
			var env event.Envelope
			if err := wsjson.Read(ctx, ws, &env); err != nil {
				t.Fatalf("wsjson.Read: %v", err)
			}
			if env.Type == event.TypeWorkerOutput {
				t.Errorf("hub forwarded raw worker output")
			}
			if env.Type == event.TypeChatLine {
				var line event.ChatLineEvent
				if err := json.Unmarshal(env.Data, &line); err != nil {
					t.Fatalf("decode chat line: %v", err)
				}
				sessions[line.SessionID] = true
			}
			if env.Type == event.TypeQuestFinished {
				break
			}
		}
		for _, id := range []string{stepA, stepB} {
			if !sessions["sess-"+id] {
				t.Errorf("no chat lines for session sess-%s (got %v)", id, sessions)
			}
		}
	})
}

// TestQuestRun_AwaitingInput checks that a worker asking for input stops the
// run with the question surfaced and the step left blocked.
func TestQuestRun_AwaitingInput(t *testing.T) {
	spawner := newSpawner(t, signal.NeedsUserInput)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stepA := testutil.StepID(1)
	path := testutil.WriteQuest(t, "docs", testutil.PendingStep(stepA, "Write docs"))

	orch := orchestrator.New(quest.NewStore(), spawner, orchestrator.Options{
		SlotCount: 1,
		WorkDir:   t.TempDir(),
	})
	res, err := orch.Run(ctx, path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome() != event.OutcomeAwaitingInput {
		t.Fatalf("Outcome() = %q, want %q", res.Outcome(), event.OutcomeAwaitingInput)
	}
	if res.AwaitingInput.StepID != stepA {
		t.Errorf("AwaitingInput.StepID = %q, want %q", res.AwaitingInput.StepID, stepA)
	}

	q := testutil.LoadQuest(t, path)
	step, ok := q.FindStep(stepA)
	if !ok {
		t.Fatal("step missing from quest")
	}
	if step.Status != quest.StepBlocked || step.BlockingType != quest.BlockingNeedsUserInput {
		t.Errorf("step = %q/%q, want blocked/needs_user_input", step.Status, step.BlockingType)
	}
}
