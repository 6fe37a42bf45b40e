package quest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/questline/internal/errors"
)

func writeQuest(t *testing.T, q *Quest) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quest.json")
	if err := NewStore().Save(path, q); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func sampleQuest() *Quest {
	return &Quest{
		ID:     "add-auth",
		Title:  "Add authentication",
		Status: QuestPending,
		Steps: []Step{
			{ID: idA, Name: "Create model", Status: StepPending, DependsOn: []string{}},
			{ID: idB, Name: "Wire routes", Status: StepPending, DependsOn: []string{idA}},
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := writeQuest(t, sampleQuest())

	loaded, err := NewStore().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title != "Add authentication" {
		t.Errorf("Title = %q, want %q", loaded.Title, "Add authentication")
	}
	if len(loaded.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(loaded.Steps))
	}
	if loaded.Steps[1].DependsOn[0] != idA {
		t.Errorf("Steps[1].DependsOn[0] = %q, want %q", loaded.Steps[1].DependsOn[0], idA)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be removed after atomic rename")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := NewStore().Load(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, errors.ErrQuestNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrQuestNotFound", err)
	}
}

func TestStore_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewStore().Load(path)
	if !errors.Is(err, errors.ErrQuestCorrupted) {
		t.Errorf("Load(malformed) error = %v, want ErrQuestCorrupted", err)
	}
}

func TestStore_LoadDefaultsAndValidation(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "quest.json")
	doc := `{"id":"q","steps":[{"id":"` + idA + `","name":"only"}]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	q, err := NewStore().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if q.Steps[0].Status != StepPending {
		t.Errorf("Status = %q, want %q", q.Steps[0].Status, StepPending)
	}
	if q.Steps[0].DependsOn == nil {
		t.Error("DependsOn should default to an empty slice")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"id":"q","steps":[{"id":"step-1"}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = NewStore().Load(bad)
	if !errors.Is(err, errors.ErrQuestInvalid) {
		t.Errorf("Load(non-uuid id) error = %v, want ErrQuestInvalid", err)
	}

	dup := filepath.Join(dir, "dup.json")
	doc = `{"id":"q","steps":[{"id":"` + idA + `"},{"id":"` + idA + `"}]}`
	if err := os.WriteFile(dup, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore().Load(dup); !errors.Is(err, errors.ErrQuestInvalid) {
		t.Errorf("Load(duplicate ids) error = %v, want ErrQuestInvalid", err)
	}
}

func TestStore_UpdateStep(t *testing.T) {
	path := writeQuest(t, sampleQuest())
	store := NewStore()

	started := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	inProgress := StepInProgress
	if err := store.UpdateStep(path, idA, StepUpdate{Status: &inProgress, StartedAt: &started}); err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}

	q, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if q.Steps[0].Status != StepInProgress {
		t.Errorf("Status = %q, want %q", q.Steps[0].Status, StepInProgress)
	}
	if q.Steps[0].StartedAt == nil || !q.Steps[0].StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", q.Steps[0].StartedAt, started)
	}
	if q.Status != QuestInProgress {
		t.Errorf("quest Status = %q, want %q", q.Status, QuestInProgress)
	}
	// Untouched step is preserved.
	if q.Steps[1].Status != StepPending {
		t.Errorf("Steps[1].Status = %q, want %q", q.Steps[1].Status, StepPending)
	}
}

func TestStore_UpdateStepBlockingFields(t *testing.T) {
	path := writeQuest(t, sampleQuest())
	store := NewStore()

	inProgress := StepInProgress
	blocked := StepBlocked
	bt := BlockingNeedsRoleFollowup
	reason := "needs review"
	if err := store.UpdateStep(path, idA, StepUpdate{Status: &inProgress}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStep(path, idA, StepUpdate{Status: &blocked, BlockingType: &bt, BlockingReason: &reason}); err != nil {
		t.Fatal(err)
	}

	q, _ := store.Load(path)
	if q.Steps[0].BlockingType != BlockingNeedsRoleFollowup || q.Steps[0].BlockingReason != reason {
		t.Errorf("blocking = (%q, %q), want (%q, %q)", q.Steps[0].BlockingType, q.Steps[0].BlockingReason, bt, reason)
	}

	if err := store.UpdateStep(path, idA, StepUpdate{Status: &inProgress, ClearBlocking: true}); err != nil {
		t.Fatal(err)
	}
	q, _ = store.Load(path)
	if q.Steps[0].BlockingType != "" || q.Steps[0].BlockingReason != "" {
		t.Errorf("blocking fields not cleared: (%q, %q)", q.Steps[0].BlockingType, q.Steps[0].BlockingReason)
	}
}

func TestStore_UpdateStepErrors(t *testing.T) {
	path := writeQuest(t, sampleQuest())
	store := NewStore()

	complete := StepComplete
	err := store.UpdateStep(path, idC, StepUpdate{Status: &complete})
	if !errors.Is(err, errors.ErrStepNotFound) {
		t.Errorf("UpdateStep(unknown) error = %v, want ErrStepNotFound", err)
	}

	// pending -> complete skips in_progress.
	err = store.UpdateStep(path, idA, StepUpdate{Status: &complete})
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("UpdateStep(pending->complete) error = %v, want ErrInvalidTransition", err)
	}

	var qe *errors.QuestError
	if !errors.As(err, &qe) || qe.StepID != idA {
		t.Errorf("error should be a QuestError for step %s, got %v", idA, err)
	}
}

func TestStore_UpdateStepCompletesQuest(t *testing.T) {
	q := &Quest{ID: "q", Steps: []Step{{ID: idA, Status: StepInProgress}}}
	path := writeQuest(t, q)
	store := NewStore()

	complete := StepComplete
	if err := store.UpdateStep(path, idA, StepUpdate{Status: &complete}); err != nil {
		t.Fatal(err)
	}
	loaded, _ := store.Load(path)
	if loaded.Status != QuestComplete {
		t.Errorf("quest Status = %q, want %q", loaded.Status, QuestComplete)
	}
}

func TestStore_SaveInvalidDirectory(t *testing.T) {
	err := NewStore().Save("/nonexistent/directory/quest.json", sampleQuest())
	if err == nil {
		t.Error("Save to nonexistent directory should fail")
	}
}

func TestIsStepID(t *testing.T) {
	if !IsStepID(idA) {
		t.Errorf("IsStepID(%q) = false, want true", idA)
	}
	if IsStepID("step-1") {
		t.Error("IsStepID(step-1) = true, want false")
	}
	if !IsStepID(NewStepID()) {
		t.Error("NewStepID() should produce a valid step id")
	}
}
