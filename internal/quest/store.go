package quest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/google/uuid"
)

// Store reads and writes quest documents. Every mutation is a complete
// read-modify-write of the whole file under an exclusive file lock; writes go
// to a temporary file that is renamed into place.
type Store struct {
	now func() time.Time
}

// NewStore creates a Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Load reads and validates the quest at path.
func (s *Store) Load(path string) (*Quest, error) {
	fl := NewFileLock(path)
	if err := fl.RLock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	return s.read(path)
}

// Save validates q and writes it to path atomically.
func (s *Store) Save(path string, q *Quest) error {
	if err := Validate(q); err != nil {
		return errors.NewQuestError("save quest", err).WithQuestPath(path)
	}

	fl := NewFileLock(path)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	return s.write(path, q)
}

// UpdateStep loads the quest, applies upd to the step with the given id and
// writes the quest back. It fails with ErrStepNotFound when the id is absent
// and with ErrInvalidTransition when the status change is not allowed.
func (s *Store) UpdateStep(path, stepID string, upd StepUpdate) error {
	fl := NewFileLock(path)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	q, err := s.read(path)
	if err != nil {
		return err
	}

	idx := -1
	for i := range q.Steps {
		if q.Steps[i].ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NewQuestError("update step", errors.ErrStepNotFound).
			WithQuestPath(path).WithStepID(stepID)
	}

	if err := apply(&q.Steps[idx], upd); err != nil {
		return errors.NewQuestError("update step", err).WithQuestPath(path).WithStepID(stepID)
	}
	q.Status = deriveStatus(q)

	return s.write(path, q)
}

func (s *Store) read(path string) (*Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewQuestError("load quest", errors.ErrQuestNotFound).WithQuestPath(path)
		}
		return nil, fmt.Errorf("read quest file: %w", err)
	}

	var q Quest
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, errors.NewQuestError("load quest", errors.Join(errors.ErrQuestCorrupted, err)).
			WithQuestPath(path)
	}
	normalize(&q)

	if err := Validate(&q); err != nil {
		return nil, errors.NewQuestError("load quest", err).WithQuestPath(path)
	}
	return &q, nil
}

func (s *Store) write(path string, q *Quest) error {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quest: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// apply mutates step according to upd.
func apply(step *Step, upd StepUpdate) error {
	if upd.Status != nil {
		if !step.Status.CanTransition(*upd.Status) {
			return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, step.Status, *upd.Status)
		}
		step.Status = *upd.Status
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		step.StartedAt = &t
	}
	if upd.ClearBlocking {
		step.BlockingType = ""
		step.BlockingReason = ""
	}
	if upd.BlockingType != nil {
		step.BlockingType = *upd.BlockingType
	}
	if upd.BlockingReason != nil {
		step.BlockingReason = *upd.BlockingReason
	}
	if upd.CurrentSession != nil {
		sess := *upd.CurrentSession
		step.CurrentSession = &sess
	}
	return nil
}

// deriveStatus recomputes the quest-level status from its steps. An
// abandoned quest stays abandoned.
func deriveStatus(q *Quest) QuestStatus {
	if q.Status == QuestAbandoned {
		return q.Status
	}
	sum := q.Summarize()
	switch {
	case sum.Total > 0 && sum.Complete == sum.Total:
		return QuestComplete
	case sum.InProgress > 0 || sum.Complete > 0 || sum.PartiallyComplete > 0:
		if sum.InProgress == 0 && sum.Blocked > 0 && len(q.ReadySteps()) == 0 {
			return QuestBlocked
		}
		return QuestInProgress
	case sum.Blocked > 0:
		return QuestBlocked
	default:
		return QuestPending
	}
}

// normalize fills defaults for fields omitted from the document.
func normalize(q *Quest) {
	if q.Status == "" {
		q.Status = QuestPending
	}
	for i := range q.Steps {
		st := &q.Steps[i]
		if st.Status == "" {
			st.Status = StepPending
		}
		if st.DependsOn == nil {
			st.DependsOn = []string{}
		}
		if st.FilesToCreate == nil {
			st.FilesToCreate = []string{}
		}
		if st.FilesToModify == nil {
			st.FilesToModify = []string{}
		}
	}
}

// Validate checks structural rules: step ids are unique UUIDs and statuses are
// known. Dangling dependsOn references are allowed; such steps never become ready.
func Validate(q *Quest) error {
	if q == nil {
		return errors.NewValidationError("quest is nil").WithCause(errors.ErrQuestInvalid)
	}
	seen := make(map[string]bool, len(q.Steps))
	for i, st := range q.Steps {
		field := fmt.Sprintf("steps[%d].id", i)
		if !IsStepID(st.ID) {
			return errors.NewValidationError("step id must be a UUID").
				WithField(field).WithValue(st.ID).WithCause(errors.ErrQuestInvalid)
		}
		if seen[st.ID] {
			return errors.NewValidationError("duplicate step id").
				WithField(field).WithValue(st.ID).WithCause(errors.ErrQuestInvalid)
		}
		seen[st.ID] = true
		if !st.Status.IsValid() {
			return errors.NewValidationError("unknown step status").
				WithField(fmt.Sprintf("steps[%d].status", i)).WithValue(st.Status).WithCause(errors.ErrQuestInvalid)
		}
	}
	return nil
}

// IsStepID reports whether id is a well-formed step identifier.
func IsStepID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewStepID returns a fresh random step identifier.
func NewStepID() string {
	return uuid.NewString()
}
