package quest

import "time"

// StepStatus represents the current state of a quest step.
type StepStatus string

const (
	// StepPending indicates the step has not been dispatched yet.
	StepPending StepStatus = "pending"

	// StepInProgress indicates a worker has been assigned to the step.
	StepInProgress StepStatus = "in_progress"

	// StepPartiallyComplete indicates a worker stopped before finishing.
	// The step may be re-entered by a respawn.
	StepPartiallyComplete StepStatus = "partially_complete"

	// StepComplete indicates the step finished successfully.
	StepComplete StepStatus = "complete"

	// StepBlocked indicates the step is waiting on another role or on the user.
	// BlockingType and BlockingReason describe why.
	StepBlocked StepStatus = "blocked"

	// StepFailed indicates the step cannot make progress.
	StepFailed StepStatus = "failed"
)

// String returns the string representation of the step status.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known step statuses.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepInProgress, StepPartiallyComplete, StepComplete, StepBlocked, StepFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no respawn can move the step forward.
func (s StepStatus) IsTerminal() bool {
	return s == StepComplete || s == StepFailed
}

// CanTransition reports whether a step may move from s to next.
// Steps never return to pending; partially_complete and blocked steps may be
// re-entered into in_progress by a respawn. Writing the current status again
// is always allowed.
func (s StepStatus) CanTransition(next StepStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StepPending:
		return next == StepInProgress
	case StepInProgress:
		return next == StepComplete || next == StepPartiallyComplete || next == StepBlocked || next == StepFailed
	case StepPartiallyComplete, StepBlocked:
		return next == StepInProgress || next == StepFailed
	default:
		return false
	}
}

// BlockingType classifies why a step is blocked.
type BlockingType string

const (
	// BlockingNeedsRoleFollowup means a different agent role must act first.
	BlockingNeedsRoleFollowup BlockingType = "needs_role_followup"

	// BlockingNeedsUserInput means a human has to answer a question.
	BlockingNeedsUserInput BlockingType = "needs_user_input"
)

// QuestStatus represents the overall state of a quest.
type QuestStatus string

const (
	QuestPending    QuestStatus = "pending"
	QuestInProgress QuestStatus = "in_progress"
	QuestComplete   QuestStatus = "complete"
	QuestBlocked    QuestStatus = "blocked"
	QuestAbandoned  QuestStatus = "abandoned"
)

// Session records the most recent worker session that touched a step.
type Session struct {
	SessionID string    `json:"sessionId"`
	AgentRole string    `json:"agentRole"`
	StartedAt time.Time `json:"startedAt"`
}

// Step is one unit of work within a quest. DependsOn references other step
// ids in the same quest; a reference to an unknown id keeps the step unready
// forever.
type Step struct {
	// ID is a UUID, unique within the quest.
	ID string `json:"id"`

	// Name is a short human-readable title.
	Name string `json:"name"`

	// Description is the detailed instruction given to the worker.
	Description string `json:"description"`

	// ExportName optionally names the primary symbol the step produces.
	ExportName string `json:"exportName,omitempty"`

	// DependsOn lists the ids of steps that must be complete first.
	DependsOn []string `json:"dependsOn"`

	FilesToCreate        []string `json:"filesToCreate"`
	FilesToModify        []string `json:"filesToModify"`
	ObservablesSatisfied []string `json:"observablesSatisfied,omitempty"`
	InputContracts       []string `json:"inputContracts,omitempty"`
	OutputContracts      []string `json:"outputContracts,omitempty"`

	// Status is the current execution state.
	Status StepStatus `json:"status"`

	// StartedAt is when the step was last dispatched to a worker.
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// BlockingType and BlockingReason are only set while Status is blocked.
	BlockingType   BlockingType `json:"blockingType,omitempty"`
	BlockingReason string       `json:"blockingReason,omitempty"`

	// CurrentSession is the last worker session recorded for the step.
	CurrentSession *Session `json:"currentSession,omitempty"`
}

// Quest is an ordered collection of steps persisted as a single document.
type Quest struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Status    QuestStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	Steps     []Step      `json:"steps"`
}

// StepUpdate is a partial update applied to one step. Nil fields are left
// unchanged. ClearBlocking removes BlockingType and BlockingReason.
type StepUpdate struct {
	Status         *StepStatus
	StartedAt      *time.Time
	BlockingType   *BlockingType
	BlockingReason *string
	ClearBlocking  bool
	CurrentSession *Session
}

// Summary is a snapshot of step counts by status.
type Summary struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	InProgress        int `json:"inProgress"`
	PartiallyComplete int `json:"partiallyComplete"`
	Complete          int `json:"complete"`
	Blocked           int `json:"blocked"`
	Failed            int `json:"failed"`
}
