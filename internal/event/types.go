package event

import (
	"encoding/json"
	"time"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier such as "step.updated".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeQuestStarted   = "quest.started"
	TypeQuestFinished  = "quest.finished"
	TypeStepDispatched = "step.dispatched"
	TypeStepUpdated    = "step.updated"
	TypeWorkerSettled  = "worker.settled"
	TypeWorkerOutput   = "worker.output"
	TypeChatLine       = "chat.line"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Quest Lifecycle Events
// -----------------------------------------------------------------------------

// QuestStartedEvent is emitted when the orchestration loop begins a quest.
type QuestStartedEvent struct {
	baseEvent
	RunID     string `json:"runId"`
	QuestID   string `json:"questId"`
	QuestPath string `json:"questPath"`
	Title     string `json:"title"`
	SlotCount int    `json:"slotCount"`
}

// NewQuestStartedEvent creates a QuestStartedEvent.
func NewQuestStartedEvent(runID, questID, questPath, title string, slotCount int) QuestStartedEvent {
	return QuestStartedEvent{
		baseEvent: newBaseEvent(TypeQuestStarted),
		RunID:     runID,
		QuestID:   questID,
		QuestPath: questPath,
		Title:     title,
		SlotCount: slotCount,
	}
}

// Outcome is how a run of the loop ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeStuck         Outcome = "stuck"
	OutcomeAwaitingInput Outcome = "awaiting_input"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeFailed        Outcome = "failed"
)

// QuestFinishedEvent is emitted once when the loop returns.
type QuestFinishedEvent struct {
	baseEvent
	RunID      string   `json:"runId"`
	QuestID    string   `json:"questId"`
	Outcome    Outcome  `json:"outcome"`
	Incomplete []string `json:"incomplete,omitempty"` // step ids, when stuck
	Error      string   `json:"error,omitempty"`
}

// NewQuestFinishedEvent creates a QuestFinishedEvent.
func NewQuestFinishedEvent(runID, questID string, outcome Outcome, incomplete []string, errMsg string) QuestFinishedEvent {
	return QuestFinishedEvent{
		baseEvent:  newBaseEvent(TypeQuestFinished),
		RunID:      runID,
		QuestID:    questID,
		Outcome:    outcome,
		Incomplete: incomplete,
		Error:      errMsg,
	}
}

// -----------------------------------------------------------------------------
// Step and Worker Events
// -----------------------------------------------------------------------------

// DispatchReason says why a worker was spawned for a step.
type DispatchReason string

const (
	DispatchReady        DispatchReason = "ready"
	DispatchCrashRetry   DispatchReason = "crash_retry"
	DispatchContinuation DispatchReason = "continuation"
	DispatchFollowup     DispatchReason = "role_followup"
)

// StepDispatchedEvent is emitted when a worker is spawned into a slot.
type StepDispatchedEvent struct {
	baseEvent
	RunID     string         `json:"runId"`
	StepID    string         `json:"stepId"`
	StepName  string         `json:"stepName"`
	Role      string         `json:"role"`
	Slot      int            `json:"slot"`
	Reason    DispatchReason `json:"reason"`
	SessionID string         `json:"sessionId,omitempty"` // resumed session, if any
}

// NewStepDispatchedEvent creates a StepDispatchedEvent.
func NewStepDispatchedEvent(runID, stepID, stepName, role string, slot int, reason DispatchReason, sessionID string) StepDispatchedEvent {
	return StepDispatchedEvent{
		baseEvent: newBaseEvent(TypeStepDispatched),
		RunID:     runID,
		StepID:    stepID,
		StepName:  stepName,
		Role:      role,
		Slot:      slot,
		Reason:    reason,
		SessionID: sessionID,
	}
}

// StepUpdatedEvent is emitted after a step status change is persisted.
type StepUpdatedEvent struct {
	baseEvent
	RunID          string `json:"runId"`
	StepID         string `json:"stepId"`
	Status         string `json:"status"`
	BlockingType   string `json:"blockingType,omitempty"`
	BlockingReason string `json:"blockingReason,omitempty"`
}

// NewStepUpdatedEvent creates a StepUpdatedEvent.
func NewStepUpdatedEvent(runID, stepID, status, blockingType, blockingReason string) StepUpdatedEvent {
	return StepUpdatedEvent{
		baseEvent:      newBaseEvent(TypeStepUpdated),
		RunID:          runID,
		StepID:         stepID,
		Status:         status,
		BlockingType:   blockingType,
		BlockingReason: blockingReason,
	}
}

// WorkerSettledEvent is emitted when a worker exits and its result is taken
// off the completion channel.
type WorkerSettledEvent struct {
	baseEvent
	RunID     string `json:"runId"`
	StepID    string `json:"stepId"`
	Slot      int    `json:"slot"`
	SessionID string `json:"sessionId,omitempty"`
	Signal    string `json:"signal,omitempty"` // empty when no valid signal was sent
	Crashed   bool   `json:"crashed"`
	TimedOut  bool   `json:"timedOut"`
	ExitCode  int    `json:"exitCode"`
}

// NewWorkerSettledEvent creates a WorkerSettledEvent.
func NewWorkerSettledEvent(runID, stepID string, slot int, sessionID, signal string, crashed, timedOut bool, exitCode int) WorkerSettledEvent {
	return WorkerSettledEvent{
		baseEvent: newBaseEvent(TypeWorkerSettled),
		RunID:     runID,
		StepID:    stepID,
		Slot:      slot,
		SessionID: sessionID,
		Signal:    signal,
		Crashed:   crashed,
		TimedOut:  timedOut,
		ExitCode:  exitCode,
	}
}

// WorkerOutputEvent carries one raw stream-json line from a running worker.
type WorkerOutputEvent struct {
	baseEvent
	StepID string          `json:"stepId"`
	Slot   int             `json:"slot"`
	Line   json.RawMessage `json:"line"`
}

// NewWorkerOutputEvent creates a WorkerOutputEvent. line is copied.
func NewWorkerOutputEvent(stepID string, slot int, line []byte) WorkerOutputEvent {
	return WorkerOutputEvent{
		baseEvent: newBaseEvent(TypeWorkerOutput),
		StepID:    stepID,
		Slot:      slot,
		Line:      append(json.RawMessage(nil), line...),
	}
}

// -----------------------------------------------------------------------------
// Chat Events
// -----------------------------------------------------------------------------

// ChatLineEvent carries one correlated chat output (an entry or a patch),
// already encoded as JSON.
type ChatLineEvent struct {
	baseEvent
	SessionID string          `json:"sessionId"`
	Output    json.RawMessage `json:"output"`
}

// NewChatLineEvent creates a ChatLineEvent.
func NewChatLineEvent(sessionID string, output json.RawMessage) ChatLineEvent {
	return ChatLineEvent{
		baseEvent: newBaseEvent(TypeChatLine),
		SessionID: sessionID,
		Output:    output,
	}
}

// Envelope is the wire form of an event: its type, time, and exported fields.
type Envelope struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps e in an Envelope.
func Encode(e Event) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: e.EventType(), Time: e.Timestamp(), Data: data}, nil
}
