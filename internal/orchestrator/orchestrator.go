// Package orchestrator drives a quest to completion by running workers for
// its ready steps.
//
// The loop owns a slot pool sized to the configured concurrency. Each pass
// reloads the quest, dispatches at most one ready step into a free slot, and
// when nothing more can be dispatched waits for the first in-flight worker to
// finish. A finished worker's result is applied to its step: crashes and
// timeouts are respawned, signals are applied through [HandleSignal], and a
// worker that sent no signal leaves its step partially complete.
//
// Only the loop goroutine writes quest state.
package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/logging"
	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/google/uuid"
)

// QuestStore is the persistence the loop needs.
type QuestStore interface {
	Load(path string) (*quest.Quest, error)
	StepUpdater
}

// Options configures a loop.
type Options struct {
	// SlotCount bounds the number of concurrent workers. Values below one
	// are treated as one.
	SlotCount int

	// WorkerTimeout kills a worker after this long. 0 disables the limit.
	WorkerTimeout time.Duration

	// MaxCrashRetries marks a step failed after this many consecutive
	// crashes or timeouts. 0 retries forever.
	MaxCrashRetries int

	// Role is used for steps dispatched because they became ready.
	// Defaults to codeweaver.
	Role agent.Role

	// FollowupRole is used for role followups that name no target.
	// Defaults to pathseeker.
	FollowupRole agent.Role

	// ContinuationTailLines is how much captured output a continuation
	// carries. Defaults to DefaultTailLines.
	ContinuationTailLines int

	// WorkDir is the directory workers run in.
	WorkDir string
}

func (o Options) withDefaults() Options {
	if o.SlotCount < 1 {
		o.SlotCount = 1
	}
	if o.Role == "" {
		o.Role = agent.RoleCodeweaver
	}
	if o.FollowupRole == "" {
		o.FollowupRole = DefaultFollowupRole
	}
	if o.ContinuationTailLines < 1 {
		o.ContinuationTailLines = DefaultTailLines
	}
	if o.MaxCrashRetries < 0 {
		o.MaxCrashRetries = 0
	}
	return o
}

// UserInputRequest is carried by a run that stopped for a human answer.
type UserInputRequest struct {
	StepID   string `json:"stepId"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

// Result is how a run ended.
type Result struct {
	RunID string `json:"runId"`

	// Completed is true when every step is complete.
	Completed bool `json:"completed"`

	// IncompleteSteps lists every non-complete step when the quest is stuck
	// or awaiting input.
	IncompleteSteps []quest.Step `json:"incompleteSteps,omitempty"`

	// AwaitingInput is set when a worker asked for user input.
	AwaitingInput *UserInputRequest `json:"awaitingInput,omitempty"`
}

// Outcome classifies the result for reporting.
func (r *Result) Outcome() event.Outcome {
	switch {
	case r.Completed:
		return event.OutcomeCompleted
	case r.AwaitingInput != nil:
		return event.OutcomeAwaitingInput
	default:
		return event.OutcomeStuck
	}
}

// IncompleteIDs returns the ids of IncompleteSteps.
func (r *Result) IncompleteIDs() []string {
	ids := make([]string, 0, len(r.IncompleteSteps))
	for _, st := range r.IncompleteSteps {
		ids = append(ids, st.ID)
	}
	return ids
}

// Orchestrator runs quests. A single Orchestrator may run several quests
// concurrently; each Run owns its own slot pool.
type Orchestrator struct {
	store   QuestStore
	spawner agent.Spawner
	opts    Options
	bus     *event.Bus      // nil disables events
	logger  *logging.Logger // nil disables logging
	newID   func() string
}

// New creates an Orchestrator.
func New(store QuestStore, spawner agent.Spawner, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		spawner: spawner,
		opts:    opts.withDefaults(),
		newID:   uuid.NewString,
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger *logging.Logger) {
	o.logger = logger
}

// SetEventBus sets the bus that receives run, step and worker events.
func (o *Orchestrator) SetEventBus(bus *event.Bus) {
	o.bus = bus
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Run drives the quest at questPath until every step is complete, no
// further progress is possible, or a worker asks for user input. Quest-level
// failure is reported through Result, not as an error. Errors are returned
// for persistence failures, spawn failures and context cancellation; every
// in-flight worker is killed before Run returns one.
func (o *Orchestrator) Run(ctx context.Context, questPath string) (*Result, error) {
	r := newRun(o, questPath)
	return r.execute(ctx)
}

func (o *Orchestrator) log() *logging.Logger {
	if o.logger == nil {
		return logging.NopLogger()
	}
	return o.logger
}

func (o *Orchestrator) publish(e event.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}
