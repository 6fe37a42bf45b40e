package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/logging"
	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/signal"
	"github.com/Iron-Ham/questline/internal/slot"
	"github.com/sourcegraph/conc"
)

// activeAgent is a worker the loop is waiting on.
type activeAgent struct {
	slot      int
	stepID    string
	role      agent.Role
	worker    agent.Worker
	startedAt time.Time
}

type completion struct {
	agent  *activeAgent
	result agent.Result
}

// dispatch describes one spawn.
type dispatch struct {
	step            quest.Step
	role            agent.Role
	reason          event.DispatchReason
	resumeSessionID string
	continuation    string
	followupReason  string
	followupContext string
}

// run is the state of one Orchestrator.Run call. Everything except the
// worker goroutines runs on the caller's goroutine.
type run struct {
	o         *Orchestrator
	questPath string
	id        string
	questID   string
	log       *logging.Logger

	pool   *slot.Pool
	active map[int]*activeAgent
	// done has room for one completion per slot, so a worker goroutine
	// never blocks on send even after the loop has returned.
	done    chan completion
	workers conc.WaitGroup

	// crashes counts consecutive crashes or timeouts per step.
	crashes map[string]int

	// draining is set once a worker asked for user input: in-flight
	// workers are settled but nothing new is spawned.
	draining bool
	awaiting *UserInputRequest
}

func newRun(o *Orchestrator, questPath string) *run {
	id := o.newID()
	return &run{
		o:         o,
		questPath: questPath,
		id:        id,
		log:       o.log().With("run_id", id),
		pool:      slot.New(o.opts.SlotCount),
		active:    make(map[int]*activeAgent, o.opts.SlotCount),
		done:      make(chan completion, o.opts.SlotCount),
		crashes:   make(map[string]int),
	}
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	q, err := r.o.store.Load(r.questPath)
	if err != nil {
		return nil, err
	}
	r.questID = q.ID
	r.log = r.log.WithQuest(q.ID)
	r.o.publish(event.NewQuestStartedEvent(r.id, q.ID, r.questPath, q.Title, r.pool.Capacity()))
	r.log.Info("quest run started",
		"quest_path", r.questPath,
		"slots", r.pool.Capacity(),
		"steps", len(q.Steps),
	)

	res, err := r.loop(ctx)
	if err != nil {
		r.shutdown()
		outcome := event.OutcomeFailed
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			outcome = event.OutcomeCancelled
		}
		r.log.Error("quest run ended with error", "outcome", outcome, "error", err)
		r.o.publish(event.NewQuestFinishedEvent(r.id, r.questID, outcome, nil, err.Error()))
		return nil, err
	}
	r.workers.Wait()

	res.RunID = r.id
	r.log.Info("quest run finished",
		"outcome", res.Outcome(),
		"incomplete", len(res.IncompleteSteps),
	)
	r.o.publish(event.NewQuestFinishedEvent(r.id, r.questID, res.Outcome(), res.IncompleteIDs(), ""))
	return res, nil
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Scanning
		q, err := r.o.store.Load(r.questPath)
		if err != nil {
			return nil, err
		}
		r.log.Debug("scanning quest",
			"active", len(r.active),
			"incomplete", len(q.IncompleteSteps()),
			"draining", r.draining,
		)
		if len(r.active) == 0 {
			if r.awaiting != nil {
				return &Result{AwaitingInput: r.awaiting, IncompleteSteps: q.IncompleteSteps()}, nil
			}
			if q.AllComplete() {
				return &Result{Completed: true}, nil
			}
		}

		// Dispatching: one step per pass, then rescan.
		if !r.draining {
			if idx, ok := r.pool.Acquire(); ok {
				if step, ok := q.FirstReady(); ok {
					d := dispatch{step: step, role: r.o.opts.Role, reason: event.DispatchReady}
					if err := r.spawn(ctx, idx, d); err != nil {
						return nil, err
					}
					continue
				}
			}
		}

		if len(r.active) == 0 {
			return &Result{IncompleteSteps: q.IncompleteSteps()}, nil
		}

		// Waiting: first worker to finish wins.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c := <-r.done:
			if err := r.settle(ctx, c); err != nil {
				return nil, err
			}
		}
	}
}

// spawn starts a worker for the step in slot idx and marks the step in
// progress. A failed spawn leaves the step untouched.
func (r *run) spawn(ctx context.Context, idx int, d dispatch) error {
	now := time.Now()
	log := r.log.WithStep(d.step.ID).WithSlot(idx)

	unit := agent.WorkUnit{
		Role:            d.role,
		QuestID:         r.questID,
		WorkDir:         r.o.opts.WorkDir,
		Step:            d.step,
		FollowupReason:  d.followupReason,
		FollowupContext: d.followupContext,
	}
	opts := agent.SpawnOptions{
		ResumeSessionID:     d.resumeSessionID,
		ContinuationContext: d.continuation,
		Timeout:             r.o.opts.WorkerTimeout,
		OnLine:              r.forwardOutput(d.step.ID, idx),
	}

	w, err := r.o.spawner.Spawn(ctx, unit, opts)
	if err != nil {
		log.Error("failed to spawn worker", "role", d.role, "error", err)
		var agentErr *errors.AgentError
		if errors.As(err, &agentErr) {
			return err
		}
		return errors.NewAgentError("spawn worker", errors.Join(errors.ErrSpawnFailed, err)).
			WithRole(string(d.role)).
			WithStepID(d.step.ID)
	}

	status := quest.StepInProgress
	upd := quest.StepUpdate{Status: &status, StartedAt: &now, ClearBlocking: true}
	if d.resumeSessionID != "" {
		upd.CurrentSession = &quest.Session{
			SessionID: d.resumeSessionID,
			AgentRole: string(d.role),
			StartedAt: now,
		}
	}
	if err := r.update(d.step.ID, upd); err != nil {
		w.Kill()
		return err
	}

	a := &activeAgent{slot: idx, stepID: d.step.ID, role: d.role, worker: w, startedAt: now}
	r.pool.Assign(idx, slot.AgentSlot{
		StepID:    d.step.ID,
		SessionID: d.resumeSessionID,
		Role:      string(d.role),
		Process:   w,
		StartedAt: now,
	})
	r.active[idx] = a
	r.workers.Go(func() {
		res, ok := <-w.Done()
		if !ok {
			res = agent.Result{SessionID: w.SessionID(), ExitCode: -1, Crashed: true}
		}
		r.done <- completion{agent: a, result: res}
	})

	log.Info("worker dispatched",
		"role", d.role,
		"reason", d.reason,
		"resume_session_id", d.resumeSessionID,
	)
	r.o.publish(event.NewStepDispatchedEvent(r.id, d.step.ID, d.step.Name, string(d.role), idx, d.reason, d.resumeSessionID))
	return nil
}

// settle applies a finished worker's result.
func (r *run) settle(ctx context.Context, c completion) error {
	a, res := c.agent, c.result
	delete(r.active, a.slot)
	r.pool.Release(a.slot)

	var kind string
	if res.Signal != nil {
		kind = string(res.Signal.Signal)
	}
	log := r.log.WithStep(a.stepID).WithSlot(a.slot)
	log.Info("worker finished",
		"session_id", res.SessionID,
		"signal", kind,
		"crashed", res.Crashed,
		"timed_out", res.TimedOut,
		"exit_code", res.ExitCode,
	)
	r.o.publish(event.NewWorkerSettledEvent(r.id, a.stepID, a.slot, res.SessionID, kind, res.Crashed, res.TimedOut, res.ExitCode))

	q, err := r.o.store.Load(r.questPath)
	if err != nil {
		return err
	}
	step, ok := q.FindStep(a.stepID)
	if !ok {
		log.Warn("step no longer in quest, dropping worker result")
		return nil
	}

	if res.SessionID != "" {
		sess := &quest.Session{SessionID: res.SessionID, AgentRole: string(a.role), StartedAt: a.startedAt}
		if err := r.update(step.ID, quest.StepUpdate{CurrentSession: sess}); err != nil {
			return err
		}
	}

	if res.Crashed || res.TimedOut {
		return r.retryCrash(ctx, step, a, res, log)
	}
	delete(r.crashes, step.ID)

	if res.Signal == nil {
		log.Warn("worker exited without a signal")
		return r.setStatus(step.ID, quest.StepPartiallyComplete)
	}

	sig := *res.Signal
	if sig.StepID != step.ID {
		log.Warn("signal names a different step", "signal_step_id", sig.StepID)
	}
	if sig.Signal == signal.NeedsUserInput {
		return r.awaitInput(step, sig, log)
	}

	action, err := handleSignal(stepRecorder{r}, r.questPath, step.ID, sig, r.o.opts.FollowupRole)
	if err != nil {
		return err
	}
	if r.draining {
		if action.Kind != ActionContinue {
			log.Info("awaiting user input, not acting on signal", "action", action.Kind)
		}
		return nil
	}

	switch action.Kind {
	case ActionRespawn:
		d := dispatch{
			step:            step,
			role:            a.role,
			reason:          event.DispatchContinuation,
			resumeSessionID: res.SessionID,
		}
		if cont := buildContinuationContext(action.ContinuationPoint, res.CapturedOutput, r.o.opts.ContinuationTailLines); cont != nil {
			d.continuation = *cont
		}
		return r.respawn(ctx, d, log)

	case ActionSpawnRole:
		err := r.respawn(ctx, dispatch{
			step:            step,
			role:            action.TargetRole,
			reason:          event.DispatchFollowup,
			followupReason:  action.Reason,
			followupContext: action.Context,
		}, log)
		if errors.Is(err, errors.ErrUnknownRole) {
			// The step stays blocked on the role it asked for.
			log.Warn("followup names an unknown role", "target_role", action.TargetRole)
			return nil
		}
		return err
	}
	return nil
}

func (r *run) retryCrash(ctx context.Context, step quest.Step, a *activeAgent, res agent.Result, log *logging.Logger) error {
	r.crashes[step.ID]++
	attempts := r.crashes[step.ID]

	if r.draining {
		log.Warn("worker crashed while awaiting user input", "timed_out", res.TimedOut)
		return r.setStatus(step.ID, quest.StepPartiallyComplete)
	}
	if limit := r.o.opts.MaxCrashRetries; limit > 0 && attempts > limit {
		log.Error("crash retries exhausted, failing step", "attempts", attempts)
		return r.setStatus(step.ID, quest.StepFailed)
	}

	log.Warn("worker crashed, respawning",
		"timed_out", res.TimedOut,
		"attempt", attempts,
		"resume_session_id", res.SessionID,
	)
	return r.respawn(ctx, dispatch{
		step:            step,
		role:            a.role,
		reason:          event.DispatchCrashRetry,
		resumeSessionID: res.SessionID,
	}, log)
}

// respawn spawns d on a newly acquired slot. With every slot taken the step
// is left for the next run.
func (r *run) respawn(ctx context.Context, d dispatch, log *logging.Logger) error {
	idx, ok := r.pool.Acquire()
	if !ok {
		log.Warn("cannot respawn worker", "reason", d.reason, "error", errors.ErrNoSlotAvailable)
		if d.reason == event.DispatchCrashRetry {
			return r.setStatus(d.step.ID, quest.StepPartiallyComplete)
		}
		return nil
	}
	return r.spawn(ctx, idx, d)
}

// awaitInput blocks the step on the user and starts draining.
func (r *run) awaitInput(step quest.Step, sig signal.StreamSignal, log *logging.Logger) error {
	req := &UserInputRequest{StepID: step.ID}
	if sig.Question != nil {
		req.Question = *sig.Question
	}
	if sig.Context != nil {
		req.Context = *sig.Context
	}

	status := quest.StepBlocked
	blocking := quest.BlockingNeedsUserInput
	reason := req.Question
	if reason == "" {
		reason = "Needs user input"
	}
	if err := r.update(step.ID, quest.StepUpdate{
		Status:         &status,
		BlockingType:   &blocking,
		BlockingReason: &reason,
	}); err != nil {
		return err
	}

	if r.awaiting == nil {
		r.awaiting = req
	}
	r.draining = true
	log.Info("worker needs user input", "question", req.Question, "in_flight", len(r.active))
	return nil
}

func (r *run) setStatus(stepID string, status quest.StepStatus) error {
	return r.update(stepID, quest.StepUpdate{Status: &status})
}

// update persists upd and publishes status changes.
func (r *run) update(stepID string, upd quest.StepUpdate) error {
	if err := r.o.store.UpdateStep(r.questPath, stepID, upd); err != nil {
		return err
	}
	if upd.Status != nil {
		var blockingType, blockingReason string
		if upd.BlockingType != nil {
			blockingType = string(*upd.BlockingType)
		}
		if upd.BlockingReason != nil {
			blockingReason = *upd.BlockingReason
		}
		r.o.publish(event.NewStepUpdatedEvent(r.id, stepID, string(*upd.Status), blockingType, blockingReason))
	}
	return nil
}

// forwardOutput returns the OnLine callback for a worker. It runs on the
// worker's reader goroutine.
func (r *run) forwardOutput(stepID string, idx int) func([]byte) {
	bus := r.o.bus
	if bus == nil {
		return nil
	}
	return func(line []byte) {
		if bus.HasSubscribers(event.TypeWorkerOutput) {
			bus.Publish(event.NewWorkerOutputEvent(stepID, idx, line))
		}
	}
}

// shutdown kills every worker and waits for their goroutines.
func (r *run) shutdown() {
	if n := r.pool.Len(); n > 0 {
		r.log.Warn("killing in-flight workers", "count", n)
	}
	r.pool.KillAll()
	r.workers.Wait()
	clear(r.active)
}

// stepRecorder routes signal handler updates through run.update.
type stepRecorder struct{ r *run }

func (s stepRecorder) UpdateStep(_, stepID string, upd quest.StepUpdate) error {
	return s.r.update(stepID, upd)
}
