package orchestrator

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/signal"
)

// DefaultFollowupRole is spawned for a needs-role-followup signal that does
// not name a target role.
const DefaultFollowupRole = agent.RolePathseeker

// DefaultBlockingReason is recorded when a followup signal has no reason.
const DefaultBlockingReason = "Needs role followup"

// DefaultTailLines is how many captured output lines a continuation keeps.
const DefaultTailLines = 50

// ContinuationBanner separates the continuation point from recent output.
const ContinuationBanner = "\n\n--- Recent agent output ---\n"

// ActionKind is what the loop does after a signal was applied.
type ActionKind string

const (
	// ActionContinue takes no further action for the step.
	ActionContinue ActionKind = "continue"
	// ActionRespawn resumes the step with the same role.
	ActionRespawn ActionKind = "respawn"
	// ActionSpawnRole hands the step to TargetRole.
	ActionSpawnRole ActionKind = "spawn_role"
)

// Action is the result of handling a signal.
type Action struct {
	Kind ActionKind

	// ContinuationPoint is set for ActionRespawn when the worker gave one.
	ContinuationPoint *string

	// TargetRole, Reason and Context are set for ActionSpawnRole.
	TargetRole agent.Role
	Reason     string
	Context    string
}

// StepUpdater persists partial step updates.
type StepUpdater interface {
	UpdateStep(path, stepID string, upd quest.StepUpdate) error
}

// HandleSignal persists the step status implied by sig and returns the
// follow-up action. Role followups without a target go to
// DefaultFollowupRole.
//
// needs-user-input is not handled here; the loop turns it into an
// awaiting-input result. Passing it, or an unknown kind, panics.
func HandleSignal(store StepUpdater, questPath, stepID string, sig signal.StreamSignal) (Action, error) {
	return handleSignal(store, questPath, stepID, sig, DefaultFollowupRole)
}

func handleSignal(store StepUpdater, questPath, stepID string, sig signal.StreamSignal, defaultRole agent.Role) (Action, error) {
	switch sig.Signal {
	case signal.Complete:
		status := quest.StepComplete
		if err := store.UpdateStep(questPath, stepID, quest.StepUpdate{Status: &status}); err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionContinue}, nil

	case signal.PartiallyComplete:
		status := quest.StepPartiallyComplete
		if err := store.UpdateStep(questPath, stepID, quest.StepUpdate{Status: &status}); err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionRespawn, ContinuationPoint: sig.ContinuationPoint}, nil

	case signal.NeedsRoleFollowup:
		status := quest.StepBlocked
		blocking := quest.BlockingNeedsRoleFollowup
		reason := DefaultBlockingReason
		if sig.Reason != nil {
			reason = *sig.Reason
		}
		if err := store.UpdateStep(questPath, stepID, quest.StepUpdate{
			Status:         &status,
			BlockingType:   &blocking,
			BlockingReason: &reason,
		}); err != nil {
			return Action{}, err
		}

		action := Action{Kind: ActionSpawnRole, TargetRole: defaultRole}
		if sig.TargetRole != nil {
			action.TargetRole = agent.Role(*sig.TargetRole)
		}
		if sig.Reason != nil {
			action.Reason = *sig.Reason
		}
		if sig.Context != nil {
			action.Context = *sig.Context
		}
		return action, nil

	case signal.NeedsUserInput:
		panic("orchestrator: needs-user-input must be routed to the awaiting-input state")

	default:
		panic(fmt.Sprintf("orchestrator: unknown signal kind %q", sig.Signal))
	}
}

// BuildContinuationContext combines a continuation point with the last
// DefaultTailLines lines of captured output. It returns nil when there is
// neither.
func BuildContinuationContext(point *string, output []string) *string {
	return buildContinuationContext(point, output, DefaultTailLines)
}

func buildContinuationContext(point *string, output []string, tailLines int) *string {
	if tailLines < 1 {
		tailLines = DefaultTailLines
	}
	tail := output
	if len(tail) > tailLines {
		tail = tail[len(tail)-tailLines:]
	}

	var b strings.Builder
	if point != nil {
		b.WriteString(*point)
	}
	if len(tail) > 0 {
		b.WriteString(ContinuationBanner)
		b.WriteString(strings.Join(tail, "\n"))
	}
	if point == nil && len(tail) == 0 {
		return nil
	}

	out := b.String()
	if point == nil {
		// Output alone still carries the banner.
		out = strings.TrimPrefix(out, "\n\n")
	}
	return &out
}
