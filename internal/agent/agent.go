// Package agent launches worker processes for quest steps and observes them
// until they exit.
//
// A [Spawner] starts one worker per [WorkUnit]. The returned [Worker] reports
// exactly one [Result] on its Done channel: the first session id the worker
// announced, the first valid signal it sent, its assistant text, and how it
// exited.
package agent

import (
	"context"
	"time"

	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/signal"
)

// Role is the kind of agent assigned to a work unit.
type Role string

const (
	RolePathseeker   Role = "pathseeker"
	RoleCodeweaver   Role = "codeweaver"
	RoleSiegemaster  Role = "siegemaster"
	RoleLawbringer   Role = "lawbringer"
	RoleSpiritmender Role = "spiritmender"
)

// KnownRoles returns the built-in roles.
func KnownRoles() []Role {
	return []Role{RolePathseeker, RoleCodeweaver, RoleSiegemaster, RoleLawbringer, RoleSpiritmender}
}

// WorkUnit is everything a worker needs to act on one step.
type WorkUnit struct {
	Role    Role
	QuestID string
	// WorkDir is the directory the worker runs in.
	WorkDir string
	Step    quest.Step

	// FollowupReason and FollowupContext are set when the unit was created
	// by a needs-role-followup signal.
	FollowupReason  string
	FollowupContext string
}

// SpawnOptions adjusts a single spawn.
type SpawnOptions struct {
	// ResumeSessionID continues an earlier worker session.
	ResumeSessionID string
	// ContinuationContext is appended to the prompt of a resumed worker.
	ContinuationContext string
	// Timeout kills the worker after this long. 0 disables the limit.
	Timeout time.Duration
	// OnLine receives every raw stdout line. It runs on the worker's reader
	// goroutine and must not block.
	OnLine func(line []byte)
}

// Result describes how a worker ended.
type Result struct {
	// SessionID is the first session id seen on the stream, if any.
	SessionID string
	// ExitCode is -1 when the process did not exit normally.
	ExitCode int
	// Crashed is set for a non-zero exit that was not caused by the timeout.
	Crashed bool
	// TimedOut is set when the worker was killed for exceeding its timeout.
	TimedOut bool
	// Signal is the first valid signal, or nil.
	Signal *signal.StreamSignal
	// CapturedOutput holds the assistant text, one entry per line.
	CapturedOutput []string
}

// Worker is a running worker process.
type Worker interface {
	// Done delivers the Result once and is then closed.
	Done() <-chan Result
	// Kill stops the worker. It is safe to call at any time.
	Kill()
	// SessionID returns the session id seen so far.
	SessionID() string
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context, unit WorkUnit, opts SpawnOptions) (Worker, error)
}

// PromptBuilder renders the prompt text sent to a worker.
type PromptBuilder interface {
	Build(unit WorkUnit, continuationContext string) (string, error)
}
