// Package logging provides structured logging for questline runs.
//
// It wraps log/slog with a JSON handler. Each run writes to
// {stateDir}/runs/{runID}/debug.log, or to stderr when no directory is given.
// Long runs can rotate the file by size with [RotatingWriter].
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	questLog := logger.WithQuest(q.ID)
//	stepLog := questLog.WithStep(step.ID).WithSlot(2)
//	stepLog.Info("worker settled", "signal", "complete")
//
// produces
//
//	{"time":"...","level":"INFO","msg":"worker settled","quest_id":"...","step_id":"...","slot":2,"signal":"complete"}
//
// # Reading Logs Back
//
// [ReadLogs] parses a run's debug.log and [FilterLogs] narrows the entries by
// level, quest, step, phase, or message text. The "logs" command is built on
// these.
//
// # Testing
//
// Use [NopLogger] to discard output.
package logging
