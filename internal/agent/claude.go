package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/logging"
)

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// children after the process itself exits.
const waitDelay = 5 * time.Second

// ClaudeSpawner runs each work unit as a non-interactive Claude CLI process
// emitting stream-json on stdout.
type ClaudeSpawner struct {
	// Command is the CLI executable. Empty means "claude".
	Command string
	// Model is passed as --model when set.
	Model string
	// ExtraArgs are placed before the streaming flags.
	ExtraArgs []string
	// SignalTool is the tool name that carries signals.
	SignalTool string
	// Env is added to the inherited environment.
	Env map[string]string

	Prompts PromptBuilder
	Logger  *logging.Logger
}

// Args returns the CLI arguments for a spawn.
func (s *ClaudeSpawner) Args(opts SpawnOptions) []string {
	args := make([]string, 0, len(s.ExtraArgs)+8)
	args = append(args, s.ExtraArgs...)
	args = append(args, "--print", "--output-format", "stream-json", "--verbose")
	if s.Model != "" {
		args = append(args, "--model", s.Model)
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	return args
}

// Spawn starts the CLI for unit. The prompt is written to stdin. The returned
// Worker's Result is delivered when the process exits and stdout is drained.
func (s *ClaudeSpawner) Spawn(ctx context.Context, unit WorkUnit, opts SpawnOptions) (Worker, error) {
	if s.Prompts == nil {
		return nil, fmt.Errorf("claude spawner has no prompt builder")
	}
	prompt, err := s.Prompts.Build(unit, opts.ContinuationContext)
	if err != nil {
		return nil, errors.NewAgentError("failed to build prompt", err).
			WithRole(string(unit.Role)).WithStepID(unit.Step.ID).WithRetryable(false)
	}

	command := s.Command
	if command == "" {
		command = "claude"
	}
	args := s.Args(opts)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Dir = unit.WorkDir
	setupProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = os.Environ()
	for k, v := range s.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Wait closes stdoutW, so reading ends even if an orphaned child still
	// holds the process's stdout.
	stdout, stdoutW := io.Pipe()
	cmd.Stdout = stdoutW
	if err := cmd.Start(); err != nil {
		cancel()
		_ = stdoutW.Close()
		return nil, errors.NewAgentError("failed to start "+command, errors.Join(errors.ErrSpawnFailed, err)).
			WithRole(string(unit.Role)).WithStepID(unit.Step.ID).WithSessionID(opts.ResumeSessionID)
	}

	log := s.logger().WithStep(unit.Step.ID).With("role", string(unit.Role), "pid", cmd.Process.Pid)
	log.Debug("worker started", "command", command, "args", strings.Join(args, " "), "resume", opts.ResumeSessionID)

	w := &processWorker{
		monitor: NewMonitor(s.SignalTool),
		cancel:  cancel,
		done:    make(chan Result, 1),
	}
	go w.run(runCtx, cmd, stdout, stdoutW, opts, log)
	return w, nil
}

func (s *ClaudeSpawner) logger() *logging.Logger {
	if s.Logger == nil {
		return logging.NopLogger()
	}
	return s.Logger
}

// processWorker is a Worker backed by an exec.Cmd.
type processWorker struct {
	monitor *Monitor
	cancel  context.CancelFunc
	done    chan Result

	killOnce sync.Once
}

func (w *processWorker) Done() <-chan Result { return w.done }

func (w *processWorker) SessionID() string { return w.monitor.SessionID() }

func (w *processWorker) Kill() {
	w.killOnce.Do(w.cancel)
}

func (w *processWorker) run(ctx context.Context, cmd *exec.Cmd, stdout *io.PipeReader, stdoutW *io.PipeWriter, opts SpawnOptions, log *logging.Logger) {
	defer close(w.done)
	defer w.cancel()

	var waitErr error
	waited := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		_ = stdoutW.Close()
		close(waited)
	}()

	// Everything the worker wrote before dying must still be observed, so
	// reading is not tied to ctx.
	if err := w.monitor.Consume(context.Background(), stdout, opts.OnLine); err != nil {
		log.Warn("stream read failed", "error", err.Error())
		_, _ = io.Copy(io.Discard, stdout)
	}
	<-waited

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	exitCode := 0
	if waitErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	res := w.monitor.Result(exitCode, timedOut)
	sig := ""
	if res.Signal != nil {
		sig = string(res.Signal.Signal)
	}
	log.Info("worker exited",
		"exit_code", exitCode,
		"timed_out", timedOut,
		"session_id", res.SessionID,
		"signal", sig,
		"captured_lines", len(res.CapturedOutput),
	)
	w.done <- res
}
