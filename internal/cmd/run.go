package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/broadcast"
	"github.com/Iron-Ham/questline/internal/config"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/journal"
	"github.com/Iron-Ham/questline/internal/logging"
	"github.com/Iron-Ham/questline/internal/orchestrator"
	"github.com/Iron-Ham/questline/internal/prompt"
	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run <quest.json>",
	Short: "Run a quest until it completes or gets stuck",
	Long: `Run dispatches every ready step of a quest to a Claude worker, up to the
configured number of slots, and keeps going until all steps are complete,
nothing more can be dispatched, or a worker asks for user input.

The command exits non-zero when the quest is stuck.

Examples:
  # Run with three concurrent workers
  questline run quests/add-auth.json --slots 3

  # Stream events to websocket clients on port 7777
  questline run quests/add-auth.json --listen 127.0.0.1:7777`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runSlots   int
	runTimeout time.Duration
	runListen  string
	runRole    string
	runQuiet   bool
)

// errQuestStuck is returned when the loop ends with unfinished steps that
// nothing can advance.
var errQuestStuck = errors.New("quest is stuck")

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runSlots, "slots", "s", 0, "Number of concurrent workers (default from config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-worker timeout, e.g. 45m (default from config)")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Serve the event feed on host:port")
	runCmd.Flags().StringVar(&runRole, "role", string(agent.RoleCodeweaver), "Role dispatched for ready steps")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final summary")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cmd.Flags().Changed("slots") {
		cfg.Orchestration.SlotCount = runSlots
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Orchestration.WorkerTimeout = runTimeout.String()
	}
	if cmd.Flags().Changed("listen") {
		cfg.Broadcast.Listen = runListen
	}

	questPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve quest path: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	stateDir := cfg.Paths.ResolveStateDir()

	logger, err := newRunLogger(cfg, stateDir)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	resolver, err := prompt.NewResolverFromFile(config.ExpandHome(cfg.Prompts.OverridesFile))
	if err != nil {
		return fmt.Errorf("failed to load prompt overrides: %w", err)
	}

	spawner := &agent.ClaudeSpawner{
		Command:    cfg.Agent.Command,
		Model:      cfg.Agent.Model,
		ExtraArgs:  cfg.Agent.ExtraArgs,
		SignalTool: cfg.Agent.SignalTool,
		Prompts:    resolver,
		Logger:     logger,
	}

	bus := event.NewBus()
	orch := orchestrator.New(quest.NewStore(), spawner, orchestrator.Options{
		SlotCount:             cfg.Orchestration.SlotCount,
		WorkerTimeout:         cfg.Orchestration.WorkerTimeoutDuration(),
		MaxCrashRetries:       cfg.Orchestration.MaxCrashRetries,
		Role:                  agent.Role(runRole),
		FollowupRole:          agent.Role(cfg.Orchestration.DefaultFollowupRole),
		ContinuationTailLines: cfg.Orchestration.ContinuationTailLines,
		WorkDir:               workDir,
	})
	orch.SetLogger(logger)
	orch.SetEventBus(bus)

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.ResolvePath(stateDir))
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()
		j.SetLogger(logger.WithPhase("journal"))
		defer j.Attach(bus)()
	}

	out := cmd.OutOrStdout()
	if !runQuiet {
		defer attachProgress(bus, out)()
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if cfg.Broadcast.Listen != "" {
		hub := broadcast.NewHub()
		hub.SetLogger(logger.WithPhase("broadcast"))
		defer hub.Close()
		defer hub.Attach(bus)()
		defer broadcast.NewChatRelay(bus).Attach()()

		srv, err := broadcast.Listen(cfg.Broadcast.Listen, hub)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, mutedStyle.Render("Event feed: ws://"+srv.Addr()+broadcast.EventsPath))
		g.Go(func() error { return srv.Serve(serveCtx) })
	}

	var result *orchestrator.Result
	g.Go(func() error {
		defer stopServing()
		var err error
		result, err = orch.Run(gctx, questPath)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(out, warnStyle.Render("Run cancelled; workers stopped."))
		}
		return err
	}

	printRunSummary(out, result)
	if result.Outcome() == event.OutcomeStuck {
		return errQuestStuck
	}
	return nil
}

func newRunLogger(cfg *config.Config, stateDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLoggerWithRotation(logDir(stateDir), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func logDir(stateDir string) string {
	return filepath.Join(stateDir, "logs")
}

// attachProgress prints one line per dispatch and status change.
func attachProgress(bus *event.Bus, w io.Writer) func() {
	ids := []string{
		bus.Subscribe(event.TypeStepDispatched, func(e event.Event) {
			ev := e.(event.StepDispatchedEvent)
			line := fmt.Sprintf("[slot %d] %s %s (%s)", ev.Slot, titleStyle.Render(ev.Role), ev.StepName, ev.Reason)
			fmt.Fprintln(w, line)
		}),
		bus.Subscribe(event.TypeStepUpdated, func(e event.Event) {
			ev := e.(event.StepUpdatedEvent)
			status := quest.StepStatus(ev.Status)
			if status == quest.StepInProgress {
				return
			}
			line := fmt.Sprintf("         %s %s", util.ShortID(ev.StepID), statusStyle(status).Render(ev.Status))
			if ev.BlockingReason != "" {
				line += mutedStyle.Render(" - " + ev.BlockingReason)
			}
			fmt.Fprintln(w, line)
		}),
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

func printRunSummary(w io.Writer, r *orchestrator.Result) {
	var b strings.Builder
	switch r.Outcome() {
	case event.OutcomeCompleted:
		b.WriteString(okStyle.Render("Quest complete"))
	case event.OutcomeAwaitingInput:
		in := r.AwaitingInput
		b.WriteString(warnStyle.Render("Waiting for user input"))
		fmt.Fprintf(&b, "\nStep: %s\nQuestion: %s", in.StepID, in.Question)
		if in.Context != "" {
			fmt.Fprintf(&b, "\nContext: %s", in.Context)
		}
	default:
		b.WriteString(errStyle.Render("Quest stuck"))
		for _, st := range r.IncompleteSteps {
			fmt.Fprintf(&b, "\n  %s %s %s", util.ShortID(st.ID), st.Name, statusStyle(st.Status).Render(string(st.Status)))
		}
	}
	fmt.Fprintf(&b, "\n%s", mutedStyle.Render("run "+r.RunID))
	fmt.Fprintln(w, summaryBox.Render(b.String()))
}

