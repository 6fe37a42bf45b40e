package cmd

import (
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/questline/internal/config"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/logging"
	"github.com/Iron-Ham/questline/internal/tail"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View orchestration logs",
	Long: `View and filter the debug log written by questline run.

Examples:
  # Show the last 50 entries
  questline logs

  # Only warnings and errors for one step
  questline logs --level warn --step 11111111-1111-4111-8111-111111111111

  # Follow new entries as they are written
  questline logs -f`,
	RunE: runLogs,
}

var (
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsQuest  string
	logsStep   string
	logsPhase  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsQuest, "quest", "", "Only entries for this quest id")
	logsCmd.Flags().StringVar(&logsStep, "step", "", "Only entries for this step id")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "Only entries for this phase")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
}

func logsFilter() logging.LogFilter {
	f := logging.LogFilter{
		QuestID:         logsQuest,
		StepID:          logsStep,
		Phase:           logsPhase,
		MessageContains: logsGrep,
	}
	if logsLevel != "" {
		f.Level = logging.ParseLevel(logsLevel)
	}
	return f
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logDir(config.Get().Paths.ResolveStateDir())
	out := cmd.OutOrStdout()
	filter := logsFilter()

	if logsFollow {
		return followLogs(cmd, filepath.Join(dir, logging.LogFileName), filter)
	}

	entries, err := logging.ReadLogs(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "No logs found.")
			fmt.Fprintln(out, "Logs are stored at:", filepath.Join(dir, logging.LogFileName))
			return nil
		}
		return err
	}
	printLogEntries(out, logging.FilterLogs(entries, filter), logsTail)
	return nil
}

func printLogEntries(w io.Writer, entries []logging.LogEntry, limit int) {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
		return
	}
	for _, e := range entries {
		fmt.Fprintln(w, levelStyle(e.Level).Render(logging.FormatText(e)))
	}
}

func followLogs(cmd *cobra.Command, path string, filter logging.LogFilter) error {
	out := cmd.OutOrStdout()
	h, err := tail.Start(path, func(line string) {
		entries, err := logging.ParseLogs(strings.NewReader(line))
		if err != nil {
			return
		}
		for _, e := range logging.FilterLogs(entries, filter) {
			fmt.Fprintln(out, levelStyle(e.Level).Render(logging.FormatText(e)))
		}
	}, func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render(err.Error()))
	})
	if err != nil {
		return fmt.Errorf("failed to follow %s: %w", path, err)
	}
	defer h.Stop()

	fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("Following logs... (Ctrl+C to stop)"))
	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
