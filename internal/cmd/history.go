package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/questline/internal/config"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/journal"
	"github.com/Iron-Ham/questline/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs from the journal",
	Long: `Without arguments, list recorded runs, most recent first.
With a run id, print every event recorded for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	j, err := journal.Open(cfg.Journal.ResolvePath(cfg.Paths.ResolveStateDir()))
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return printRunEvents(out, j, args[0])
	}

	runs, err := j.Runs(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	printRuns(out, runs)
	return nil
}

func printRuns(w io.Writer, runs []journal.Run) {
	idCol := lipgloss.NewStyle().Width(38)
	whenCol := lipgloss.NewStyle().Width(21)
	outcomeCol := lipgloss.NewStyle().Width(16)

	fmt.Fprintln(w, headStyle.Render(idCol.Render("RUN")+whenCol.Render("STARTED")+outcomeCol.Render("OUTCOME")+"QUEST"))
	for _, r := range runs {
		outcome := mutedStyle.Render("running")
		if r.Finished() {
			outcome = outcomeStyle(event.Outcome(r.Outcome)).Render(r.Outcome)
		}
		fmt.Fprintln(w,
			idCol.Render(r.ID)+
				whenCol.Render(r.StartedAt.Local().Format("2006-01-02 15:04:05"))+
				outcomeCol.Render(outcome)+
				util.Truncate(r.Title, 60),
		)
	}
}

func printRunEvents(w io.Writer, j *journal.Journal, runID string) error {
	run, err := j.Run(runID)
	if err != nil {
		return err
	}
	entries, err := j.Events(runID)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render(run.Title)+" "+mutedStyle.Render("("+run.QuestPath+")"))
	for _, e := range entries {
		fmt.Fprintf(w, "%s %-16s %s\n",
			mutedStyle.Render(e.Time.Local().Format("15:04:05.000")),
			e.Type,
			string(e.Data),
		)
	}
	return nil
}

func outcomeStyle(o event.Outcome) lipgloss.Style {
	switch o {
	case event.OutcomeCompleted:
		return okStyle
	case event.OutcomeAwaitingInput, event.OutcomeCancelled:
		return warnStyle
	default:
		return errStyle
	}
}
