package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status <quest.json>",
	Short: "Show the steps of a quest",
	Long: `Display every step of a quest with its status. Steps that would be
dispatched next are marked with ▶.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	q, err := quest.NewStore().Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load quest: %w", err)
	}
	printQuestStatus(cmd.OutOrStdout(), q)
	return nil
}

const (
	nameColumnWidth     = 36
	blockingReasonWidth = 96
)

func printQuestStatus(w io.Writer, q *quest.Quest) {
	fmt.Fprintln(w, titleStyle.Render(q.Title)+" "+mutedStyle.Render("("+q.ID+")"))
	fmt.Fprintf(w, "Status: %s\n\n", q.Status)

	nameCol := lipgloss.NewStyle().Width(nameColumnWidth)
	statusCol := lipgloss.NewStyle().Width(20)

	fmt.Fprintln(w, "  "+headStyle.Render(nameCol.Render("STEP")+statusCol.Render("STATUS")+"DEPENDS ON"))
	for _, st := range q.Steps {
		ready := quest.IsReady(st, q.Steps)
		deps := mutedStyle.Render("-")
		if len(st.DependsOn) > 0 {
			deps = strings.Join(dependencyNames(q, st.DependsOn), ", ")
		}
		fmt.Fprintf(w, "%s %s%s%s\n",
			statusMarker(st.Status, ready),
			nameCol.Render(util.Truncate(st.Name, nameColumnWidth-2)),
			statusCol.Render(statusStyle(st.Status).Render(string(st.Status))),
			deps,
		)
		if st.Status == quest.StepBlocked && st.BlockingReason != "" {
			fmt.Fprintf(w, "    %s\n", warnStyle.Render(util.Truncate(string(st.BlockingType)+": "+st.BlockingReason, blockingReasonWidth)))
		}
	}

	s := q.Summarize()
	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryBox.Render(fmt.Sprintf(
		"%d steps  %s complete  %s in progress  %s waiting  %s failed  %d ready",
		s.Total,
		okStyle.Render(fmt.Sprint(s.Complete)),
		fmt.Sprint(s.InProgress),
		warnStyle.Render(fmt.Sprint(s.Blocked+s.PartiallyComplete)),
		errStyle.Render(fmt.Sprint(s.Failed)),
		len(q.ReadySteps()),
	)))
}

// dependencyNames maps step ids to names, keeping unknown ids as is.
func dependencyNames(q *quest.Quest, ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if st, ok := q.FindStep(id); ok {
			names = append(names, st.Name)
			continue
		}
		names = append(names, errStyle.Render(id+" (missing)"))
	}
	return names
}

