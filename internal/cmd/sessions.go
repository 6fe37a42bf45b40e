package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/questline/internal/chatline"
	"github.com/Iron-Ham/questline/internal/config"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/sessionlog"
	"github.com/Iron-Ham/questline/internal/stream"
	"github.com/Iron-Ham/questline/internal/tail"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Replay a finished worker session",
	Long: `Replay reads a session's history file and the files of every sub-worker
it launched, tagging each entry with the sub-worker that produced it.

Output is JSON lines when stdout is not a terminal or --json is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow a running worker session",
	Long: `Tail follows a live session's history file and its sub-worker files,
including sub-workers launched after the command starts. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

var (
	sessionCwd  string
	sessionJSON bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(tailCmd)

	for _, c := range []*cobra.Command{replayCmd, tailCmd} {
		c.Flags().StringVar(&sessionCwd, "cwd", "", "Working directory the session ran in (default: current directory)")
		c.Flags().BoolVar(&sessionJSON, "json", false, "Print JSON lines even on a terminal")
	}
}

func sessionLocator() (sessionlog.Locator, error) {
	cwd := sessionCwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return sessionlog.Locator{}, fmt.Errorf("failed to get current directory: %w", err)
		}
		cwd = wd
	}
	cfg := config.Get()
	return sessionlog.NewLocator(cfg.Paths.ResolveClaudeProjectsDir(), cwd), nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	loc, err := sessionLocator()
	if err != nil {
		return err
	}
	p := newChatPrinter(cmd.OutOrStdout(), sessionJSON)
	if err := sessionlog.Replay(cmd.Context(), loc, args[0], chatline.New(), p.print); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "no session %s under %s", args[0], loc.ProjectDir())
		}
		return err
	}
	return nil
}

func runTail(cmd *cobra.Command, args []string) error {
	loc, err := sessionLocator()
	if err != nil {
		return err
	}
	sessionID := args[0]
	errOut := cmd.ErrOrStderr()
	onError := func(err error) {
		fmt.Fprintln(errOut, errStyle.Render("tail: "+err.Error()))
	}

	p := newChatPrinter(cmd.OutOrStdout(), sessionJSON)
	c := chatline.New()

	mainTail, err := tail.Start(loc.SessionFile(sessionID), func(line string) {
		for _, out := range c.ProcessLine([]byte(line), chatline.SourceSession, "") {
			p.print(out)
		}
	}, onError)
	if err != nil {
		return fmt.Errorf("failed to follow session %s: %w", sessionID, err)
	}
	defer mainTail.Stop()

	subs, err := sessionlog.StartSubagentTail(loc.SubagentDir(sessionID), c, p.print, onError)
	if err != nil {
		return err
	}
	defer subs.Stop()

	if !p.raw {
		fmt.Fprintln(errOut, mutedStyle.Render(fmt.Sprintf("Following %s (%d sub-workers)... (Ctrl+C to stop)", sessionID, len(subs.Files()))))
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

// chatPrinter writes correlated outputs either as JSON lines or as rendered
// text. It is safe for concurrent use.
type chatPrinter struct {
	mu  sync.Mutex
	w   io.Writer
	raw bool
}

func newChatPrinter(w io.Writer, forceJSON bool) *chatPrinter {
	return &chatPrinter{w: w, raw: forceJSON || !isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (p *chatPrinter) print(out chatline.Output) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.raw {
		data, err := json.Marshal(out)
		if err != nil {
			return
		}
		fmt.Fprintln(p.w, string(data))
		return
	}

	if out.Type == chatline.OutputPatch {
		fmt.Fprintln(p.w, mutedStyle.Render(fmt.Sprintf("  ↳ %s ran as agent %s", out.Patch.ToolUseID, out.Patch.AgentID)))
		return
	}
	prefix := mutedStyle.Render("[main]")
	if out.Entry.AgentID != "" {
		prefix = titleStyle.Render("[" + out.Entry.AgentID + "]")
	}
	for _, line := range stream.Render(out.Entry.Record) {
		fmt.Fprintf(p.w, "%s %s\n", prefix, line)
	}
}
