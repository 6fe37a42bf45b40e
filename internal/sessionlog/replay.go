package sessionlog

import (
	"context"
	"fmt"
	"os"

	"github.com/Iron-Ham/questline/internal/chatline"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/stream"
)

// Sink receives correlated outputs in order.
type Sink func(out chatline.Output)

// Replay feeds a finished session through c: first the main history file as
// source=session, then every sub-worker file as source=subagent tagged with
// the agent id from its file name. A missing main file is an error; a
// missing sub-worker directory is not.
func Replay(ctx context.Context, loc Locator, sessionID string, c *chatline.Correlator, sink Sink) error {
	main := loc.SessionFile(sessionID)
	if _, err := os.Stat(main); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("session", sessionID).WithCause(os.ErrNotExist)
		}
		return fmt.Errorf("stat session file: %w", err)
	}
	if err := replayFile(ctx, main, chatline.SourceSession, "", c, sink); err != nil {
		return err
	}

	listing, err := ListSubagents(loc.SubagentDir(sessionID))
	if err != nil {
		return err
	}
	if listing.NotFound {
		return nil
	}
	for _, path := range listing.Files {
		if err := replayFile(ctx, path, chatline.SourceSubagent, AgentIDFromFile(path), c, sink); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(ctx context.Context, path string, source chatline.Source, agentID string, c *chatline.Correlator, sink Sink) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	err = stream.ReadLines(ctx, f, func(line []byte) error {
		for _, out := range c.ProcessLine(line, source, agentID) {
			sink(out)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
