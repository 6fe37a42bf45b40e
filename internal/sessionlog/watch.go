package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/questline/internal/chatline"
	"github.com/Iron-Ham/questline/internal/tail"
)

// SubagentTail follows every sub-worker file of a live session. Files that
// exist when it starts are followed from their current end; files created
// later are read from the beginning. All lines go through one correlator
// and the sink is never called concurrently.
type SubagentTail struct {
	dir        string
	correlator *chatline.Correlator
	sink       Sink
	onError    func(error)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      conc.WaitGroup

	mu      sync.Mutex
	tails   map[string]*tail.Handle
	stopped bool

	sinkMu sync.Mutex
}

// StartSubagentTail begins following the sub-worker files in dir, creating
// dir if the session has not launched a sub-worker yet. onError may be nil.
func StartSubagentTail(dir string, c *chatline.Correlator, sink Sink, onError func(error)) (*SubagentTail, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create subagent directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch subagent directory: %w", err)
	}

	if onError == nil {
		onError = func(error) {}
	}
	st := &SubagentTail{
		dir:        dir,
		correlator: c,
		sink:       sink,
		onError:    onError,
		watcher:    watcher,
		stopCh:     make(chan struct{}),
		tails:      make(map[string]*tail.Handle),
	}

	listing, err := ListSubagents(dir)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	for _, path := range listing.Files {
		st.follow(path, -1)
	}

	st.wg.Go(st.watchLoop)
	return st, nil
}

// Files returns the sub-worker files being followed, sorted.
func (s *SubagentTail) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]string, 0, len(s.tails))
	for path := range s.tails {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Stop ends every tail. No sink call starts after Stop returns.
func (s *SubagentTail) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tails := s.tails
	s.tails = make(map[string]*tail.Handle)
	s.mu.Unlock()

	close(s.stopCh)
	_ = s.watcher.Close()
	for _, h := range tails {
		h.Stop()
	}
	s.wg.Wait()

	// Wait for an in-flight sink call.
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
}

func (s *SubagentTail) watchLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 || !IsSubagentFile(filepath.Base(ev.Name)) {
				continue
			}
			s.follow(filepath.Clean(ev.Name), 0)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.reportError(fmt.Errorf("watch %s: %w", s.dir, err))
		}
	}
}

// follow starts a tail on path unless one is already running.
func (s *SubagentTail) follow(path string, offset int64) {
	s.mu.Lock()
	_, running := s.tails[path]
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || running {
		return
	}

	agentID := AgentIDFromFile(path)
	h, err := tail.StartFrom(path, offset, func(line string) {
		s.deliver([]byte(line), agentID)
	}, s.reportError)
	if err != nil {
		s.reportError(err)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		h.Stop()
		return
	}
	s.tails[path] = h
	s.mu.Unlock()
}

func (s *SubagentTail) deliver(line []byte, agentID string) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if s.isStopped() {
		return
	}
	for _, out := range s.correlator.ProcessLine(line, chatline.SourceSubagent, agentID) {
		s.sink(out)
	}
}

func (s *SubagentTail) reportError(err error) {
	if s.isStopped() {
		return
	}
	s.onError(err)
}

func (s *SubagentTail) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
