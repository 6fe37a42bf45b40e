// Package tail streams newline-delimited records appended to a growing file.
//
// A [Handle] remembers a byte cursor into the file. Every write notification
// for the file triggers one read pass from the cursor to the end of the
// file; notifications that arrive while a pass is running are coalesced into
// at most one follow-up pass. Only complete lines are delivered: a trailing
// fragment without a newline stays behind the cursor until the writer
// finishes it.
package tail

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/fsnotify/fsnotify"
)

// Handle is a running tail on one file.
type Handle struct {
	path    string
	onLine  func(line string)
	onError func(err error)
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	stopOnce sync.Once
	stopped  atomic.Bool
	// callbackMu is held around every callback so Stop can wait out one
	// that is already running.
	callbackMu sync.Mutex

	mu      sync.Mutex
	cursor  int64
	reading bool
	pending bool
}

// Start begins tailing path. The cursor starts at the file's current size,
// so only lines appended after Start are delivered. onLine receives each
// non-empty line without its newline. onError receives read, stat, and
// watch errors; tailing continues after an error. Neither callback is
// invoked after Stop returns.
func Start(path string, onLine func(line string), onError func(err error)) (*Handle, error) {
	return StartFrom(path, -1, onLine, onError)
}

// StartFrom is like Start but places the cursor at offset. A negative
// offset means the end of the file. With a non-negative offset, one read
// pass runs right away, so lines already past offset (including lines
// written while the watch was being set up) are delivered.
func StartFrom(path string, offset int64, onLine func(line string), onError func(err error)) (*Handle, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("file", path).WithCause(os.ErrNotExist)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory; fsnotify tracks renames and re-creates more
	// reliably there than on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	if onError == nil {
		onError = func(error) {}
	}
	h := &Handle{
		path:    path,
		onLine:  onLine,
		onError: onError,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		cursor:  info.Size(),
	}
	if offset >= 0 && offset < info.Size() {
		h.cursor = offset
	}
	go h.watchLoop()
	if offset >= 0 {
		h.trigger()
	}
	return h, nil
}

// Path returns the tailed file path.
func (h *Handle) Path() string {
	return h.path
}

// Stop suppresses all further callbacks and releases the watch. A read pass
// already in progress may still be running when Stop returns, but it will
// not invoke any callback. Stop waits for a callback that is already running,
// so it must not be called from onLine or onError.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		close(h.stopCh)
		_ = h.watcher.Close()
	})
	h.callbackMu.Lock()
	h.callbackMu.Unlock()
}

func (h *Handle) watchLoop() {
	for {
		select {
		case <-h.stopCh:
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.path {
				continue
			}
			switch {
			case event.Op&fsnotify.Create != 0:
				// A re-created file starts over.
				h.mu.Lock()
				h.cursor = 0
				h.mu.Unlock()
				h.trigger()
			case event.Op&fsnotify.Write != 0:
				h.trigger()
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				h.reportError(errors.NewNotFoundError("file", h.path).WithCause(os.ErrNotExist))
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.reportError(fmt.Errorf("watch %s: %w", h.path, err))
		}
	}
}

// trigger starts a read pass unless one is already running, in which case a
// single follow-up pass is scheduled.
func (h *Handle) trigger() {
	if h.stopped.Load() {
		return
	}
	h.mu.Lock()
	if h.reading {
		h.pending = true
		h.mu.Unlock()
		return
	}
	h.reading = true
	h.mu.Unlock()

	go h.run()
}

func (h *Handle) run() {
	for {
		h.readPass()

		h.mu.Lock()
		if h.pending && !h.stopped.Load() {
			h.pending = false
			h.mu.Unlock()
			continue
		}
		h.pending = false
		h.reading = false
		h.mu.Unlock()
		return
	}
}

// readPass delivers the complete lines between the cursor and the end of the
// file, then re-stats the file to advance the cursor.
func (h *Handle) readPass() {
	h.mu.Lock()
	start := h.cursor
	h.mu.Unlock()

	consumed, readErr := h.readFrom(start)
	if readErr != nil {
		h.reportError(readErr)
	}

	info, err := os.Stat(h.path)
	if err != nil {
		h.reportError(fmt.Errorf("stat %s: %w", h.path, err))
		h.mu.Lock()
		h.cursor = start + consumed
		h.mu.Unlock()
		return
	}

	next := start + consumed
	if info.Size() < next {
		// Truncated underneath us.
		next = info.Size()
	}
	h.mu.Lock()
	h.cursor = next
	h.mu.Unlock()
}

func (h *Handle) readFrom(offset int64) (int64, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", h.path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %s: %w", h.path, err)
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Any fragment without a newline is left for the next pass.
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read %s: %w", h.path, err)
		}
		consumed += int64(len(line))

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		h.deliver(string(line))
	}
}

func (h *Handle) deliver(line string) {
	h.callbackMu.Lock()
	defer h.callbackMu.Unlock()
	if h.stopped.Load() || h.onLine == nil {
		return
	}
	h.onLine(line)
}

func (h *Handle) reportError(err error) {
	h.callbackMu.Lock()
	defer h.callbackMu.Unlock()
	if h.stopped.Load() {
		return
	}
	h.onError(err)
}
