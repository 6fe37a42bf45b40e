package agent

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/Iron-Ham/questline/internal/signal"
	"github.com/Iron-Ham/questline/internal/stream"
)

// Monitor accumulates what a worker reports on its stream-json stdout.
// It is safe for concurrent use.
type Monitor struct {
	extractor signal.Extractor

	mu        sync.Mutex
	sessionID string
	sig       *signal.StreamSignal
	captured  []string
}

// NewMonitor returns a Monitor that recognizes signals sent through toolName.
func NewMonitor(toolName string) *Monitor {
	return &Monitor{extractor: signal.NewExtractor(toolName)}
}

// Observe processes one stdout line. Malformed lines are ignored.
func (m *Monitor) Observe(line []byte) {
	rec, err := stream.ParseLine(line)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		m.sessionID = rec.SessionID()
	}
	if text, ok := stream.Text(rec); ok {
		for _, l := range strings.Split(text, "\n") {
			if strings.TrimSpace(l) != "" {
				m.captured = append(m.captured, l)
			}
		}
	}
	if m.sig == nil {
		if s, ok := m.extractor.FromRecord(rec); ok {
			m.sig = &s
		}
	}
}

// Consume reads r line by line until EOF, calling onLine (if set) before
// observing each line.
func (m *Monitor) Consume(ctx context.Context, r io.Reader, onLine func([]byte)) error {
	return stream.ReadLines(ctx, r, func(line []byte) error {
		if onLine != nil {
			onLine(line)
		}
		m.Observe(line)
		return nil
	})
}

// SessionID returns the first session id seen.
func (m *Monitor) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Signal returns the first valid signal seen, or nil.
func (m *Monitor) Signal() *signal.StreamSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sig
}

// Captured returns a copy of the captured assistant text lines.
func (m *Monitor) Captured() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.captured...)
}

// Result builds a Result from the observations and the exit status.
func (m *Monitor) Result(exitCode int, timedOut bool) Result {
	return Result{
		SessionID:      m.SessionID(),
		ExitCode:       exitCode,
		Crashed:        !timedOut && exitCode != 0,
		TimedOut:       timedOut,
		Signal:         m.Signal(),
		CapturedOutput: m.Captured(),
	}
}
