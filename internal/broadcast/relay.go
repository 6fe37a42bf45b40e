package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/Iron-Ham/questline/internal/chatline"
	"github.com/Iron-Ham/questline/internal/event"
	"github.com/Iron-Ham/questline/internal/stream"
)

// ChatRelay turns raw worker output into correlated chat.line events on the
// same bus. All workers share one correlator.
type ChatRelay struct {
	bus        *event.Bus
	correlator *chatline.Correlator

	mu       sync.Mutex
	sessions map[string]string // step id -> session id
}

// NewChatRelay creates a ChatRelay publishing to bus.
func NewChatRelay(bus *event.Bus) *ChatRelay {
	return &ChatRelay{
		bus:        bus,
		correlator: chatline.New(),
		sessions:   make(map[string]string),
	}
}

// Attach subscribes the relay to worker output. The returned func removes
// the subscription.
func (r *ChatRelay) Attach() func() {
	id := r.bus.Subscribe(event.TypeWorkerOutput, r.handle)
	return func() { r.bus.Unsubscribe(id) }
}

func (r *ChatRelay) handle(e event.Event) {
	ev, ok := e.(event.WorkerOutputEvent)
	if !ok {
		return
	}
	sessionID := r.session(ev.StepID, ev.Line)
	for _, out := range r.correlator.ProcessLine(ev.Line, chatline.SourceSession, "") {
		data, err := json.Marshal(out)
		if err != nil {
			continue
		}
		r.bus.Publish(event.NewChatLineEvent(sessionID, data))
	}
}

// session remembers the latest session id seen for a step.
func (r *ChatRelay) session(stepID string, line []byte) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := stream.SessionIDOfLine(line); ok {
		r.sessions[stepID] = id
	}
	return r.sessions[stepID]
}
