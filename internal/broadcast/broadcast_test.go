package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Iron-Ham/questline/internal/event"
)

func dialHub(t *testing.T, ctx context.Context, url string, hub *Hub, want int) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() < want {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", hub.Clients(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ws
}

func TestHub_BroadcastsBusEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := NewHub()
	bus := event.NewBus()
	detach := hub.Attach(bus)
	defer detach()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	a := dialHub(t, ctx, ts.URL, hub, 1)
	defer a.Close(websocket.StatusNormalClosure, "test finished")
	b := dialHub(t, ctx, ts.URL, hub, 2)
	defer b.Close(websocket.StatusNormalClosure, "test finished")

	bus.Publish(event.NewWorkerOutputEvent("step-a", 0, []byte(`{"type":"assistant"}`)))
	bus.Publish(event.NewStepUpdatedEvent("run-1", "step-a", "complete", "", ""))

	for name, ws := range map[string]*websocket.Conn{"a": a, "b": b} {
		var env event.Envelope
		if err := wsjson.Read(ctx, ws, &env); err != nil {
			t.Fatalf("%s: wsjson.Read: %v", name, err)
		}
		if env.Type != event.TypeStepUpdated {
			t.Errorf("%s: Type = %q, want %q", name, env.Type, event.TypeStepUpdated)
		}
		var data struct {
			StepID string `json:"stepId"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("%s: unmarshal data: %v", name, err)
		}
		if data.StepID != "step-a" || data.Status != "complete" {
			t.Errorf("%s: data = %+v, want step-a complete", name, data)
		}
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	ws := dialHub(t, ctx, ts.URL, hub, 1)
	ws.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d after disconnect, want 0", hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	hub.buffer = 1
	c := &client{send: make(chan []byte, hub.buffer)}
	hub.add(c)

	hub.Broadcast(event.Envelope{Type: "x"})
	hub.Broadcast(event.Envelope{Type: "y"})

	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", hub.Clients())
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("first message missing")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after drop")
	}
	// Removing an already dropped client must not double close.
	hub.remove(c)
}

func TestChatRelay_PublishesChatLines(t *testing.T) {
	bus := event.NewBus()
	relay := NewChatRelay(bus)
	detach := relay.Attach()
	defer detach()

	var (
		mu    sync.Mutex
		lines []event.ChatLineEvent
	)
	bus.Subscribe(event.TypeChatLine, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, e.(event.ChatLineEvent))
	})

	bus.Publish(event.NewWorkerOutputEvent("step-a", 0, []byte(`{"type":"system","subtype":"init","session_id":"sess-1"}`)))
	bus.Publish(event.NewWorkerOutputEvent("step-a", 0, []byte(`{"type":"assistant","session_id":"sess-1","message":{"content":[{"type":"tool_use","id":"toolu_1","name":"Task","input":{}}]}}`)))
	bus.Publish(event.NewWorkerOutputEvent("step-a", 0, []byte(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"ok"}]},"toolUseResult":{"agentId":"a1"}}`)))

	mu.Lock()
	defer mu.Unlock()
	// assistant entry, then patch + user entry
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for i, l := range lines {
		if l.SessionID != "sess-1" {
			t.Errorf("lines[%d].SessionID = %q, want sess-1", i, l.SessionID)
		}
	}
	var patch struct {
		Type      string `json:"type"`
		ToolUseID string `json:"toolUseId"`
		AgentID   string `json:"agentId"`
	}
	if err := json.Unmarshal(lines[1].Output, &patch); err != nil {
		t.Fatalf("unmarshal patch: %v", err)
	}
	if patch.Type != "patch" || patch.ToolUseID != "toolu_1" || patch.AgentID != "a1" {
		t.Errorf("patch = %+v, want patch toolu_1 -> a1", patch)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	hub := NewHub()
	srv, err := Listen("127.0.0.1:0", hub)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
