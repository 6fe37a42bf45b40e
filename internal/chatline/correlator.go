// Package chatline tags streamed Claude records with the sub-worker that
// produced them.
//
// A primary worker launches sub-workers through the "Task" tool. The id of
// the sub-worker is only reported when the Task call returns, in a user
// record whose toolUseResult carries agentId. That record may be logged
// before or after the assistant record that made the Task call. When the
// correlation arrives late, the [Correlator] emits a patch so that consumers
// can re-tag an entry they have already rendered.
package chatline

import (
	"encoding/json"
	"sync"

	"github.com/Iron-Ham/questline/internal/stream"
)

// TaskToolName is the tool used by a worker to launch a sub-worker.
const TaskToolName = "Task"

// Source says where a line was read from.
type Source string

const (
	// SourceSession is the primary worker's own stream or history file.
	SourceSession Source = "session"
	// SourceSubagent is a sub-worker's output file.
	SourceSubagent Source = "subagent"
)

// OutputType discriminates Output values.
type OutputType string

const (
	OutputEntry OutputType = "entry"
	OutputPatch OutputType = "patch"
)

// Entry is an enriched copy of one input record.
type Entry struct {
	Record  stream.Record
	Source  Source
	AgentID string
}

// MarshalJSON emits the original record fields plus "source" and, when
// known, "agentId".
func (e Entry) MarshalJSON() ([]byte, error) {
	fields := e.Record.Fields()
	out := make(map[string]json.RawMessage, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	src, err := json.Marshal(e.Source)
	if err != nil {
		return nil, err
	}
	out["source"] = src
	if e.AgentID != "" {
		id, err := json.Marshal(e.AgentID)
		if err != nil {
			return nil, err
		}
		out["agentId"] = id
	}
	return json.Marshal(out)
}

// Patch tells a consumer to re-tag the entry containing ToolUseID.
type Patch struct {
	ToolUseID string `json:"toolUseId"`
	AgentID   string `json:"agentId"`
}

// Output is either an entry or a patch, selected by Type.
type Output struct {
	Type  OutputType
	Entry *Entry
	Patch *Patch
}

// MarshalJSON encodes entries as {"type":"entry","entry":{...}} and patches
// as {"type":"patch","toolUseId":...,"agentId":...}.
func (o Output) MarshalJSON() ([]byte, error) {
	switch o.Type {
	case OutputPatch:
		return json.Marshal(struct {
			Type OutputType `json:"type"`
			Patch
		}{o.Type, *o.Patch})
	default:
		return json.Marshal(struct {
			Type  OutputType `json:"type"`
			Entry *Entry     `json:"entry"`
		}{OutputEntry, o.Entry})
	}
}

// Correlator holds the per-run correlation state. It is safe for concurrent
// use so that several tail readers can feed one instance.
type Correlator struct {
	mu sync.Mutex
	// agentByToolUse maps a Task tool_use id to the sub-worker id serving it.
	agentByToolUse map[string]string
	// emittedTasks holds Task tool_use ids already emitted as entries.
	emittedTasks map[string]bool
}

// New creates an empty Correlator.
func New() *Correlator {
	return &Correlator{
		agentByToolUse: make(map[string]string),
		emittedTasks:   make(map[string]bool),
	}
}

// ProcessLine classifies and enriches one line. Malformed JSON, non-object
// values, and records other than user and assistant produce no output.
// agentID, when non-empty, tags assistant records whose agent is not known
// from a correlation (sub-worker files, where the agent is known from the
// file name). Patches always precede the entry.
func (c *Correlator) ProcessLine(line []byte, source Source, agentID string) []Output {
	rec, err := stream.ParseLine(line)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Output
	entry := &Entry{Record: rec, Source: source}

	switch r := rec.(type) {
	case *stream.UserRecord:
		if r.ResultAgentID != "" {
			for _, id := range r.Message.ToolResultIDs() {
				c.agentByToolUse[id] = r.ResultAgentID
				if c.emittedTasks[id] {
					out = append(out, Output{
						Type:  OutputPatch,
						Patch: &Patch{ToolUseID: id, AgentID: r.ResultAgentID},
					})
				}
			}
			entry.AgentID = r.ResultAgentID
		}
	case *stream.AssistantRecord:
		for _, use := range r.Message.ToolUses() {
			if use.Name != TaskToolName || use.ID == "" {
				continue
			}
			c.emittedTasks[use.ID] = true
			if known, ok := c.agentByToolUse[use.ID]; ok && entry.AgentID == "" {
				entry.AgentID = known
			}
		}
		if entry.AgentID == "" && agentID != "" {
			entry.AgentID = agentID
		}
	default:
		return nil
	}

	return append(out, Output{Type: OutputEntry, Entry: entry})
}
