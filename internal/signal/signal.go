// Package signal defines the structured directive a worker emits when it
// stops working on a step, and extracts it from the worker's stream output.
//
// Workers report through an MCP tool call (by default
// "mcp__questline__signal-back") whose input is a [StreamSignal]. A signal
// that fails validation is treated by callers as if no signal was sent.
package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/stream"
	"github.com/google/uuid"
)

// DefaultToolName is the MCP tool workers call to report a signal.
const DefaultToolName = "mcp__questline__signal-back"

// Kind is the type of directive carried by a signal.
type Kind string

const (
	// Complete means the step is done.
	Complete Kind = "complete"
	// PartiallyComplete means the worker stopped early and the step should be
	// resumed by a new worker.
	PartiallyComplete Kind = "partially-complete"
	// NeedsUserInput means a human has to answer Question before work continues.
	NeedsUserInput Kind = "needs-user-input"
	// NeedsRoleFollowup means another agent role (TargetRole) must act on the step.
	NeedsRoleFollowup Kind = "needs-role-followup"
)

// IsValid reports whether k is a known signal kind.
func (k Kind) IsValid() bool {
	switch k {
	case Complete, PartiallyComplete, NeedsUserInput, NeedsRoleFollowup:
		return true
	}
	return false
}

// StreamSignal is the payload of a signal-back tool call. Optional fields are
// nil when absent; when present they must be non-empty.
type StreamSignal struct {
	Signal            Kind    `json:"signal"`
	StepID            string  `json:"stepId"`
	Summary           *string `json:"summary,omitempty"`
	Progress          *string `json:"progress,omitempty"`
	ContinuationPoint *string `json:"continuationPoint,omitempty"`
	Question          *string `json:"question,omitempty"`
	Context           *string `json:"context,omitempty"`
	TargetRole        *string `json:"targetRole,omitempty"`
	Reason            *string `json:"reason,omitempty"`
	Resume            *bool   `json:"resume,omitempty"`
}

// Validate checks the signal kind, that StepID is a UUID, and that every
// optional string that is present is non-empty.
func (s StreamSignal) Validate() error {
	if s.Signal == "" {
		return errors.NewValidationError("signal is required").WithField("signal").WithCause(errors.ErrSignalInvalid)
	}
	if !s.Signal.IsValid() {
		return errors.NewValidationError("unknown signal").
			WithField("signal").WithValue(string(s.Signal)).WithCause(errors.ErrSignalInvalid)
	}
	if s.StepID == "" {
		return errors.NewValidationError("stepId is required").WithField("stepId").WithCause(errors.ErrSignalInvalid)
	}
	if _, err := uuid.Parse(s.StepID); err != nil {
		return errors.NewValidationError("stepId must be a UUID").
			WithField("stepId").WithValue(s.StepID).WithCause(errors.ErrSignalInvalid)
	}
	optional := []struct {
		name  string
		value *string
	}{
		{"summary", s.Summary},
		{"progress", s.Progress},
		{"continuationPoint", s.ContinuationPoint},
		{"question", s.Question},
		{"context", s.Context},
		{"targetRole", s.TargetRole},
		{"reason", s.Reason},
	}
	for _, f := range optional {
		if f.value != nil && *f.value == "" {
			return errors.NewValidationError(f.name + " must not be empty").
				WithField(f.name).WithCause(errors.ErrSignalInvalid)
		}
	}
	return nil
}

// Parse decodes and validates a signal from raw JSON. Fields of the wrong
// JSON type (a non-boolean resume, for example) are rejected.
func Parse(raw json.RawMessage) (StreamSignal, error) {
	var s StreamSignal
	if len(bytes.TrimSpace(raw)) == 0 {
		return s, fmt.Errorf("%w: empty input", errors.ErrSignalInvalid)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return StreamSignal{}, fmt.Errorf("%w: %v", errors.ErrSignalInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return StreamSignal{}, err
	}
	return s, nil
}

// Extractor finds signals in stream records.
type Extractor struct {
	// ToolName is the tool_use name that carries a signal.
	ToolName string
}

// NewExtractor returns an Extractor for toolName, or for DefaultToolName when
// toolName is empty.
func NewExtractor(toolName string) Extractor {
	if toolName == "" {
		toolName = DefaultToolName
	}
	return Extractor{ToolName: toolName}
}

// FromRecord returns the first valid signal carried by an assistant record.
// Invalid signal payloads are skipped.
func (e Extractor) FromRecord(rec stream.Record) (StreamSignal, bool) {
	a, ok := rec.(*stream.AssistantRecord)
	if !ok {
		return StreamSignal{}, false
	}
	for _, b := range a.Message.ToolUses() {
		if b.Name != e.ToolName {
			continue
		}
		if s, err := Parse(b.Input); err == nil {
			return s, true
		}
	}
	return StreamSignal{}, false
}

// String returns a pointer to s. It is a convenience for building signals.
func String(s string) *string {
	return &s
}
