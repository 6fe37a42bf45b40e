package orchestrator

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Iron-Ham/questline/internal/agent"
	"github.com/Iron-Ham/questline/internal/errors"
	"github.com/Iron-Ham/questline/internal/quest"
	"github.com/Iron-Ham/questline/internal/signal"
)

// recordingStore captures step updates.
type recordingStore struct {
	updates []quest.StepUpdate
	err     error
}

func (s *recordingStore) UpdateStep(_, _ string, upd quest.StepUpdate) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, upd)
	return nil
}

func TestHandleSignal(t *testing.T) {
	point := signal.String("Resume from gate 3")

	tests := []struct {
		name         string
		sig          signal.StreamSignal
		wantStatus   quest.StepStatus
		wantBlocking quest.BlockingType
		wantReason   string
		want         Action
	}{
		{
			name:       "complete",
			sig:        signal.StreamSignal{Signal: signal.Complete, StepID: stepA},
			wantStatus: quest.StepComplete,
			want:       Action{Kind: ActionContinue},
		},
		{
			name:       "partially complete",
			sig:        signal.StreamSignal{Signal: signal.PartiallyComplete, StepID: stepA, ContinuationPoint: point},
			wantStatus: quest.StepPartiallyComplete,
			want:       Action{Kind: ActionRespawn, ContinuationPoint: point},
		},
		{
			name: "role followup",
			sig: signal.StreamSignal{
				Signal:     signal.NeedsRoleFollowup,
				StepID:     stepA,
				TargetRole: signal.String("lawbringer"),
				Reason:     signal.String("Style violations"),
				Context:    signal.String("See lint output"),
			},
			wantStatus:   quest.StepBlocked,
			wantBlocking: quest.BlockingNeedsRoleFollowup,
			wantReason:   "Style violations",
			want: Action{
				Kind:       ActionSpawnRole,
				TargetRole: agent.RoleLawbringer,
				Reason:     "Style violations",
				Context:    "See lint output",
			},
		},
		{
			name:         "role followup defaults",
			sig:          signal.StreamSignal{Signal: signal.NeedsRoleFollowup, StepID: stepA},
			wantStatus:   quest.StepBlocked,
			wantBlocking: quest.BlockingNeedsRoleFollowup,
			wantReason:   DefaultBlockingReason,
			want:         Action{Kind: ActionSpawnRole, TargetRole: DefaultFollowupRole},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			got, err := HandleSignal(store, "quest.json", stepA, tt.sig)
			if err != nil {
				t.Fatalf("HandleSignal: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("action = %+v, want %+v", got, tt.want)
			}
			if got.ContinuationPoint != tt.want.ContinuationPoint {
				t.Errorf("ContinuationPoint = %v, want %v", got.ContinuationPoint, tt.want.ContinuationPoint)
			}

			if len(store.updates) != 1 {
				t.Fatalf("updates = %d, want 1", len(store.updates))
			}
			upd := store.updates[0]
			if upd.Status == nil || *upd.Status != tt.wantStatus {
				t.Errorf("status = %v, want %q", upd.Status, tt.wantStatus)
			}
			if tt.wantBlocking != "" {
				if upd.BlockingType == nil || *upd.BlockingType != tt.wantBlocking {
					t.Errorf("BlockingType = %v, want %q", upd.BlockingType, tt.wantBlocking)
				}
				if upd.BlockingReason == nil || *upd.BlockingReason != tt.wantReason {
					t.Errorf("BlockingReason = %v, want %q", upd.BlockingReason, tt.wantReason)
				}
			} else if upd.BlockingType != nil {
				t.Errorf("BlockingType = %q, want unset", *upd.BlockingType)
			}
		})
	}
}

func TestHandleSignal_StoreError(t *testing.T) {
	store := &recordingStore{err: errors.ErrStepNotFound}
	_, err := HandleSignal(store, "quest.json", stepA, signal.StreamSignal{Signal: signal.Complete, StepID: stepA})
	if !errors.Is(err, errors.ErrStepNotFound) {
		t.Errorf("HandleSignal() error = %v, want ErrStepNotFound", err)
	}
}

func TestHandleSignal_Panics(t *testing.T) {
	for _, kind := range []signal.Kind{signal.NeedsUserInput, "bogus"} {
		t.Run(string(kind), func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("HandleSignal(%q) did not panic", kind)
				}
			}()
			_, _ = HandleSignal(&recordingStore{}, "quest.json", stepA, signal.StreamSignal{Signal: kind, StepID: stepA})
		})
	}
}

func TestBuildContinuationContext(t *testing.T) {
	sixty := make([]string, 60)
	for i := range sixty {
		sixty[i] = fmt.Sprintf("line %d", i)
	}

	tests := []struct {
		name   string
		point  *string
		output []string
		want   *string
	}{
		{
			name:   "point and output",
			point:  signal.String("Resume from gate 3"),
			output: []string{"a", "b"},
			want:   signal.String("Resume from gate 3\n\n--- Recent agent output ---\na\nb"),
		},
		{
			name:  "point only",
			point: signal.String("Resume from gate 3"),
			want:  signal.String("Resume from gate 3"),
		},
		{
			name:   "output only keeps last fifty",
			output: sixty,
			want:   signal.String("--- Recent agent output ---\n" + strings.Join(sixty[10:], "\n")),
		},
		{
			name: "neither",
		},
		{
			name:   "empty output slice",
			output: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildContinuationContext(tt.point, tt.output)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("BuildContinuationContext() = %q, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("BuildContinuationContext() = nil, want %q", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("BuildContinuationContext() = %q, want %q", *got, *tt.want)
			}
		})
	}
}

func TestBuildContinuationContext_TailLines(t *testing.T) {
	got := buildContinuationContext(nil, []string{"a", "b", "c"}, 2)
	if got == nil || !strings.HasSuffix(*got, "\nb\nc") || strings.Contains(*got, "a\n") {
		t.Errorf("buildContinuationContext(tail=2) = %v, want last two lines", got)
	}
}
