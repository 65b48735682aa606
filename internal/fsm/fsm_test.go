package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionRecordReviewSave(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventRecordStart)
	require.NoError(t, err)
	require.Equal(t, StateRecording, next)

	next, err = Transition(next, EventRecordStop)
	require.NoError(t, err)
	require.Equal(t, StateReviewing, next)

	next, err = Transition(next, EventSave)
	require.NoError(t, err)
	require.Equal(t, StateSaving, next)

	next, err = Transition(next, EventSaved)
	require.NoError(t, err)
	require.Equal(t, StateSaved, next)

	next, err = Transition(next, EventEdit)
	require.NoError(t, err)
	require.Equal(t, StateReviewing, next)
}

func TestTransitionSaveFailureReturnsToReviewing(t *testing.T) {
	next, err := Transition(StateSaving, EventSaveFail)
	require.NoError(t, err)
	require.Equal(t, StateReviewing, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle record stop invalid", state: StateIdle, event: EventRecordStop, want: StateIdle, wantErr: true},
		{name: "idle saved invalid", state: StateIdle, event: EventSaved, want: StateIdle, wantErr: true},
		{name: "recording start invalid", state: StateRecording, event: EventRecordStart, want: StateRecording, wantErr: true},
		{name: "recording save invalid", state: StateRecording, event: EventSave, want: StateRecording, wantErr: true},
		{name: "recording discard valid", state: StateRecording, event: EventDiscard, want: StateIdle},
		{name: "saving edit invalid", state: StateSaving, event: EventEdit, want: StateSaving, wantErr: true},
		{name: "saving record invalid", state: StateSaving, event: EventRecordStart, want: StateSaving, wantErr: true},
		{name: "saved stop invalid", state: StateSaved, event: EventRecordStop, want: StateSaved, wantErr: true},
		{name: "saved resave valid", state: StateSaved, event: EventSave, want: StateSaving},
		{name: "reviewing rerecord valid", state: StateReviewing, event: EventRecordStart, want: StateRecording},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventRecordStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestTransitionPhaseSubmitRetry(t *testing.T) {
	p, err := TransitionPhase(PhaseInProgress, PhaseEventSubmit)
	require.NoError(t, err)
	require.Equal(t, PhaseSubmitting, p)

	p, err = TransitionPhase(p, PhaseEventFail)
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, p)

	p, err = TransitionPhase(p, PhaseEventSubmit)
	require.NoError(t, err)
	require.Equal(t, PhaseSubmitting, p)

	p, err = TransitionPhase(p, PhaseEventComplete)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, p)
}

func TestTransitionPhaseCompletedIsTerminal(t *testing.T) {
	for _, ev := range []PhaseEvent{PhaseEventSubmit, PhaseEventComplete, PhaseEventFail, PhaseEventResume} {
		p, err := TransitionPhase(PhaseCompleted, ev)
		require.Error(t, err)
		require.Equal(t, PhaseCompleted, p)
	}
}

func TestTransitionPhaseInvalid(t *testing.T) {
	p, err := TransitionPhase(PhaseInProgress, PhaseEventComplete)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid transition")
	require.Equal(t, PhaseInProgress, p)

	_, err = TransitionPhase(Phase("mystery"), PhaseEventSubmit)
	require.ErrorContains(t, err, "unknown phase")
}
