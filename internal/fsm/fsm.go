package fsm

import "fmt"

// State is the per-question answer state.
type State string

type Event string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateReviewing State = "reviewing"
	StateSaving    State = "saving"
	StateSaved     State = "saved"
)

const (
	EventRecordStart Event = "record_start"
	EventRecordStop  Event = "record_stop"
	EventDiscard     Event = "discard"
	EventEdit        Event = "edit"
	EventSave        Event = "save"
	EventSaved       Event = "saved"
	EventSaveFail    Event = "save_fail"
)

// Transition reduces one answer event against the current question state.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventRecordStart:
			return StateRecording, nil
		case EventEdit:
			return StateReviewing, nil
		case EventSave:
			return StateSaving, nil
		case EventDiscard:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventRecordStop:
			return StateReviewing, nil
		case EventDiscard:
			return StateIdle, nil
		case EventEdit:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReviewing:
		switch event {
		case EventRecordStart:
			return StateRecording, nil
		case EventSave:
			return StateSaving, nil
		case EventEdit:
			return StateReviewing, nil
		case EventDiscard:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSaving:
		switch event {
		case EventSaved:
			return StateSaved, nil
		case EventSaveFail:
			return StateReviewing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSaved:
		switch event {
		case EventEdit:
			return StateReviewing, nil
		case EventRecordStart:
			return StateRecording, nil
		case EventSave:
			return StateSaving, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Phase is the session-wide submission phase.
type Phase string

type PhaseEvent string

const (
	PhaseInProgress Phase = "in-progress"
	PhaseSubmitting Phase = "submitting"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

const (
	PhaseEventSubmit   PhaseEvent = "submit"
	PhaseEventComplete PhaseEvent = "complete"
	PhaseEventFail     PhaseEvent = "fail"
	PhaseEventResume   PhaseEvent = "resume"
)

// TransitionPhase reduces one submission event against the session phase.
func TransitionPhase(current Phase, event PhaseEvent) (Phase, error) {
	switch current {
	case PhaseInProgress:
		switch event {
		case PhaseEventSubmit:
			return PhaseSubmitting, nil
		case PhaseEventResume:
			return PhaseInProgress, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseSubmitting:
		switch event {
		case PhaseEventComplete:
			return PhaseCompleted, nil
		case PhaseEventFail:
			return PhaseFailed, nil
		case PhaseEventResume:
			return PhaseInProgress, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseFailed:
		switch event {
		case PhaseEventSubmit:
			return PhaseSubmitting, nil
		case PhaseEventResume:
			return PhaseInProgress, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseCompleted:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown phase %q", current)
	}
}

func invalidTransition[S ~string, E ~string](state S, event E) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
