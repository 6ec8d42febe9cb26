// Package session orchestrates guided sessions: it composes the stream, drives
// playback, maps the playback clock onto prompts and reports progress.
package session

import "errors"

// State is the lifecycle state of a Session.
type State string

const (
	// StateIdle is a session that is not composing or playing.
	StateIdle State = "idle"
	// StateLoading is a session whose stream is being composed.
	StateLoading State = "loading"
	// StateActive is a session that is playing or paused.
	StateActive State = "active"
	// StateCompleted is a session that played through to the end.
	StateCompleted State = "completed"
)

// Static errors for sessions.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrBusy is returned when a session is asked to begin while it is loading.
	ErrBusy = errors.New("session: composition already in progress")
	// ErrNotActive is returned by playback controls outside the active state.
	ErrNotActive = errors.New("session: not active")
	// ErrInterrupted is returned when a skip or restart overtakes a composition.
	ErrInterrupted = errors.New("session: interrupted")
	// ErrNotFound is returned when a session cannot be found by ID.
	ErrNotFound = errors.New("session: not found")
)

// validTransitions defines which state transitions are allowed. Any state may
// also return to idle through a skip or restart.
var validTransitions = map[State][]State{
	StateIdle:      {StateLoading},
	StateLoading:   {StateActive, StateIdle},
	StateActive:    {StateCompleted, StateIdle},
	StateCompleted: {StateIdle},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
