package service

import (
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// State is the orchestrator game state
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateWon          State = "won"
)

// EventType names a discrete input to the state machine
type EventType string

const (
	EventStartRequested   EventType = "start_requested"
	EventTrackingStarted  EventType = "tracking_started"
	EventTrackingFailed   EventType = "tracking_failed"
	EventAnchorDetected   EventType = "anchor_detected"
	EventRecordingStarted EventType = "recording_started"
	EventRecordingStopped EventType = "recording_stopped"
	EventStopped          EventType = "stopped"
)

// Event is one state machine input. Round identifies the session generation
// the event belongs to; events from older rounds are ignored.
type Event struct {
	Type   EventType
	Round  uint64
	Facing tracking.Facing
}

// machine is the pure state of the orchestrator
type machine struct {
	State     State
	Facing    tracking.Facing
	Round     uint64
	Recording bool
}

// transition reports what applying an event did
type transition struct {
	changed       bool
	stopRecording bool
	startRecorder bool
}

// apply is the single state transition function
func (m machine) apply(ev Event) (machine, transition) {
	switch ev.Type {
	case EventStartRequested:
		next := m
		next.State = StateInitializing
		next.Facing = ev.Facing
		next.Round = ev.Round
		next.Recording = false
		return next, transition{changed: true}

	case EventTrackingStarted:
		if ev.Round != m.Round || m.State != StateInitializing {
			return m, transition{}
		}
		next := m
		next.State = StateReady
		return next, transition{changed: true, startRecorder: true}

	case EventTrackingFailed:
		if ev.Round != m.Round || m.State != StateInitializing {
			return m, transition{}
		}
		next := m
		next.State = StateIdle
		return next, transition{changed: true}

	case EventAnchorDetected:
		// Won is terminal for the round
		if ev.Round != m.Round || m.State != StateReady {
			return m, transition{}
		}
		next := m
		next.State = StateWon
		return next, transition{changed: true, stopRecording: true}

	case EventRecordingStarted:
		if ev.Round != m.Round || m.Recording {
			return m, transition{}
		}
		next := m
		next.Recording = true
		return next, transition{changed: true}

	case EventRecordingStopped:
		if !m.Recording {
			return m, transition{}
		}
		next := m
		next.Recording = false
		return next, transition{changed: true}

	case EventStopped:
		if m.State == StateIdle && !m.Recording {
			return m, transition{}
		}
		next := m
		next.State = StateIdle
		next.Recording = false
		return next, transition{changed: true}
	}

	return m, transition{}
}

// canRecord reports whether a recording may start: the session is up
// (Ready, or Won after the win stopped the previous recording) and idle
func (m machine) canRecord() bool {
	return (m.State == StateReady || m.State == StateWon) && !m.Recording
}
