package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

func TestMachine_Apply(t *testing.T) {
	idle := machine{State: StateIdle, Facing: tracking.FacingBack}
	initializing := machine{State: StateInitializing, Facing: tracking.FacingBack, Round: 1}
	ready := machine{State: StateReady, Facing: tracking.FacingBack, Round: 1}
	recordingReady := machine{State: StateReady, Facing: tracking.FacingBack, Round: 1, Recording: true}
	won := machine{State: StateWon, Facing: tracking.FacingBack, Round: 1, Recording: true}

	tests := []struct {
		name  string
		from  machine
		event Event
		want  machine
		tr    transition
	}{
		{
			name:  "start from idle",
			from:  idle,
			event: Event{Type: EventStartRequested, Round: 1, Facing: tracking.FacingFront},
			want:  machine{State: StateInitializing, Facing: tracking.FacingFront, Round: 1},
			tr:    transition{changed: true},
		},
		{
			name:  "restart from won",
			from:  won,
			event: Event{Type: EventStartRequested, Round: 2, Facing: tracking.FacingBack},
			want:  machine{State: StateInitializing, Facing: tracking.FacingBack, Round: 2},
			tr:    transition{changed: true},
		},
		{
			name:  "tracking started",
			from:  initializing,
			event: Event{Type: EventTrackingStarted, Round: 1},
			want:  ready,
			tr:    transition{changed: true, startRecorder: true},
		},
		{
			name:  "tracking started for stale round",
			from:  initializing,
			event: Event{Type: EventTrackingStarted, Round: 0},
			want:  initializing,
		},
		{
			name:  "tracking failed",
			from:  initializing,
			event: Event{Type: EventTrackingFailed, Round: 1},
			want:  machine{State: StateIdle, Facing: tracking.FacingBack, Round: 1},
			tr:    transition{changed: true},
		},
		{
			name:  "tracking failed after ready is ignored",
			from:  ready,
			event: Event{Type: EventTrackingFailed, Round: 1},
			want:  ready,
		},
		{
			name:  "anchor detected wins",
			from:  recordingReady,
			event: Event{Type: EventAnchorDetected, Round: 1},
			want:  won,
			tr:    transition{changed: true, stopRecording: true},
		},
		{
			name:  "anchor detected while won",
			from:  won,
			event: Event{Type: EventAnchorDetected, Round: 1},
			want:  won,
		},
		{
			name:  "anchor detected while initializing",
			from:  initializing,
			event: Event{Type: EventAnchorDetected, Round: 1},
			want:  initializing,
		},
		{
			name:  "anchor detected from old round",
			from:  ready,
			event: Event{Type: EventAnchorDetected, Round: 0},
			want:  ready,
		},
		{
			name:  "recording started",
			from:  ready,
			event: Event{Type: EventRecordingStarted, Round: 1},
			want:  recordingReady,
			tr:    transition{changed: true},
		},
		{
			name:  "recording stopped",
			from:  won,
			event: Event{Type: EventRecordingStopped},
			want:  machine{State: StateWon, Facing: tracking.FacingBack, Round: 1},
			tr:    transition{changed: true},
		},
		{
			name:  "recording stopped while idle recorder",
			from:  ready,
			event: Event{Type: EventRecordingStopped},
			want:  ready,
		},
		{
			name:  "stopped",
			from:  recordingReady,
			event: Event{Type: EventStopped},
			want:  machine{State: StateIdle, Facing: tracking.FacingBack, Round: 1},
			tr:    transition{changed: true},
		},
		{
			name:  "stopped twice",
			from:  idle,
			event: Event{Type: EventStopped},
			want:  idle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tr := tt.from.apply(tt.event)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tr, tr)
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}

func TestMachine_CanRecord(t *testing.T) {
	tests := []struct {
		m    machine
		want bool
	}{
		{machine{State: StateIdle}, false},
		{machine{State: StateInitializing}, false},
		{machine{State: StateReady}, true},
		{machine{State: StateReady, Recording: true}, false},
		{machine{State: StateWon}, true},
		{machine{State: StateWon, Recording: true}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.m.canRecord(), "state=%s recording=%t", tt.m.State, tt.m.Recording)
	}
}
