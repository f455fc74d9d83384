// Package tracking owns the camera-tracking session: camera acquisition,
// marker detection against a single image target, the render loop and the
// anchor slot that overlay content is parented to.
package tracking

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCameraDenied is returned when the camera cannot be acquired
	ErrCameraDenied = errors.New("camera access denied")
	// ErrTargetUnavailable is returned when the image target descriptor cannot be loaded
	ErrTargetUnavailable = errors.New("image target unavailable")
	// ErrInvalidAnchor is returned for any anchor index other than 0
	ErrInvalidAnchor = errors.New("only anchor 0 is supported")
)

// Facing selects which camera is used
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// ParseFacing converts a config/flag value to a Facing
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case FacingBack, FacingFront:
		return Facing(s), nil
	case "":
		return FacingBack, nil
	}
	return "", fmt.Errorf("invalid camera facing %q (valid: back, front)", s)
}

// Toggle returns the opposite facing
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Mode returns the capture facing mode understood by camera stacks
func (f Facing) Mode() string {
	if f == FacingFront {
		return "user"
	}
	return "environment"
}

// Status is the lifecycle status of a Session
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusStarting      Status = "starting"
	StatusRunning       Status = "running"
	StatusStopping      Status = "stopping"
	StatusStopped       Status = "stopped"
)

// Surface is the drawable output of the render loop, the source for screen capture
type Surface struct {
	Device    string `json:"device"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate int    `json:"fps"`
}

// Content is visual content parented under an anchor
type Content struct {
	Name   string
	Source string
	Data   []byte
	Scale  [3]float64
}

// Light is the hemisphere light added to the scene
type Light struct {
	Sky       uint32
	Ground    uint32
	Intensity float64
}

// DefaultLight is a white sky over a pale blue ground
var DefaultLight = Light{Sky: 0xffffff, Ground: 0xbbbbff, Intensity: 1}

type EventKind string

const (
	EventFound EventKind = "found"
	EventLost  EventKind = "lost"
)

// Event is a marker visibility change reported by an engine
type Event struct {
	Kind   EventKind
	Anchor int
}

// StartRequest carries everything an engine needs to acquire a camera and arm detection
type StartRequest struct {
	Facing     Facing
	Device     string
	TargetFile string
	FrameRate  int
	Light      Light
}

// Engine acquires a camera and runs marker detection.
// ctx bounds only the startup; the returned Runtime lives until Stop.
type Engine interface {
	Start(ctx context.Context, req StartRequest, events chan<- Event) (Runtime, error)
}

// Runtime is a started engine
type Runtime interface {
	Surface() (Surface, bool)
	RenderFrame() error
	Attach(anchor int, content Content) error
	Stop(ctx context.Context) error
}
