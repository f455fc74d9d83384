// Package trackingtest provides an in-memory tracking engine for tests.
package trackingtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Engine is a tracking.Engine that never touches a camera. It counts camera
// acquisitions so tests can assert that no two sessions hold one at once.
type Engine struct {
	mutex sync.Mutex

	startErr  error
	gate      chan struct{}
	stopGate  chan struct{}
	noSurface bool

	runtimes     []*Runtime
	cameraInUse  int
	maxInUse     int
	startedCount int
}

func NewEngine() *Engine {
	return &Engine{}
}

// FailWith makes subsequent starts fail with err
func (e *Engine) FailWith(err error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.startErr = err
}

// WithoutSurface makes subsequent runtimes report no render surface
func (e *Engine) WithoutSurface() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.noSurface = true
}

// Hold makes subsequent starts block until Release is called or ctx ends
func (e *Engine) Hold() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.gate = make(chan struct{})
}

// Release unblocks held starts
func (e *Engine) Release() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
}

// HoldStops makes runtime stops block, camera still held, until ReleaseStops
// is called or ctx ends
func (e *Engine) HoldStops() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stopGate = make(chan struct{})
}

// ReleaseStops unblocks held stops
func (e *Engine) ReleaseStops() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.stopGate != nil {
		close(e.stopGate)
		e.stopGate = nil
	}
}

func (e *Engine) Start(ctx context.Context, req tracking.StartRequest, events chan<- tracking.Event) (tracking.Runtime, error) {
	e.mutex.Lock()
	e.startedCount++
	e.cameraInUse++
	if e.cameraInUse > e.maxInUse {
		e.maxInUse = e.cameraInUse
	}
	gate, startErr, noSurface := e.gate, e.startErr, e.noSurface
	e.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			e.releaseCamera()
			return nil, ctx.Err()
		}
	}

	if startErr != nil {
		e.releaseCamera()
		return nil, startErr
	}

	rt := &Runtime{engine: e, req: req, events: events}
	if !noSurface {
		rt.surface = &tracking.Surface{
			Device:    fmt.Sprintf("/dev/video-%s", req.Facing),
			Width:     1280,
			Height:    720,
			FrameRate: req.FrameRate,
		}
	}

	e.mutex.Lock()
	e.runtimes = append(e.runtimes, rt)
	e.mutex.Unlock()
	return rt, nil
}

func (e *Engine) releaseCamera() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.cameraInUse--
}

// Starts reports how many times Start was called
func (e *Engine) Starts() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.startedCount
}

// CamerasInUse reports how many cameras are currently acquired
func (e *Engine) CamerasInUse() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.cameraInUse
}

// MaxCamerasInUse reports the highest number of simultaneous acquisitions seen
func (e *Engine) MaxCamerasInUse() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.maxInUse
}

// Runtimes returns every runtime handed out, oldest first
func (e *Engine) Runtimes() []*Runtime {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]*Runtime(nil), e.runtimes...)
}

// Last returns the newest runtime, or nil
func (e *Engine) Last() *Runtime {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if len(e.runtimes) == 0 {
		return nil
	}
	return e.runtimes[len(e.runtimes)-1]
}

// Runtime is a started fake engine
type Runtime struct {
	engine  *Engine
	req     tracking.StartRequest
	events  chan<- tracking.Event
	surface *tracking.Surface

	mutex    sync.Mutex
	renders  int
	attached []tracking.Content
	stopped  bool
}

func (r *Runtime) Request() tracking.StartRequest { return r.req }

func (r *Runtime) Surface() (tracking.Surface, bool) {
	if r.surface == nil {
		return tracking.Surface{}, false
	}
	return *r.surface, true
}

func (r *Runtime) RenderFrame() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.stopped {
		return fmt.Errorf("runtime stopped")
	}
	r.renders++
	return nil
}

func (r *Runtime) Attach(anchor int, content tracking.Content) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.attached = append(r.attached, content)
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	r.engine.mutex.Lock()
	gate := r.engine.stopGate
	r.engine.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mutex.Lock()
	if r.stopped {
		r.mutex.Unlock()
		return nil
	}
	r.stopped = true
	r.mutex.Unlock()

	r.engine.releaseCamera()
	return nil
}

// Emit delivers a marker event as the engine would
func (r *Runtime) Emit(kind tracking.EventKind) {
	r.events <- tracking.Event{Kind: kind, Anchor: 0}
}

func (r *Runtime) Renders() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.renders
}

func (r *Runtime) Attached() []tracking.Content {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]tracking.Content(nil), r.attached...)
}

func (r *Runtime) Stopped() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stopped
}
