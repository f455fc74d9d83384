package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Options configures a Session
type Options struct {
	Facing     Facing
	Device     string
	TargetFile string
	FrameRate  int
	Light      Light
	Clock      clockwork.Clock
}

// Session is one camera-tracking and render session. A Session starts at most
// once; restarting means stopping it and creating a new one.
type Session struct {
	id     uuid.UUID
	engine Engine
	opts   Options
	anchor *Anchor
	events chan Event

	mutex       sync.Mutex
	status      Status
	runtime     Runtime
	loop        *renderLoop
	startCancel context.CancelFunc
	quit        chan struct{}
	dispatched  chan struct{}
	stopped     chan struct{}
}

// NewSession creates an uninitialized session
func NewSession(engine Engine, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}
	if opts.Facing == "" {
		opts.Facing = FacingBack
	}

	s := &Session{
		id:      uuid.New(),
		engine:  engine,
		opts:    opts,
		events:  make(chan Event, 16),
		status:  StatusUninitialized,
		stopped: make(chan struct{}),
	}
	s.anchor = &Anchor{index: 0, session: s}
	return s
}

func (s *Session) ID() uuid.UUID  { return s.id }
func (s *Session) Facing() Facing { return s.opts.Facing }

// Status returns the current lifecycle status
func (s *Session) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

// AddAnchor returns the anchor slot for index; only index 0 exists
func (s *Session) AddAnchor(index int) (*Anchor, error) {
	if index != 0 {
		return nil, fmt.Errorf("anchor %d: %w", index, ErrInvalidAnchor)
	}
	return s.anchor, nil
}

// Surface returns the render surface once the session is running
func (s *Session) Surface() (Surface, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.status != StatusRunning || s.runtime == nil {
		return Surface{}, false
	}
	return s.runtime.Surface()
}

// Frames reports how many render ticks have been issued
func (s *Session) Frames() uint64 {
	s.mutex.Lock()
	loop := s.loop
	s.mutex.Unlock()
	if loop == nil {
		return 0
	}
	return loop.Frames()
}

// Start acquires the camera and arms detection. It returns once the engine is
// ready, or with the engine's error. A Stop issued while Start is in flight
// cancels it and Start returns an error wrapping context.Canceled.
func (s *Session) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.status != StatusUninitialized {
		status := s.status
		s.mutex.Unlock()
		return fmt.Errorf("session %s cannot start from %s state", s.id, status)
	}
	startCtx, cancel := context.WithCancel(ctx)
	s.startCancel = cancel
	s.status = StatusStarting
	s.mutex.Unlock()
	defer cancel()

	req := StartRequest{
		Facing:     s.opts.Facing,
		Device:     s.opts.Device,
		TargetFile: s.opts.TargetFile,
		FrameRate:  s.opts.FrameRate,
		Light:      s.opts.Light,
	}

	slog.Debug("Tracking session starting", "session_id", s.id, "facing", req.Facing, "device", req.Device)
	rt, err := s.engine.Start(startCtx, req, s.events)

	s.mutex.Lock()
	if err != nil {
		s.markStoppedLocked()
		s.mutex.Unlock()
		return fmt.Errorf("tracking session %s failed to start: %w", s.id, err)
	}

	if s.status == StatusStopping {
		// Stop arrived while the engine was starting
		s.mutex.Unlock()
		if stopErr := rt.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			slog.Warn("Failed to release cancelled tracking runtime", "session_id", s.id, "error", stopErr)
		}
		s.mutex.Lock()
		s.markStoppedLocked()
		s.mutex.Unlock()
		return fmt.Errorf("tracking session %s start cancelled: %w", s.id, context.Canceled)
	}

	s.runtime = rt
	s.status = StatusRunning
	s.quit = make(chan struct{})
	s.dispatched = make(chan struct{})
	period := time.Second / time.Duration(s.opts.FrameRate)
	s.loop = newRenderLoop(s.opts.Clock, period, rt.RenderFrame)

	go s.dispatch(s.quit, s.dispatched)
	s.loop.Start()

	if content, ok := s.anchor.Content(); ok {
		if err := rt.Attach(s.anchor.index, content); err != nil {
			slog.Warn("Failed to attach pending anchor content", "session_id", s.id, "content", content.Name, "error", err)
		}
	}
	s.mutex.Unlock()

	slog.Info("Tracking session running", "session_id", s.id, "facing", s.opts.Facing)
	return nil
}

// Stop releases the camera stream and halts the render loop. It is safe to
// call before Start, during Start and more than once.
func (s *Session) Stop(ctx context.Context) error {
	s.mutex.Lock()
	switch s.status {
	case StatusUninitialized:
		s.markStoppedLocked()
		s.mutex.Unlock()
		return nil

	case StatusStopped:
		s.mutex.Unlock()
		return nil

	case StatusStarting:
		s.status = StatusStopping
		cancel := s.startCancel
		s.mutex.Unlock()
		cancel()
		return s.waitStopped(ctx)

	case StatusStopping:
		s.mutex.Unlock()
		return s.waitStopped(ctx)
	}

	// Running
	s.status = StatusStopping
	rt, loop, quit, dispatched := s.runtime, s.loop, s.quit, s.dispatched
	s.mutex.Unlock()

	slog.Debug("Tracking session stopping", "session_id", s.id)
	loop.Stop()
	close(quit)
	<-dispatched

	err := rt.Stop(ctx)

	s.mutex.Lock()
	s.runtime = nil
	s.markStoppedLocked()
	s.mutex.Unlock()

	if err != nil {
		return fmt.Errorf("tracking session %s stop: %w", s.id, err)
	}
	slog.Info("Tracking session stopped", "session_id", s.id, "frames", loop.Frames())
	return nil
}

func (s *Session) waitStopped(ctx context.Context) error {
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markStoppedLocked must be called with the mutex held
func (s *Session) markStoppedLocked() {
	if s.status == StatusStopped {
		return
	}
	s.status = StatusStopped
	close(s.stopped)
}

// dispatch delivers engine events to the anchor until the session stops
func (s *Session) dispatch(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev Event) {
	if ev.Anchor != s.anchor.index {
		slog.Debug("Ignoring event for unknown anchor", "session_id", s.id, "anchor", ev.Anchor)
		return
	}

	switch ev.Kind {
	case EventFound:
		if s.anchor.setVisible(true) {
			slog.Debug("Target found", "session_id", s.id)
			s.anchor.fireFound()
		}
	case EventLost:
		if s.anchor.setVisible(false) {
			slog.Debug("Target lost", "session_id", s.id)
		}
	}
}

// attachContent records anchor content and forwards it to a running runtime
func (s *Session) attachContent(a *Anchor, content Content) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	a.setContent(content)

	switch s.status {
	case StatusRunning:
		return s.runtime.Attach(a.index, content)
	case StatusUninitialized, StatusStarting:
		// Start attaches pending content once the runtime is up
		return nil
	default:
		slog.Debug("Dropping content for stopped session", "session_id", s.id, "content", content.Name)
		return nil
	}
}
