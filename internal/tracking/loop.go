package tracking

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// renderLoop is a periodic task bound to a session's lifetime; it is
// cancelled only by deregistration in Stop, never mid-frame
type renderLoop struct {
	clock  clockwork.Clock
	period time.Duration
	render func() error

	frames atomic.Uint64
	stop   chan struct{}
	done   chan struct{}
}

func newRenderLoop(clock clockwork.Clock, period time.Duration, render func() error) *renderLoop {
	return &renderLoop{
		clock:  clock,
		period: period,
		render: render,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (l *renderLoop) Start() {
	go l.run()
}

func (l *renderLoop) run() {
	defer close(l.done)

	ticker := l.clock.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.Chan():
			if err := l.render(); err != nil {
				slog.Debug("Render frame failed", "error", err)
				continue
			}
			l.frames.Add(1)
		}
	}
}

// Stop deregisters the loop and waits for an in-progress frame to finish
func (l *renderLoop) Stop() {
	close(l.stop)
	<-l.done
}

func (l *renderLoop) Frames() uint64 {
	return l.frames.Load()
}
