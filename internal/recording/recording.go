// Package recording captures the render surface into an in-memory webm
// recording and materializes it as a video artifact on stop.
package recording

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/audiolibrelab/coffeehunt/internal/artifact"
	"github.com/audiolibrelab/coffeehunt/internal/metrics"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Status is the recorder status
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
)

// MediaTypeWebM is the media type of every artifact produced here
const MediaTypeWebM = "video/webm"

// Capturer opens a live capture stream from a render surface
type Capturer interface {
	Capture(ctx context.Context, surface tracking.Surface) (Stream, error)
}

// Stream delivers encoded chunks until stopped or until the surface goes away.
// Chunks is closed when the stream ends; Err reports why it ended early.
type Stream interface {
	Chunks() <-chan []byte
	Err() error
	Stop() error
}

// Info describes the active recording
type Info struct {
	Surface   string    `json:"surface"`
	StartedAt time.Time `json:"started_at"`
	Chunks    int       `json:"chunks"`
	Bytes     int       `json:"bytes"`
}

// run is one recording from Start to finalization
type run struct {
	stream    Stream
	surface   tracking.Surface
	startedAt time.Time
	chunks    [][]byte
	size      int
	done      chan struct{}
	artifact  *artifact.Artifact
}

// Controller owns at most one recording at a time
type Controller struct {
	capturer  Capturer
	store     *artifact.Store
	mediaType string
	clock     clockwork.Clock

	mutex       sync.Mutex
	status      Status
	current     *run
	onFinalized func(*artifact.Artifact)
}

func NewController(capturer Capturer, store *artifact.Store, clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		capturer:  capturer,
		store:     store,
		mediaType: MediaTypeWebM,
		clock:     clock,
		status:    StatusIdle,
	}
}

// SetMediaType overrides the media type stamped on artifacts
func (c *Controller) SetMediaType(mediaType string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if mediaType != "" {
		c.mediaType = mediaType
	}
}

// OnFinalized registers a callback run after every finalization, including
// ones caused by the stream ending on its own. a is nil when nothing was
// captured. Stop returns only after the callback has run, so it must not
// call Stop itself.
func (c *Controller) OnFinalized(fn func(a *artifact.Artifact)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onFinalized = fn
}

// Start begins capturing surface. It is a no-op returning false when a
// recording is already active, when surface is nil or when the capture
// cannot be opened.
func (c *Controller) Start(ctx context.Context, surface *tracking.Surface) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status != StatusIdle {
		slog.Warn("Recording already active, start ignored", "status", c.status)
		metrics.RecordingsTotal.WithLabelValues("skipped").Inc()
		return false
	}
	if surface == nil {
		slog.Warn("No render surface available, recording skipped")
		metrics.RecordingsTotal.WithLabelValues("skipped").Inc()
		return false
	}

	stream, err := c.capturer.Capture(ctx, *surface)
	if err != nil {
		slog.Warn("Failed to open capture stream, recording skipped", "surface", surface.Device, "error", err)
		metrics.RecordingsTotal.WithLabelValues("failed").Inc()
		return false
	}

	r := &run{
		stream:    stream,
		surface:   *surface,
		startedAt: c.clock.Now(),
		done:      make(chan struct{}),
	}
	c.current = r
	c.status = StatusRecording

	go c.collect(r)

	metrics.RecordingsTotal.WithLabelValues("started").Inc()
	slog.Info("Recording started", "surface", surface.Device, "width", surface.Width, "height", surface.Height)
	return true
}

// collect appends non-empty chunks until the stream ends, then finalizes
func (c *Controller) collect(r *run) {
	for chunk := range r.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		c.mutex.Lock()
		r.chunks = append(r.chunks, chunk)
		r.size += len(chunk)
		c.mutex.Unlock()
	}

	if err := r.stream.Err(); err != nil {
		slog.Warn("Capture stream ended with error, finalizing captured data", "surface", r.surface.Device, "error", err)
	}

	c.finalize(r)
}

func (c *Controller) finalize(r *run) {
	c.mutex.Lock()
	chunks := r.chunks
	r.chunks = nil

	if len(chunks) > 0 {
		r.artifact = c.store.Create(chunks, c.mediaType)
		metrics.RecordingsTotal.WithLabelValues("finalized").Inc()
		metrics.ArtifactBytes.Observe(float64(r.artifact.Size))
	} else {
		slog.Warn("Recording captured no data, no artifact produced", "surface", r.surface.Device)
	}

	if c.current == r {
		c.current = nil
		c.status = StatusIdle
	}
	fn := c.onFinalized
	c.mutex.Unlock()

	slog.Info("Recording finalized", "duration", c.clock.Since(r.startedAt), "bytes", r.size)
	if fn != nil {
		fn(r.artifact)
	}
	close(r.done)
}

// Stop ends the active recording and returns the resulting artifact. It is a
// no-op returning nil when not recording. Concurrent callers wait for the
// same finalization.
func (c *Controller) Stop() *artifact.Artifact {
	c.mutex.Lock()
	r := c.current
	switch c.status {
	case StatusIdle:
		c.mutex.Unlock()
		slog.Debug("Stop ignored, not recording")
		return nil

	case StatusRecording:
		c.status = StatusStopping
		c.mutex.Unlock()

		slog.Debug("Stopping recording", "surface", r.surface.Device)
		if err := r.stream.Stop(); err != nil {
			slog.Warn("Capture stream stop reported an error", "error", err)
		}

	default:
		c.mutex.Unlock()
	}

	<-r.done
	return r.artifact
}

// Status returns the recorder status
func (c *Controller) Status() Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.status
}

// Recording reports whether a recording is active
func (c *Controller) Recording() bool {
	return c.Status() == StatusRecording
}

// Info describes the active recording, or nil when idle
func (c *Controller) Info() *Info {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.current == nil {
		return nil
	}
	return &Info{
		Surface:   c.current.surface.Device,
		StartedAt: c.current.startedAt,
		Chunks:    len(c.current.chunks),
		Bytes:     c.current.size,
	}
}

// Artifact returns the latest finalized artifact, or nil
func (c *Controller) Artifact() *artifact.Artifact {
	return c.store.Current()
}
