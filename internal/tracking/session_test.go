package tracking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"
	"github.com/audiolibrelab/coffeehunt/internal/tracking/trackingtest"
)

func newTestSession(engine tracking.Engine, clock clockwork.Clock) *tracking.Session {
	return tracking.NewSession(engine, tracking.Options{
		Facing:     tracking.FacingBack,
		TargetFile: "targets.mind",
		FrameRate:  10,
		Light:      tracking.DefaultLight,
		Clock:      clock,
	})
}

func TestSession_StartStop(t *testing.T) {
	engine := trackingtest.NewEngine()
	s := newTestSession(engine, clockwork.NewFakeClock())

	assert.Equal(t, tracking.StatusUninitialized, s.Status())
	_, ok := s.Surface()
	assert.False(t, ok)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, tracking.StatusRunning, s.Status())
	assert.Equal(t, 1, engine.CamerasInUse())

	surface, ok := s.Surface()
	require.True(t, ok)
	assert.Equal(t, 10, surface.FrameRate)

	req := engine.Last().Request()
	assert.Equal(t, "targets.mind", req.TargetFile)
	assert.Equal(t, tracking.DefaultLight, req.Light)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, tracking.StatusStopped, s.Status())
	assert.Equal(t, 0, engine.CamerasInUse())
	assert.True(t, engine.Last().Stopped())

	_, ok = s.Surface()
	assert.False(t, ok)

	// Stop is idempotent
	require.NoError(t, s.Stop(context.Background()))
}

func TestSession_StartOnlyOnce(t *testing.T) {
	engine := trackingtest.NewEngine()
	s := newTestSession(engine, clockwork.NewFakeClock())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.Equal(t, 1, engine.Starts())
}

func TestSession_StopBeforeStart(t *testing.T) {
	engine := trackingtest.NewEngine()
	s := newTestSession(engine, clockwork.NewFakeClock())

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, tracking.StatusStopped, s.Status())
	assert.Error(t, s.Start(context.Background()))
	assert.Equal(t, 0, engine.Starts())
}

func TestSession_StartFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "camera denied", err: tracking.ErrCameraDenied},
		{name: "target unavailable", err: tracking.ErrTargetUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := trackingtest.NewEngine()
			engine.FailWith(tt.err)
			s := newTestSession(engine, clockwork.NewFakeClock())

			err := s.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tracking.StatusStopped, s.Status())
			assert.Equal(t, 0, engine.CamerasInUse())
			require.NoError(t, s.Stop(context.Background()))
		})
	}
}

func TestSession_StopDuringStart(t *testing.T) {
	engine := trackingtest.NewEngine()
	engine.Hold()
	s := newTestSession(engine, clockwork.NewFakeClock())

	startErr := make(chan error, 1)
	go func() {
		startErr <- s.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return engine.Starts() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-startErr:
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, tracking.StatusStopped, s.Status())
	assert.Equal(t, 0, engine.CamerasInUse())
}

func TestSession_AddAnchor(t *testing.T) {
	s := newTestSession(trackingtest.NewEngine(), clockwork.NewFakeClock())

	anchor, err := s.AddAnchor(0)
	require.NoError(t, err)
	assert.Equal(t, 0, anchor.Index())

	again, err := s.AddAnchor(0)
	require.NoError(t, err)
	assert.Same(t, anchor, again)

	_, err = s.AddAnchor(1)
	assert.ErrorIs(t, err, tracking.ErrInvalidAnchor)
}

func TestAnchor_FoundFiresOnTransitions(t *testing.T) {
	engine := trackingtest.NewEngine()
	s := newTestSession(engine, clockwork.NewFakeClock())

	anchor, err := s.AddAnchor(0)
	require.NoError(t, err)

	var found atomic.Int32
	anchor.OnTargetFound(func() { found.Add(1) })

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	rt := engine.Last()

	rt.Emit(tracking.EventFound)
	require.Eventually(t, func() bool { return found.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, anchor.Visible())

	// Still visible: no new transition
	rt.Emit(tracking.EventFound)
	rt.Emit(tracking.EventLost)
	require.Eventually(t, func() bool { return !anchor.Visible() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), found.Load())

	rt.Emit(tracking.EventFound)
	require.Eventually(t, func() bool { return found.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestAnchor_ContentPushedOnStart(t *testing.T) {
	engine := trackingtest.NewEngine()
	s := newTestSession(engine, clockwork.NewFakeClock())

	anchor, err := s.AddAnchor(0)
	require.NoError(t, err)

	mug := tracking.Content{Name: "mug", Source: "coffeeMug.glb", Scale: [3]float64{0.5, 0.5, 0.5}}
	require.NoError(t, anchor.Attach(mug))

	require.NoError(t, s.Start(context.Background()))
	rt := engine.Last()
	require.Len(t, rt.Attached(), 1)
	assert.Equal(t, mug, rt.Attached()[0])

	cup := tracking.Content{Name: "cup", Source: "cup.glb", Scale: [3]float64{1, 1, 1}}
	require.NoError(t, anchor.Attach(cup))
	assert.Len(t, rt.Attached(), 2)

	require.NoError(t, s.Stop(context.Background()))

	// Dropped after stop
	require.NoError(t, anchor.Attach(mug))
	assert.Len(t, rt.Attached(), 2)

	content, ok := anchor.Content()
	require.True(t, ok)
	assert.Equal(t, "mug", content.Name)
}

func TestSession_RenderLoop(t *testing.T) {
	engine := trackingtest.NewEngine()
	clock := clockwork.NewFakeClock()
	s := newTestSession(engine, clock)

	require.NoError(t, s.Start(context.Background()))
	rt := engine.Last()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	for i := 1; i <= 3; i++ {
		clock.Advance(100 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool { return rt.Renders() == want }, time.Second, 5*time.Millisecond)
	}
	assert.Eventually(t, func() bool { return s.Frames() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	clock.Advance(time.Second)
	assert.Equal(t, 3, rt.Renders())
}
