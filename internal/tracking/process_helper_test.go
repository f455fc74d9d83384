package tracking

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readyLine = `echo '{"event":"ready","surface":{"device":"/dev/video9","width":640,"height":480,"fps":30}}'`

// writeHelper writes a shell tracker helper and a target file for it
func writeHelper(t *testing.T, body string) (command []string, target string) {
	t.Helper()
	dir := t.TempDir()

	script := filepath.Join(dir, "tracker.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	target = filepath.Join(dir, "targets.mind")
	require.NoError(t, os.WriteFile(target, []byte("mind"), 0o644))

	return []string{"sh", script}, target
}

func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
	}
}

func TestProcessEngine_StartStop(t *testing.T) {
	command, target := writeHelper(t, readyLine+`
echo '{"event":"found","anchor":0}'
while read -r line; do
  case "$line" in
    *'"cmd":"stop"'*) exit 0 ;;
  esac
done`)

	engine := NewProcessEngine(command, 2*time.Second, clockwork.NewRealClock())
	session := NewSession(engine, Options{
		Facing:     FacingBack,
		TargetFile: target,
		FrameRate:  30,
	})
	anchor, err := session.AddAnchor(0)
	require.NoError(t, err)

	found := make(chan struct{})
	var once sync.Once
	anchor.OnTargetFound(func() { once.Do(func() { close(found) }) })

	require.NoError(t, session.Start(context.Background()))
	assert.Equal(t, StatusRunning, session.Status())

	surface, ok := session.Surface()
	require.True(t, ok)
	assert.Equal(t, Surface{Device: "/dev/video9", Width: 640, Height: 480, FrameRate: 30}, surface)

	select {
	case <-found:
	case <-time.After(2 * time.Second):
		t.Fatal("found event never reached the anchor")
	}

	within(t, 5*time.Second, "Stop", func() {
		assert.NoError(t, session.Stop(context.Background()))
	})
	assert.Equal(t, StatusStopped, session.Status())
}

func TestProcessEngine_StartError(t *testing.T) {
	command, target := writeHelper(t, `echo '{"event":"error","code":"camera_denied","message":"Permission denied"}'
exit 1`)

	engine := NewProcessEngine(command, time.Second, clockwork.NewRealClock())
	_, err := engine.Start(context.Background(), StartRequest{
		Facing:     FacingBack,
		TargetFile: target,
		FrameRate:  30,
	}, make(chan Event, 1))
	assert.ErrorIs(t, err, ErrCameraDenied)
}

func TestProcessEngine_StalledHelperIsKilled(t *testing.T) {
	// Ignores SIGINT and never reads its stdin
	command, target := writeHelper(t, `trap '' INT
`+readyLine+`
exec sleep 60`)

	engine := NewProcessEngine(command, 200*time.Millisecond, clockwork.NewRealClock())
	rt, err := engine.Start(context.Background(), StartRequest{
		Facing:     FacingBack,
		TargetFile: target,
		FrameRate:  240,
	}, make(chan Event, 1))
	require.NoError(t, err)

	// Far more than the pipe buffer holds
	within(t, 5*time.Second, "RenderFrame", func() {
		for i := 0; i < 20000; i++ {
			rt.RenderFrame()
		}
	})
	assert.ErrorIs(t, rt.RenderFrame(), errTrackerBusy)

	within(t, 5*time.Second, "Stop", func() {
		assert.NoError(t, rt.Stop(context.Background()))
	})
	assert.Error(t, rt.RenderFrame())
}

func TestSession_StopWithStalledHelper(t *testing.T) {
	command, target := writeHelper(t, `trap '' INT
`+readyLine+`
exec sleep 60`)

	engine := NewProcessEngine(command, 200*time.Millisecond, clockwork.NewRealClock())
	session := NewSession(engine, Options{
		Facing:     FacingBack,
		TargetFile: target,
		FrameRate:  240,
	})
	require.NoError(t, session.Start(context.Background()))

	// Fill the helper's stdin the way a long stall would
	session.mutex.Lock()
	rt := session.runtime
	session.mutex.Unlock()
	for i := 0; i < 20000; i++ {
		rt.RenderFrame()
	}

	within(t, 5*time.Second, "Stop", func() {
		assert.NoError(t, session.Stop(context.Background()))
	})
	assert.Equal(t, StatusStopped, session.Status())
}
