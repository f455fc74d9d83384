package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/coffeehunt/internal/artifact"
	"github.com/audiolibrelab/coffeehunt/internal/metrics"
	"github.com/audiolibrelab/coffeehunt/internal/platform"
	"github.com/audiolibrelab/coffeehunt/internal/recording"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Start begins a new round with the given camera. Any running session is
// fully stopped before the new one requests the camera. A start that is
// still acquiring the camera is cancelled first.
func (o *Orchestrator) Start(ctx context.Context, facing tracking.Facing) error {
	return o.restart(ctx, func(tracking.Facing) tracking.Facing { return facing })
}

// ToggleCamera flips the camera facing and restarts the round with it
func (o *Orchestrator) ToggleCamera(ctx context.Context) error {
	return o.restart(ctx, func(current tracking.Facing) tracking.Facing { return current.Toggle() })
}

func (o *Orchestrator) restart(ctx context.Context, choose func(tracking.Facing) tracking.Facing) error {
	o.cancelPendingStart()

	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pending := &pendingStart{cancel: cancel}

	o.mutex.Lock()
	facing := choose(o.machine.Facing)
	round := o.machine.Round + 1
	previous := o.session
	o.session = nil
	o.pending = pending
	o.mutex.Unlock()

	defer func() {
		o.mutex.Lock()
		if o.pending == pending {
			o.pending = nil
		}
		o.mutex.Unlock()
	}()

	// The old surface must outlive its recording, and the old camera must be
	// released before the new one is requested. The caller giving up does not
	// cut that short.
	if err := o.teardown(context.WithoutCancel(ctx), previous); err != nil && previous.Status() != tracking.StatusStopped {
		o.mutex.Lock()
		o.session = previous
		o.applyLocked(Event{Type: EventStopped})
		o.mutex.Unlock()
		o.setLastError(fmt.Sprintf("Previous camera session did not stop: %v", err))
		o.publish()
		return fmt.Errorf("previous session %s still stopping: %w", previous.ID(), err)
	}
	if err := ctx.Err(); err != nil {
		o.mutex.Lock()
		o.applyLocked(Event{Type: EventStopped})
		o.mutex.Unlock()
		o.publish()
		return fmt.Errorf("start of %s camera cancelled: %w", facing, err)
	}

	o.clearLastError()
	o.mutex.Lock()
	o.notice = ""
	o.applyLocked(Event{Type: EventStartRequested, Round: round, Facing: facing})
	o.mutex.Unlock()
	o.publish()

	session := tracking.NewSession(o.deps.Engine, tracking.Options{
		Facing:     facing,
		Device:     o.deviceFor(facing),
		TargetFile: o.cfg.Tracking.TargetFile,
		FrameRate:  o.cfg.Tracking.FrameRate,
		Light:      tracking.DefaultLight,
		Clock:      o.deps.Clock,
	})
	anchor, err := session.AddAnchor(0)
	if err != nil {
		return err
	}
	anchor.OnTargetFound(func() { o.OnAnchorDetected(round) })

	o.mutex.Lock()
	o.session = session
	o.mutex.Unlock()

	// Model loading never blocks the session
	o.deps.Binder.Bind(context.WithoutCancel(ctx), anchor, o.cfg.Overlay.ModelFile)

	slog.Info("Starting round", "round", round, "facing", facing, "session_id", session.ID())
	startedAt := o.deps.Clock.Now()

	if err := session.Start(startCtx); err != nil {
		metrics.SessionStartsTotal.WithLabelValues(string(facing), "failed").Inc()

		o.mutex.Lock()
		if o.session == session {
			o.session = nil
		}
		o.applyLocked(Event{Type: EventTrackingFailed, Round: round})
		o.mutex.Unlock()

		if errors.Is(err, context.Canceled) {
			slog.Info("Session start cancelled", "round", round, "facing", facing)
		} else {
			o.setLastError(fmt.Sprintf("Failed to start camera: %v", err))
		}
		o.publish()
		return fmt.Errorf("failed to start %s camera: %w", facing, err)
	}

	metrics.SessionStartsTotal.WithLabelValues(string(facing), "ok").Inc()
	metrics.SessionStartDuration.Observe(o.deps.Clock.Since(startedAt).Seconds())
	metrics.ActiveSessions.Inc()

	o.mutex.Lock()
	tr := o.applyLocked(Event{Type: EventTrackingStarted, Round: round})
	if tr.startRecorder && o.cfg.Recording.AutoStartEnabled() {
		o.startRecordingLocked(ctx)
	}
	o.mutex.Unlock()
	o.publish()

	// The marker may already have been in view while the state was settling
	if anchor.Visible() {
		o.OnAnchorDetected(round)
	}

	return nil
}

// OnAnchorDetected ends the round with a win and stops the recording. Only
// the first call of a round in Ready state has any effect.
func (o *Orchestrator) OnAnchorDetected(round uint64) {
	o.mutex.Lock()
	tr := o.applyLocked(Event{Type: EventAnchorDetected, Round: round})
	o.mutex.Unlock()

	if !tr.changed {
		slog.Debug("Anchor detection ignored", "round", round)
		return
	}

	metrics.WinsTotal.Inc()
	slog.Info("Target found, round won", "round", round)
	o.publish()

	if tr.stopRecording {
		o.deps.Recorder.Stop()
	}
}

// Stop tears the round down: recording first, then tracking. Safe to call
// repeatedly. The artifact of a recording cut short here is kept.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.cancelPendingStart()

	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mutex.Lock()
	previous := o.session
	o.session = nil
	o.mutex.Unlock()

	err := o.teardown(ctx, previous)

	o.mutex.Lock()
	tr := o.applyLocked(Event{Type: EventStopped})
	o.mutex.Unlock()
	if tr.changed {
		o.publish()
	}
	return err
}

// teardown stops the recorder and then the session; the caller holds lifecycle
func (o *Orchestrator) teardown(ctx context.Context, session *tracking.Session) error {
	if o.deps.Recorder.Status() != recording.StatusIdle {
		o.deps.Recorder.Stop()
	}

	if session == nil {
		return nil
	}

	wasRunning := session.Status() == tracking.StatusRunning
	err := session.Stop(ctx)
	if wasRunning {
		metrics.ActiveSessions.Dec()
	}
	if err != nil {
		slog.Warn("Tracking session did not stop cleanly", "session_id", session.ID(), "error", err)
		return err
	}
	return nil
}

func (o *Orchestrator) cancelPendingStart() {
	o.mutex.Lock()
	pending := o.pending
	o.mutex.Unlock()
	if pending != nil {
		pending.cancel()
	}
}

// StartRecordingManually starts recording once the session is up (Ready or
// Won) and not already recording; otherwise it does nothing
func (o *Orchestrator) StartRecordingManually(ctx context.Context) bool {
	o.mutex.Lock()
	defer func() {
		o.mutex.Unlock()
		o.publish()
	}()

	if !o.machine.canRecord() {
		slog.Debug("Start recording ignored", "state", o.machine.State, "recording", o.machine.Recording)
		return false
	}
	return o.startRecordingLocked(ctx)
}

// startRecordingLocked must be called with the mutex held, so a detection
// cannot slip between the state check and the recorder start
func (o *Orchestrator) startRecordingLocked(ctx context.Context) bool {
	if o.session == nil {
		return false
	}

	surface, ok := o.session.Surface()
	if !ok {
		slog.Warn("No render surface found, recording skipped", "session_id", o.session.ID())
		metrics.RecordingsTotal.WithLabelValues("skipped").Inc()
		return false
	}

	if !o.deps.Recorder.Start(context.WithoutCancel(ctx), &surface) {
		return false
	}
	o.applyLocked(Event{Type: EventRecordingStarted, Round: o.machine.Round})
	return true
}

// StopRecordingManually stops an active recording and returns its artifact;
// it does nothing when not recording
func (o *Orchestrator) StopRecordingManually() *artifact.Artifact {
	if o.deps.Recorder.Status() == recording.StatusIdle {
		slog.Debug("Stop recording ignored, not recording")
		return nil
	}
	return o.deps.Recorder.Stop()
}

func (o *Orchestrator) onRecordingFinalized(a *artifact.Artifact) {
	o.mutex.Lock()
	o.applyLocked(Event{Type: EventRecordingStopped})
	o.mutex.Unlock()
	o.publish()
}

// ShareArtifact hands the latest artifact to the share facility. Failures
// and a missing artifact become notices.
func (o *Orchestrator) ShareArtifact(ctx context.Context) Notice {
	a := o.deps.Store.Current()
	if a == nil {
		metrics.IntentsTotal.WithLabelValues("share", "no_artifact").Inc()
		return o.setNotice(NoticeNoRecording)
	}

	err := o.deps.Sharer.Share(ctx, platform.ShareRequest{
		Title:    o.cfg.Share.Title,
		URL:      a.URL,
		Artifact: a,
	})
	switch {
	case errors.Is(err, platform.ErrShareUnsupported):
		metrics.IntentsTotal.WithLabelValues("share", "unsupported").Inc()
		return o.setNotice(NoticeShareUnsupported)
	case err != nil:
		metrics.IntentsTotal.WithLabelValues("share", "failed").Inc()
		o.setLastError(fmt.Sprintf("Failed to share video: %v", err))
		return o.setNotice(NoticeShareFailed)
	}

	metrics.IntentsTotal.WithLabelValues("share", "ok").Inc()
	return o.setNotice("")
}

// DownloadArtifact saves the latest artifact under the configured file name
// and returns the saved path
func (o *Orchestrator) DownloadArtifact(ctx context.Context) (string, Notice) {
	a := o.deps.Store.Current()
	if a == nil {
		metrics.IntentsTotal.WithLabelValues("download", "no_artifact").Inc()
		return "", o.setNotice(NoticeNoRecording)
	}

	path, err := o.deps.Saver.Save(ctx, o.cfg.Share.Filename, a)
	if err != nil {
		metrics.IntentsTotal.WithLabelValues("download", "failed").Inc()
		o.setLastError(fmt.Sprintf("Failed to save video: %v", err))
		return "", o.setNotice(NoticeDownloadFailed)
	}

	metrics.IntentsTotal.WithLabelValues("download", "ok").Inc()
	o.setNotice("")
	return path, ""
}

func (o *Orchestrator) setNotice(n Notice) Notice {
	o.mutex.Lock()
	o.notice = n
	o.mutex.Unlock()
	if n != "" {
		slog.Info("Notice", "message", string(n))
	}
	o.publish()
	return n
}

// applyLocked feeds ev to the state machine; the mutex must be held
func (o *Orchestrator) applyLocked(ev Event) transition {
	next, tr := o.machine.apply(ev)
	if !tr.changed {
		return tr
	}
	if next.State != o.machine.State {
		slog.Debug("State transition", "from", o.machine.State, "to", next.State, "event", ev.Type, "round", next.Round)
		metrics.StateTransitionsTotal.WithLabelValues(string(next.State)).Inc()
	}
	o.machine = next
	return tr
}

func (o *Orchestrator) deviceFor(facing tracking.Facing) string {
	if facing == tracking.FacingFront {
		return o.cfg.Tracking.FrontDevice
	}
	return o.cfg.Tracking.BackDevice
}
