package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/audiolibrelab/coffeehunt/internal/artifact"
	"github.com/audiolibrelab/coffeehunt/internal/config"
	"github.com/audiolibrelab/coffeehunt/internal/overlay"
	"github.com/audiolibrelab/coffeehunt/internal/platform"
	"github.com/audiolibrelab/coffeehunt/internal/recording"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Service is the intent surface the UI layer drives
type Service interface {
	// Session lifecycle
	Start(ctx context.Context, facing tracking.Facing) error
	Stop(ctx context.Context) error
	ToggleCamera(ctx context.Context) error

	// Recording
	StartRecordingManually(ctx context.Context) bool
	StopRecordingManually() *artifact.Artifact

	// Artifact hand-off
	ShareArtifact(ctx context.Context) Notice
	DownloadArtifact(ctx context.Context) (string, Notice)
	Artifact() *artifact.Artifact
	LookupArtifact(id uuid.UUID) (*artifact.Artifact, bool)

	// Information
	Status() Status
	Subscribe() (<-chan Status, func())
	GetConfig() *config.Config
	GetLastError() string
}

// Notice is a user-visible message produced instead of an error
type Notice string

const (
	NoticeNoRecording      Notice = "No recording available yet."
	NoticeShareUnsupported Notice = "Sharing not supported on this device."
	NoticeShareFailed      Notice = "Sharing failed or not supported."
	NoticeDownloadFailed   Notice = "Download failed."
)

// WinMessage is shown while the round is won
type WinMessage struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

var winMessage = WinMessage{
	Title:   "You Win!",
	Message: "Enjoy 20% off your next coffee",
}

// Controls reports which user controls are enabled
type Controls struct {
	Start          bool `json:"start"`
	Stop           bool `json:"stop"`
	StartRecording bool `json:"start_recording"`
	StopRecording  bool `json:"stop_recording"`
	Share          bool `json:"share"`
	Download       bool `json:"download"`
	ToggleCamera   bool `json:"toggle_camera"`
}

// ArtifactInfo describes the latest video artifact
type ArtifactInfo struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	MediaType string    `json:"media_type"`
	Size      int       `json:"size"`
	SizeHuman string    `json:"size_human"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a point-in-time snapshot of the orchestrator
type Status struct {
	State         State           `json:"state"`
	CameraMode    tracking.Facing `json:"camera_mode"`
	Round         uint64          `json:"round"`
	SessionID     string          `json:"session_id,omitempty"`
	SessionStatus tracking.Status `json:"session_status,omitempty"`
	Recording     bool            `json:"recording"`
	RecordingInfo *recording.Info `json:"recording_info,omitempty"`
	Artifact      *ArtifactInfo   `json:"artifact,omitempty"`
	Win           *WinMessage     `json:"win,omitempty"`
	Notice        Notice          `json:"notice,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	Controls      Controls        `json:"controls"`
}

// Recorder is the recording controller as seen by the orchestrator
type Recorder interface {
	Start(ctx context.Context, surface *tracking.Surface) bool
	Stop() *artifact.Artifact
	Status() recording.Status
	Info() *recording.Info
	OnFinalized(fn func(a *artifact.Artifact))
}

// Deps are the collaborators an Orchestrator drives
type Deps struct {
	Engine   tracking.Engine
	Recorder Recorder
	Store    *artifact.Store
	Binder   *overlay.Binder
	Sharer   platform.Sharer
	Saver    platform.Saver
	Clock    clockwork.Clock
}

// Orchestrator owns the game state machine and sequences the tracking
// session and the recorder
type Orchestrator struct {
	cfg  *config.Config
	deps Deps

	// lifecycle serialises Start, Stop and ToggleCamera
	lifecycle sync.Mutex

	mutex   sync.Mutex
	machine machine
	session *tracking.Session
	pending *pendingStart
	notice  Notice

	broadcaster *broadcaster

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

type pendingStart struct {
	cancel context.CancelFunc
}

// New creates an idle orchestrator
func New(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Binder == nil {
		deps.Binder = overlay.NewBinder(overlay.FileLoader{}, cfg.Overlay.Scale)
	}

	facing, err := tracking.ParseFacing(cfg.Tracking.Facing)
	if err != nil {
		slog.Warn("Invalid camera facing in config, using back", "facing", cfg.Tracking.Facing)
		facing = tracking.FacingBack
	}

	o := &Orchestrator{
		cfg:         cfg,
		deps:        deps,
		machine:     machine{State: StateIdle, Facing: facing},
		broadcaster: newBroadcaster(),
	}
	deps.Recorder.OnFinalized(o.onRecordingFinalized)
	return o
}

// NewDefault wires the production collaborators described by cfg
func NewDefault(cfg *config.Config) *Orchestrator {
	clock := clockwork.NewRealClock()
	store := artifact.NewStore(cfg.Server.PublicURL)

	capturer := recording.NewFFmpegCapturer(recording.FFmpegOptions{
		Codec:       cfg.Recording.Codec,
		ChunkSize:   cfg.Recording.ChunkSize,
		StopTimeout: time.Duration(cfg.Recording.StopTimeoutMs) * time.Millisecond,
		Clock:       clock,
	})
	recorder := recording.NewController(capturer, store, clock)
	recorder.SetMediaType(cfg.Recording.MediaType)

	local := platform.NewLocal(cfg.Share.DownloadDirectory, cfg.Share.Command)

	return New(cfg, Deps{
		Engine:   tracking.NewProcessEngine(cfg.Tracking.Command, time.Duration(cfg.Tracking.StopTimeoutMs)*time.Millisecond, clock),
		Recorder: recorder,
		Store:    store,
		Binder:   overlay.NewBinder(overlay.FileLoader{}, cfg.Overlay.Scale),
		Sharer:   local,
		Saver:    local,
		Clock:    clock,
	})
}

// GetConfig returns the current configuration
func (o *Orchestrator) GetConfig() *config.Config {
	return o.cfg
}

// Artifact returns the latest video artifact, or nil
func (o *Orchestrator) Artifact() *artifact.Artifact {
	return o.deps.Store.Current()
}

// LookupArtifact returns a still-referenceable artifact by id
func (o *Orchestrator) LookupArtifact(id uuid.UUID) (*artifact.Artifact, bool) {
	return o.deps.Store.Lookup(id)
}

// Status returns a snapshot of the current state
func (o *Orchestrator) Status() Status {
	o.mutex.Lock()
	m := o.machine
	session := o.session
	notice := o.notice
	o.mutex.Unlock()

	st := Status{
		State:         m.State,
		CameraMode:    m.Facing,
		Round:         m.Round,
		Recording:     m.Recording,
		RecordingInfo: o.deps.Recorder.Info(),
		Notice:        notice,
		LastError:     o.GetLastError(),
	}
	if session != nil {
		st.SessionID = session.ID().String()
		st.SessionStatus = session.Status()
	}
	if a := o.deps.Store.Current(); a != nil {
		st.Artifact = &ArtifactInfo{
			ID:        a.ID,
			URL:       a.URL,
			MediaType: a.MediaType,
			Size:      a.Size,
			SizeHuman: formatBytes(int64(a.Size)),
			Filename:  o.cfg.Share.Filename,
			CreatedAt: a.CreatedAt,
		}
	}
	if m.State == StateWon {
		win := winMessage
		st.Win = &win
	}

	st.Controls = Controls{
		Start:          m.State == StateIdle,
		Stop:           m.State != StateIdle,
		StartRecording: m.canRecord(),
		StopRecording:  m.Recording,
		Share:          st.Artifact != nil,
		Download:       st.Artifact != nil,
		ToggleCamera:   m.State != StateIdle,
	}
	return st
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// subscribers only see the latest snapshot. Call the returned func to leave.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	ch, cancel := o.broadcaster.subscribe()
	o.broadcaster.mutex.Lock()
	offer(ch, o.Status())
	o.broadcaster.mutex.Unlock()
	return ch, cancel
}

func (o *Orchestrator) publish() {
	o.broadcaster.publish(o.Status())
}

// GetLastError returns the last error message (thread-safe)
func (o *Orchestrator) GetLastError() string {
	o.lastErrorMutex.RLock()
	defer o.lastErrorMutex.RUnlock()
	return o.lastError
}

// setLastError sets the last error message (thread-safe)
func (o *Orchestrator) setLastError(err string) {
	o.lastErrorMutex.Lock()
	defer o.lastErrorMutex.Unlock()
	o.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (o *Orchestrator) clearLastError() {
	o.lastErrorMutex.Lock()
	defer o.lastErrorMutex.Unlock()
	o.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
