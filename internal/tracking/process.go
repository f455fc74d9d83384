package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/audiolibrelab/coffeehunt/internal/proc"
)

// ProcessEngine runs the marker tracker as a helper process. The helper owns
// the camera and the compositor; it reports events as JSON lines on stdout and
// accepts commands as JSON lines on stdin.
type ProcessEngine struct {
	command     []string
	stopTimeout time.Duration
	clock       clockwork.Clock
}

// NewProcessEngine creates an engine launching command (program + leading args)
func NewProcessEngine(command []string, stopTimeout time.Duration, clock clockwork.Clock) *ProcessEngine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	return &ProcessEngine{
		command:     command,
		stopTimeout: stopTimeout,
		clock:       clock,
	}
}

// commandQueueSize bounds the commands waiting for the helper to read them
const commandQueueSize = 16

var errTrackerBusy = errors.New("tracker is not reading commands")

// trackerMessage is one line emitted by the helper
type trackerMessage struct {
	Event   string   `json:"event"`
	Anchor  int      `json:"anchor"`
	Surface *Surface `json:"surface,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
}

// trackerCommand is one line sent to the helper
type trackerCommand struct {
	Cmd    string      `json:"cmd"`
	Anchor *int        `json:"anchor,omitempty"`
	Model  string      `json:"model,omitempty"`
	Name   string      `json:"name,omitempty"`
	Scale  *[3]float64 `json:"scale,omitempty"`
}

// BuildArgs returns the full helper command line for a start request
func (e *ProcessEngine) BuildArgs(req StartRequest) []string {
	args := append([]string{}, e.command...)
	args = append(args,
		"--target", req.TargetFile,
		"--facing", req.Facing.Mode(),
	)
	if req.Device != "" {
		args = append(args, "--device", req.Device)
	}
	args = append(args,
		"--fps", fmt.Sprintf("%d", req.FrameRate),
		"--light", fmt.Sprintf("#%06x,#%06x,%.2f", req.Light.Sky, req.Light.Ground, req.Light.Intensity),
		"--anchors", "1",
	)
	return args
}

// Start launches the helper and waits until it reports ready
func (e *ProcessEngine) Start(ctx context.Context, req StartRequest, events chan<- Event) (Runtime, error) {
	if len(e.command) == 0 {
		return nil, fmt.Errorf("no tracker command configured")
	}

	if _, err := os.Stat(req.TargetFile); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTargetUnavailable, req.TargetFile, err)
	}

	args := e.BuildArgs(req)
	slog.Info("Starting tracker", "command", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start tracker: %w", err)
	}

	rt := &processRuntime{
		engine:   e,
		cmd:      cmd,
		stdin:    stdin,
		commands: make(chan []byte, commandQueueSize),
		events:   events,
		ready:    make(chan readyResult, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go rt.writeCommands()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		rt.readEvents(stdout)
	}()
	go func() {
		defer readers.Done()
		proc.ReadOutput(stderr, "tracker")
	}()
	go func() {
		readers.Wait()
		rt.exitErr = cmd.Wait()
		close(rt.exited)
	}()

	select {
	case r := <-rt.ready:
		if r.err != nil {
			rt.kill()
			return nil, r.err
		}
		rt.surface = r.surface
		if r.surface == nil {
			slog.Warn("Tracker ready without a render surface")
		} else {
			slog.Info("Tracker ready", "surface", r.surface.Device, "width", r.surface.Width, "height", r.surface.Height)
		}
		return rt, nil

	case <-rt.exited:
		// An error line is read before the exit is observed
		select {
		case r := <-rt.ready:
			if r.err != nil {
				return nil, r.err
			}
		default:
		}
		return nil, fmt.Errorf("tracker exited before ready: %v", rt.exitErr)

	case <-ctx.Done():
		rt.kill()
		return nil, ctx.Err()
	}
}

type readyResult struct {
	surface *Surface
	err     error
}

type processRuntime struct {
	engine *ProcessEngine
	cmd    *exec.Cmd
	events chan<- Event

	// Only writeCommands touches stdin
	stdin    io.WriteCloser
	commands chan []byte

	surface *Surface
	ready   chan readyResult
	isReady bool

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
	exited   chan struct{}
	exitErr  error
}

func (r *processRuntime) Surface() (Surface, bool) {
	if r.surface == nil {
		return Surface{}, false
	}
	return *r.surface, true
}

func (r *processRuntime) RenderFrame() error {
	return r.send(trackerCommand{Cmd: "render"})
}

func (r *processRuntime) Attach(anchor int, content Content) error {
	scale := content.Scale
	return r.send(trackerCommand{
		Cmd:    "attach",
		Anchor: &anchor,
		Model:  content.Source,
		Name:   content.Name,
		Scale:  &scale,
	})
}

// send queues a command for the helper. It never blocks: a helper that
// stops reading its stdin makes commands fail with errTrackerBusy.
func (r *processRuntime) send(c trackerCommand) error {
	line, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode tracker command: %w", err)
	}

	select {
	case <-r.done:
		return fmt.Errorf("tracker stopped")
	default:
	}

	select {
	case r.commands <- append(line, '\n'):
		return nil
	default:
		return fmt.Errorf("%w: dropped %q", errTrackerBusy, c.Cmd)
	}
}

// writeCommands feeds queued commands to the helper's stdin until the
// runtime stops, then sends the stop command and closes stdin
func (r *processRuntime) writeCommands() {
	defer r.stdin.Close()

	for {
		select {
		case line := <-r.commands:
			if _, err := r.stdin.Write(line); err != nil {
				slog.Debug("Tracker stdin closed", "error", err)
				return
			}
		case <-r.done:
			r.stdin.Write([]byte(`{"cmd":"stop"}` + "\n"))
			return
		}
	}
}

// readEvents parses helper output until EOF
func (r *processRuntime) readEvents(pipe io.ReadCloser) {
	defer pipe.Close()

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		msg, err := parseMessage(line)
		if err != nil {
			slog.Debug("Tracker output", "line", line)
			continue
		}
		r.handleMessage(msg)
	}
}

func (r *processRuntime) handleMessage(msg trackerMessage) {
	switch msg.Event {
	case "ready":
		if r.isReady {
			return
		}
		r.isReady = true
		r.ready <- readyResult{surface: msg.Surface}

	case "error":
		err := classifyTrackerError(msg)
		if !r.isReady {
			r.isReady = true
			r.ready <- readyResult{err: err}
			return
		}
		slog.Error("Tracker error", "code", msg.Code, "message", msg.Message)

	case "found", "lost":
		ev := Event{Kind: EventKind(msg.Event), Anchor: msg.Anchor}
		select {
		case r.events <- ev:
		case <-r.done:
		}

	default:
		slog.Debug("Unknown tracker event", "event", msg.Event)
	}
}

func parseMessage(line string) (trackerMessage, error) {
	var msg trackerMessage
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return msg, fmt.Errorf("not a tracker message")
	}
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return msg, fmt.Errorf("invalid tracker message: %w", err)
	}
	if msg.Event == "" {
		return msg, fmt.Errorf("tracker message without event")
	}
	return msg, nil
}

func classifyTrackerError(msg trackerMessage) error {
	lower := strings.ToLower(msg.Code + " " + msg.Message)
	switch {
	case strings.Contains(lower, "camera_denied"),
		strings.Contains(lower, "permission"),
		strings.Contains(lower, "notallowed"),
		strings.Contains(lower, "device busy"):
		return fmt.Errorf("%w: %s", ErrCameraDenied, msg.Message)
	case strings.Contains(lower, "target"):
		return fmt.Errorf("%w: %s", ErrTargetUnavailable, msg.Message)
	}
	return fmt.Errorf("tracker error: %s", msg.Message)
}

// Stop asks the helper to exit and releases the camera. The helper is killed
// if it does not exit within the engine's stop timeout.
func (r *processRuntime) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.stopErr = r.stop(ctx)
	})
	return r.stopErr
}

func (r *processRuntime) stop(ctx context.Context) error {
	close(r.done)

	// A helper stuck on its stdin is killed here, which also unblocks the writer
	if err := proc.Interrupt(ctx, r.cmd, r.exited, r.engine.stopTimeout, r.engine.clock, "tracker"); err != nil {
		return err
	}
	return proc.NormalizeExit(r.exitErr, "tracker")
}

// kill terminates a helper that never became ready
func (r *processRuntime) kill() {
	r.stopOnce.Do(func() {
		close(r.done)
		if r.cmd.Process != nil {
			r.cmd.Process.Kill()
		}
		<-r.exited
	})
}
