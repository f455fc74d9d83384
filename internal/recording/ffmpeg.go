package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/audiolibrelab/coffeehunt/internal/proc"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// FFmpegCapturer records a v4l2 render surface into webm on stdout
type FFmpegCapturer struct {
	binary      string
	codec       string
	chunkSize   int
	stopTimeout time.Duration
	clock       clockwork.Clock
}

// FFmpegOptions configures an FFmpegCapturer
type FFmpegOptions struct {
	Binary      string
	Codec       string
	ChunkSize   int
	StopTimeout time.Duration
	Clock       clockwork.Clock
}

func NewFFmpegCapturer(opts FFmpegOptions) *FFmpegCapturer {
	c := &FFmpegCapturer{
		binary:      opts.Binary,
		codec:       opts.Codec,
		chunkSize:   opts.ChunkSize,
		stopTimeout: opts.StopTimeout,
		clock:       opts.Clock,
	}
	if c.binary == "" {
		c.binary = "ffmpeg"
	}
	if c.codec == "" {
		c.codec = "libvpx"
	}
	if c.chunkSize <= 0 {
		c.chunkSize = 64 * 1024
	}
	if c.stopTimeout <= 0 {
		c.stopTimeout = 5 * time.Second
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return c
}

// BuildArgs returns the ffmpeg command line for surface
func (c *FFmpegCapturer) BuildArgs(surface tracking.Surface) []string {
	args := []string{
		c.binary,
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "v4l2",
	}
	if surface.FrameRate > 0 {
		args = append(args, "-framerate", fmt.Sprintf("%d", surface.FrameRate))
	}
	if surface.Width > 0 && surface.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", surface.Width, surface.Height))
	}
	args = append(args,
		"-i", surface.Device,
		"-c:v", c.codec,
		"-deadline", "realtime",
		"-an",
		"-f", "webm",
		"pipe:1",
	)
	return args
}

func (c *FFmpegCapturer) Capture(ctx context.Context, surface tracking.Surface) (Stream, error) {
	if surface.Device == "" {
		return nil, fmt.Errorf("render surface has no device")
	}

	args := c.BuildArgs(surface)
	slog.Info("Starting FFmpeg capture", "command", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	s := &ffmpegStream{
		capturer: c,
		cmd:      cmd,
		chunks:   make(chan []byte, 16),
		exited:   make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readChunks(stdout)
	}()
	go func() {
		defer readers.Done()
		proc.ReadOutput(stderr, "ffmpeg")
	}()
	go func() {
		readers.Wait()
		waitErr := cmd.Wait()

		s.mutex.Lock()
		if !s.stopping {
			// Ended on its own: the surface went away or ffmpeg failed
			if waitErr != nil {
				s.err = fmt.Errorf("ffmpeg capture ended: %w", waitErr)
			} else {
				s.err = errors.New("ffmpeg capture ended unexpectedly")
			}
		} else {
			s.exitErr = waitErr
		}
		s.mutex.Unlock()

		close(s.exited)
		close(s.chunks)
	}()

	return s, nil
}

type ffmpegStream struct {
	capturer *FFmpegCapturer
	cmd      *exec.Cmd
	chunks   chan []byte
	exited   chan struct{}

	mutex    sync.Mutex
	stopping bool
	err      error
	exitErr  error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Chunks() <-chan []byte { return s.chunks }

func (s *ffmpegStream) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// readChunks forwards stdout in chunkSize pieces
func (s *ffmpegStream) readChunks(pipe io.ReadCloser) {
	defer pipe.Close()
	for {
		buf := make([]byte, s.capturer.chunkSize)
		n, err := io.ReadFull(pipe, buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Debug("FFmpeg stdout read ended", "error", err)
			}
			return
		}
	}
}

// Stop interrupts ffmpeg so it flushes the webm trailer, killing it after the
// stop timeout
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mutex.Lock()
		s.stopping = true
		s.mutex.Unlock()

		select {
		case <-s.exited:
			return
		default:
		}

		if err := proc.Interrupt(context.Background(), s.cmd, s.exited, s.capturer.stopTimeout, s.capturer.clock, "ffmpeg"); err != nil {
			s.stopErr = err
			return
		}

		s.mutex.Lock()
		exitErr := s.exitErr
		s.mutex.Unlock()
		s.stopErr = proc.NormalizeExit(exitErr, "ffmpeg")
	})
	return s.stopErr
}
