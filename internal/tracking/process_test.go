package tracking

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	engine := NewProcessEngine([]string{"mindar-tracker", "--headless"}, time.Second, clockwork.NewFakeClock())

	tests := []struct {
		name string
		req  StartRequest
	}{
		{
			name: "tracker_args_back",
			req: StartRequest{
				Facing:     FacingBack,
				Device:     "/dev/video0",
				TargetFile: "assets/targets.mind",
				FrameRate:  60,
				Light:      DefaultLight,
			},
		},
		{
			name: "tracker_args_front",
			req: StartRequest{
				Facing:     FacingFront,
				TargetFile: "assets/targets.mind",
				FrameRate:  30,
				Light:      DefaultLight,
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := engine.BuildArgs(tt.req)
			g.Assert(t, tt.name, []byte(strings.Join(args, "\n")+"\n"))
		})
	}
}

func TestProcessEngine_MissingTarget(t *testing.T) {
	engine := NewProcessEngine([]string{"mindar-tracker"}, time.Second, clockwork.NewFakeClock())

	_, err := engine.Start(context.Background(), StartRequest{
		Facing:     FacingBack,
		TargetFile: filepath.Join(t.TempDir(), "missing.mind"),
		FrameRate:  60,
	}, make(chan Event, 1))
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestProcessEngine_NoCommand(t *testing.T) {
	engine := NewProcessEngine(nil, time.Second, nil)
	_, err := engine.Start(context.Background(), StartRequest{}, make(chan Event, 1))
	assert.Error(t, err)
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    trackerMessage
		wantErr bool
	}{
		{
			name: "ready with surface",
			line: `{"event":"ready","surface":{"device":"/dev/video10","width":1280,"height":720,"fps":60}}`,
			want: trackerMessage{
				Event:   "ready",
				Surface: &Surface{Device: "/dev/video10", Width: 1280, Height: 720, FrameRate: 60},
			},
		},
		{
			name: "found",
			line: `  {"event":"found","anchor":0}  `,
			want: trackerMessage{Event: "found"},
		},
		{
			name: "error",
			line: `{"event":"error","code":"camera_denied","message":"NotAllowedError"}`,
			want: trackerMessage{Event: "error", Code: "camera_denied", Message: "NotAllowedError"},
		},
		{name: "plain log line", line: "loading model...", wantErr: true},
		{name: "broken json", line: `{"event":`, wantErr: true},
		{name: "no event", line: `{"anchor":0}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMessage(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyTrackerError(t *testing.T) {
	tests := []struct {
		name string
		msg  trackerMessage
		want error
	}{
		{name: "denied code", msg: trackerMessage{Code: "camera_denied"}, want: ErrCameraDenied},
		{name: "permission message", msg: trackerMessage{Message: "Permission denied for /dev/video0"}, want: ErrCameraDenied},
		{name: "browser style", msg: trackerMessage{Message: "NotAllowedError"}, want: ErrCameraDenied},
		{name: "busy", msg: trackerMessage{Message: "Device busy"}, want: ErrCameraDenied},
		{name: "target", msg: trackerMessage{Code: "target_load_failed", Message: "bad descriptor"}, want: ErrTargetUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyTrackerError(tt.msg), tt.want)
		})
	}

	err := classifyTrackerError(trackerMessage{Code: "gl", Message: "context lost"})
	assert.NotErrorIs(t, err, ErrCameraDenied)
	assert.NotErrorIs(t, err, ErrTargetUnavailable)
	assert.Contains(t, err.Error(), "context lost")
}

func TestParseCameraList(t *testing.T) {
	output := `Integrated Camera: Integrated C (usb-0000:00:14.0-8):
	/dev/video0
	/dev/video1
	/dev/media0

USB Camera (usb-0000:00:14.0-2):
	/dev/video2
`

	cameras := parseCameraList(output)
	require.Len(t, cameras, 2)
	assert.Equal(t, "Integrated Camera: Integrated C (usb-0000:00:14.0-8)", cameras[0].Name)
	assert.Equal(t, []string{"/dev/video0", "/dev/video1", "/dev/media0"}, cameras[0].Devices)
	assert.Equal(t, "USB Camera (usb-0000:00:14.0-2)", cameras[1].Name)
	assert.Equal(t, []string{"/dev/video2"}, cameras[1].Devices)

	assert.Empty(t, parseCameraList(""))
}

func TestFacing(t *testing.T) {
	f, err := ParseFacing("")
	require.NoError(t, err)
	assert.Equal(t, FacingBack, f)

	f, err = ParseFacing("front")
	require.NoError(t, err)
	assert.Equal(t, FacingFront, f)
	assert.Equal(t, "user", f.Mode())
	assert.Equal(t, FacingBack, f.Toggle())
	assert.Equal(t, "environment", f.Toggle().Mode())

	_, err = ParseFacing("sideways")
	assert.Error(t, err)
}
