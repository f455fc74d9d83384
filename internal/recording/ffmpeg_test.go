package recording

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

func TestFFmpegCapturer_BuildArgs(t *testing.T) {
	tests := []struct {
		name    string
		opts    FFmpegOptions
		surface tracking.Surface
	}{
		{
			name:    "ffmpeg_args_full",
			opts:    FFmpegOptions{},
			surface: tracking.Surface{Device: "/dev/video10", Width: 1280, Height: 720, FrameRate: 60},
		},
		{
			name:    "ffmpeg_args_minimal",
			opts:    FFmpegOptions{Binary: "/usr/bin/ffmpeg", Codec: "libvpx-vp9"},
			surface: tracking.Surface{Device: "/dev/video2"},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := NewFFmpegCapturer(tt.opts).BuildArgs(tt.surface)
			g.Assert(t, tt.name, []byte(strings.Join(args, "\n")+"\n"))
		})
	}
}

func TestFFmpegCapturer_Defaults(t *testing.T) {
	c := NewFFmpegCapturer(FFmpegOptions{})
	assert.Equal(t, "ffmpeg", c.binary)
	assert.Equal(t, "libvpx", c.codec)
	assert.Equal(t, 64*1024, c.chunkSize)
	assert.NotNil(t, c.clock)
}

func TestFFmpegCapturer_NoDevice(t *testing.T) {
	_, err := NewFFmpegCapturer(FFmpegOptions{}).Capture(context.Background(), tracking.Surface{})
	assert.Error(t, err)
}

func TestFFmpegStream_ReadChunks(t *testing.T) {
	s := &ffmpegStream{
		capturer: NewFFmpegCapturer(FFmpegOptions{ChunkSize: 4}),
		chunks:   make(chan []byte, 8),
	}

	s.readChunks(io.NopCloser(strings.NewReader("0123456789")))
	close(s.chunks)

	var got []string
	for chunk := range s.chunks {
		got = append(got, string(chunk))
	}
	require.Len(t, got, 3)
	assert.Equal(t, []string{"0123", "4567", "89"}, got)
}
