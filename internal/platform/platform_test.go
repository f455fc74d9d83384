package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/coffeehunt/internal/artifact"
)

func testArtifact() *artifact.Artifact {
	return artifact.NewStore("").Create([][]byte{[]byte("web"), []byte("m-data")}, "video/webm")
}

func TestLocal_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Videos", "CoffeeHunt")
	local := NewLocal(dir, nil)

	path, err := local.Save(context.Background(), "coffee-hunt.webm", testArtifact())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "coffee-hunt.webm"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "webm-data", string(data))

	// Saving again replaces the file
	second := artifact.NewStore("").Create([][]byte{[]byte("new")}, "video/webm")
	_, err = local.Save(context.Background(), "coffee-hunt.webm", second)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestLocal_SaveWithoutArtifact(t *testing.T) {
	_, err := NewLocal(t.TempDir(), nil).Save(context.Background(), "coffee-hunt.webm", nil)
	assert.Error(t, err)
}

func TestLocal_ShareUnsupported(t *testing.T) {
	err := NewLocal(t.TempDir(), nil).Share(context.Background(), ShareRequest{Title: "t", URL: "u"})
	assert.ErrorIs(t, err, ErrShareUnsupported)

	err = NewLocal(t.TempDir(), []string{"definitely-not-a-share-tool-xyz"}).Share(context.Background(), ShareRequest{})
	assert.ErrorIs(t, err, ErrShareUnsupported)
}

func TestLocal_ShareRunsCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "shared.txt")
	local := NewLocal(t.TempDir(), []string{"sh", "-c", `printf '%s|%s' "$0" "$1" > "$2"`, "{title}", "{url}", out})

	err := local.Share(context.Background(), ShareRequest{
		Title: "My AR Coffee Hunt",
		URL:   "http://kiosk:8080/api/artifacts/abc",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "My AR Coffee Hunt|http://kiosk:8080/api/artifacts/abc", string(data))
}

func TestLocal_ShareCommandFails(t *testing.T) {
	err := NewLocal(t.TempDir(), []string{"sh", "-c", "exit 3"}).Share(context.Background(), ShareRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrShareUnsupported))
}

func TestCleanFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "coffee-hunt.webm", want: "coffee-hunt.webm"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: "my hunt!.webm", want: "my_hunt.webm"},
		{in: "???.webm", want: "recording.webm"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanFileName(tt.in))
		})
	}
}

func TestPlayer_Command(t *testing.T) {
	installed := map[string]bool{"mpv": true, "ffplay": true}
	p := &Player{lookPath: func(name string) (string, error) {
		if installed[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}}

	args, err := p.command("/tmp/coffee-hunt.webm")
	require.NoError(t, err)
	assert.Equal(t, []string{"mpv", "--really-quiet", "/tmp/coffee-hunt.webm"}, args)

	installed = map[string]bool{}
	_, err = p.command("/tmp/coffee-hunt.webm")
	assert.Error(t, err)
}

func TestPlayer_MissingFile(t *testing.T) {
	err := NewPlayer().Play(context.Background(), filepath.Join(t.TempDir(), "missing.webm"))
	assert.Error(t, err)
}
