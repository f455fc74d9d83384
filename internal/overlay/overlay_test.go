package overlay

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"
	"github.com/audiolibrelab/coffeehunt/internal/tracking/trackingtest"
)

func glb(version, length uint32, size int) []byte {
	data := make([]byte, size)
	copy(data, "glTF")
	binary.LittleEndian.PutUint32(data[4:8], version)
	binary.LittleEndian.PutUint32(data[8:12], length)
	return data
}

func TestValidateGLB(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{name: "valid", data: glb(2, 20, 20)},
		{name: "trailing bytes", data: glb(2, 12, 32)},
		{name: "too short", data: []byte("glTF"), wantErr: true},
		{name: "bad magic", data: append([]byte("GLTF"), glb(2, 12, 12)[4:]...), wantErr: true},
		{name: "version 1", data: glb(1, 12, 12), wantErr: true},
		{name: "truncated", data: glb(2, 64, 16), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGLB(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coffeeMug.glb")
	require.NoError(t, os.WriteFile(path, glb(2, 24, 24), 0644))

	model, err := FileLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "coffeeMug", model.Name)
	assert.Equal(t, path, model.Source)
	assert.Len(t, model.Data, 24)

	_, err = FileLoader{}.Load(context.Background(), filepath.Join(dir, "missing.glb"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.glb")
	require.NoError(t, os.WriteFile(bad, []byte("not a model at all"), 0644))
	_, err = FileLoader{}.Load(context.Background(), bad)
	assert.Error(t, err)
}

type stubLoader struct {
	model *Model
	err   error
	gate  chan struct{}
}

func (l *stubLoader) Load(ctx context.Context, source string) (*Model, error) {
	if l.gate != nil {
		<-l.gate
	}
	return l.model, l.err
}

type recordingTarget struct {
	mutex    sync.Mutex
	attached []tracking.Content
}

func (r *recordingTarget) Attach(content tracking.Content) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.attached = append(r.attached, content)
	return nil
}

func TestBinder_Bind(t *testing.T) {
	loader := &stubLoader{model: &Model{Name: "mug", Source: "mug.glb", Data: []byte{1}}}
	target := &recordingTarget{}

	err := <-NewBinder(loader, 0.5).Bind(context.Background(), target, "mug.glb")
	require.NoError(t, err)

	require.Len(t, target.attached, 1)
	assert.Equal(t, "mug", target.attached[0].Name)
	assert.Equal(t, [3]float64{0.5, 0.5, 0.5}, target.attached[0].Scale)
}

func TestBinder_LoadFailure(t *testing.T) {
	loadErr := errors.New("boom")
	target := &recordingTarget{}

	err := <-NewBinder(&stubLoader{err: loadErr}, 1).Bind(context.Background(), target, "mug.glb")
	assert.ErrorIs(t, err, loadErr)
	assert.Empty(t, target.attached)
}

func TestBinder_DoesNotBlockSessionStart(t *testing.T) {
	engine := trackingtest.NewEngine()
	session := tracking.NewSession(engine, tracking.Options{TargetFile: "targets.mind"})
	anchor, err := session.AddAnchor(0)
	require.NoError(t, err)

	loader := &stubLoader{
		model: &Model{Name: "mug", Source: "mug.glb"},
		gate:  make(chan struct{}),
	}
	result := NewBinder(loader, 0.5).Bind(context.Background(), anchor, "mug.glb")

	// Session starts while the model is still loading
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop(context.Background())
	assert.Empty(t, engine.Last().Attached())

	close(loader.gate)
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bind did not finish")
	}

	attached := engine.Last().Attached()
	require.Len(t, attached, 1)
	assert.Equal(t, "mug", attached[0].Name)
}

func TestNewBinder_Defaults(t *testing.T) {
	b := NewBinder(nil, 0)
	assert.Equal(t, 0.5, b.scale)
	assert.IsType(t, FileLoader{}, b.loader)
}
