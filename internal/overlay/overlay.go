// Package overlay loads the 3D model shown on a detected marker and parents it
// under the tracking anchor.
package overlay

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Model is a loaded 3D scene asset
type Model struct {
	Name   string
	Source string
	Data   []byte
}

// Loader fetches a model asset
type Loader interface {
	Load(ctx context.Context, source string) (*Model, error)
}

// Target is where loaded content is parented; *tracking.Anchor satisfies it
type Target interface {
	Attach(content tracking.Content) error
}

const (
	glbMagic      = 0x46546c67 // "glTF" little-endian
	glbVersion    = 2
	glbHeaderSize = 12
)

// FileLoader reads binary glTF (.glb) files from disk
type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, source string) (*Model, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", source, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateGLB(data); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", source, err)
	}

	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return &Model{Name: name, Source: source, Data: data}, nil
}

func validateGLB(data []byte) error {
	if len(data) < glbHeaderSize {
		return fmt.Errorf("file too short for glb header (%d bytes)", len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != glbMagic {
		return fmt.Errorf("bad magic 0x%08x", magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != glbVersion {
		return fmt.Errorf("unsupported glb version %d", version)
	}
	if length := binary.LittleEndian.Uint32(data[8:12]); int(length) > len(data) {
		return fmt.Errorf("declared length %d exceeds file size %d", length, len(data))
	}
	return nil
}

// Binder attaches model content to an anchor at a fixed uniform scale
type Binder struct {
	loader Loader
	scale  float64
}

func NewBinder(loader Loader, scale float64) *Binder {
	if loader == nil {
		loader = FileLoader{}
	}
	if scale <= 0 {
		scale = 0.5
	}
	return &Binder{loader: loader, scale: scale}
}

// Bind loads source in the background and attaches it to target once loaded.
// It never blocks the caller; the returned channel receives the outcome and
// may be ignored.
func (b *Binder) Bind(ctx context.Context, target Target, source string) <-chan error {
	result := make(chan error, 1)

	go func() {
		defer close(result)

		model, err := b.loader.Load(ctx, source)
		if err != nil {
			slog.Warn("Failed to load overlay model, continuing without it", "source", source, "error", err)
			result <- err
			return
		}

		content := tracking.Content{
			Name:   model.Name,
			Source: model.Source,
			Data:   model.Data,
			Scale:  [3]float64{b.scale, b.scale, b.scale},
		}
		if err := target.Attach(content); err != nil {
			slog.Warn("Failed to attach overlay model", "source", source, "error", err)
			result <- fmt.Errorf("attach %s: %w", model.Name, err)
			return
		}

		slog.Debug("Overlay model attached", "model", model.Name, "scale", b.scale, "bytes", len(model.Data))
		result <- nil
	}()

	return result
}
