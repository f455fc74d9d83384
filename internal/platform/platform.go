// Package platform hands finished video artifacts to the host: saving them as
// files and passing them to a share facility.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/coffeehunt/internal/artifact"
)

// ErrShareUnsupported is returned when the host has no share facility
var ErrShareUnsupported = errors.New("sharing not supported on this device")

// ShareRequest is what gets handed to the share facility
type ShareRequest struct {
	Title    string
	URL      string
	Artifact *artifact.Artifact
}

type Sharer interface {
	Share(ctx context.Context, req ShareRequest) error
}

type Saver interface {
	Save(ctx context.Context, filename string, a *artifact.Artifact) (string, error)
}

// Local saves into a download directory and shares through an optional
// external command
type Local struct {
	downloadDir  string
	shareCommand []string
}

func NewLocal(downloadDir string, shareCommand []string) *Local {
	return &Local{
		downloadDir:  downloadDir,
		shareCommand: shareCommand,
	}
}

// Save writes the artifact into the download directory, replacing a file of
// the same name, and returns the written path
func (l *Local) Save(ctx context.Context, filename string, a *artifact.Artifact) (string, error) {
	if a == nil {
		return "", fmt.Errorf("no artifact to save")
	}

	if err := os.MkdirAll(l.downloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	path := filepath.Join(l.downloadDir, CleanFileName(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	written, err := io.Copy(f, a.Reader())
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", path, err)
	}

	slog.Info("Video saved to", "file", path, "bytes", written)
	return path, nil
}

// Share runs the configured share command with {url} and {title} substituted
func (l *Local) Share(ctx context.Context, req ShareRequest) error {
	if len(l.shareCommand) == 0 {
		return ErrShareUnsupported
	}

	replacer := strings.NewReplacer("{url}", req.URL, "{title}", req.Title)
	args := make([]string, len(l.shareCommand))
	for i, arg := range l.shareCommand {
		args[i] = replacer.Replace(arg)
	}

	if _, err := exec.LookPath(args[0]); err != nil {
		return fmt.Errorf("%w: %s not found", ErrShareUnsupported, args[0])
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	slog.Debug("Running share command", "command", strings.Join(cmd.Args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("share command failed: %w\nOutput: %s", err, string(output))
	}

	slog.Info("Video shared", "title", req.Title, "url", req.URL)
	return nil
}

// CleanFileName strips path separators and unusual characters from name,
// keeping its extension. Allows letters, numbers, spaces, hyphens, underscores.
func CleanFileName(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var result strings.Builder
	for _, r := range stem {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
	if cleaned == "" {
		cleaned = "recording"
	}
	return cleaned + ext
}
