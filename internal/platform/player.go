package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Player previews a saved recording with whatever video player is installed
type Player struct {
	lookPath func(string) (string, error)
}

func NewPlayer() *Player {
	return &Player{lookPath: exec.LookPath}
}

// Play blocks until playback of file finishes
func (p *Player) Play(ctx context.Context, file string) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("video file not found: %s", file)
	}

	args, err := p.command(file)
	if err != nil {
		return fmt.Errorf("no suitable video player found: %w", err)
	}

	slog.Info("Playing recording", "file", file, "player", args[0])
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", args[0], err)
	}
	return nil
}

func (p *Player) command(file string) ([]string, error) {
	player, err := p.findVideoPlayer()
	if err != nil {
		return nil, err
	}

	switch player {
	case "vlc":
		return []string{"vlc", "--play-and-exit", file}, nil
	case "mpv":
		return []string{"mpv", "--really-quiet", file}, nil
	case "ffplay":
		return []string{"ffplay", "-autoexit", "-loglevel", "error", file}, nil
	}
	return nil, fmt.Errorf("unsupported player: %s", player)
}

func (p *Player) findVideoPlayer() (string, error) {
	// Preferred players in order
	players := []string{"vlc", "mpv", "ffplay"}

	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no video player found (tried: %s)", strings.Join(players, ", "))
}
