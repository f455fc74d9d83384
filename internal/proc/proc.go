// Package proc holds the subprocess plumbing shared by the tracker and
// recorder backends.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/jonboulle/clockwork"
)

// ReadOutput logs every line of a diagnostic pipe at debug level
func ReadOutput(pipe io.ReadCloser, label string) {
	defer pipe.Close()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		slog.Debug("Process output", "process", label, "line", scanner.Text())
	}
}

// NormalizeExit treats interrupt/kill exits as a clean shutdown
func NormalizeExit(err error, label string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Exit code 255 often means the process was interrupted gracefully
		if exitErr.ExitCode() == 255 {
			slog.Debug("Process exited normally after interrupt signal", "process", label)
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" || state == "signal: killed" {
				slog.Debug("Process exited normally due to signal", "process", label, "state", state)
				return nil
			}
		}
	}
	return fmt.Errorf("%s process failed: %w", label, err)
}

// Interrupt sends SIGINT and waits for exited to close. The process is killed
// when timeout elapses or ctx is done first; ctx expiry is reported as an error.
func Interrupt(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}, timeout time.Duration, clock clockwork.Clock, label string) error {
	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to process", "process", label)
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt, falling back to SIGKILL", "process", label, "error", err)
			cmd.Process.Kill()
		}
	}

	select {
	case <-exited:
		return nil
	case <-clock.After(timeout):
		slog.Warn("Process did not exit within timeout, force killing", "process", label, "timeout", timeout)
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-exited
		return nil
	case <-ctx.Done():
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-exited
		return ctx.Err()
	}
}
