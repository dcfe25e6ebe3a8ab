package session

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Runner abstracts the detached-session backend so the executor and monitor
// can be tested without a live tmux server.
type Runner interface {
	// Available reports whether the backend is usable at all.
	Available(ctx context.Context) error
	// StartDetached creates a named detached session running shellCommand.
	StartDetached(ctx context.Context, name, shellCommand string) error
	// Has reports whether a session with the given name is alive.
	Has(ctx context.Context, name string) (bool, error)
	// Kill terminates the named session.
	Kill(ctx context.Context, name string) error
}

// TmuxRunner drives sessions through the tmux binary. tmux keeps the training
// process alive independently of the request that created it.
type TmuxRunner struct{}

// NewTmuxRunner returns a Runner backed by the system tmux binary.
func NewTmuxRunner() *TmuxRunner {
	return &TmuxRunner{}
}

func (r *TmuxRunner) Available(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "tmux", "-V")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux not available: %w", err)
	}
	return nil
}

func (r *TmuxRunner) StartDetached(ctx context.Context, name, shellCommand string) error {
	cmd := exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", name, shellCommand)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to create tmux session %s: %w: %s", name, err, out.String())
	}
	return nil
}

func (r *TmuxRunner) Has(ctx context.Context, name string) (bool, error) {
	// The "=" target prefix forces an exact name match; bare targets are
	// prefix-matched by tmux and could resolve to another job's session.
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", "="+name)
	// tmux exits non-zero when the session does not exist; that is not an
	// error for our purposes.
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("failed to query tmux session %s: %w", name, err)
	}
	return true, nil
}

func (r *TmuxRunner) Kill(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", "="+name)
	var out bytes.Buffer
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to kill tmux session %s: %w: %s", name, err, out.String())
	}
	return nil
}
