package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/term"
)

// ExecResult holds the output of a captured exec.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecCapture runs cmd inside the container without a TTY and captures
// its output. Privileged execs run as root with full capabilities,
// which firewall installation requires.
func (c *Client) ExecCapture(ctx context.Context, containerID string, cmd []string, privileged bool) (*ExecResult, error) {
	opts := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		Privileged:   privileged,
	}
	if privileged {
		opts.User = "root"
	}

	create, err := c.cli.ContainerExecCreate(ctx, containerID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, create.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, create.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// ExecInteractive runs cmd inside the container with a TTY wired to the
// caller's terminal. The local terminal is switched to raw mode for the
// duration and window resizes are propagated. Returns the command's
// exit code.
func (c *Client) ExecInteractive(ctx context.Context, containerID string, cmd, env []string, workingDir string) (int, error) {
	create, err := c.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		WorkingDir:   workingDir,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, create.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return -1, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return -1, fmt.Errorf("failed to set raw terminal mode: %w", err)
		}
		defer func() { _ = term.Restore(stdinFd, oldState) }()

		c.resizeExec(ctx, create.ID)
		stopResize := c.watchResize(ctx, create.ID)
		defer stopResize()
	}

	// Stream stdin to the exec; the copy unblocks when the attach
	// connection closes.
	go func() {
		_, _ = io.Copy(attach.Conn, os.Stdin)
		_ = attach.CloseWrite()
	}()

	if _, err := io.Copy(os.Stdout, attach.Reader); err != nil {
		return -1, fmt.Errorf("failed to stream session output: %w", err)
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, create.ID)
	if err != nil {
		return -1, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return inspect.ExitCode, nil
}

// resizeExec syncs the exec TTY to the current terminal size.
func (c *Client) resizeExec(ctx context.Context, execID string) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return
	}
	_ = c.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{
		Width:  uint(width),
		Height: uint(height),
	})
}

// watchResize propagates SIGWINCH to the exec TTY until the returned
// stop function is called.
func (c *Client) watchResize(ctx context.Context, execID string) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGWINCH)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				c.resizeExec(ctx, execID)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
