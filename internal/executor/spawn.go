package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// Spawner abstracts subprocess execution. Implementations must honor
// context cancellation by terminating the spawned process tree, and must
// report a non-zero exit as an exit code rather than an error; the error
// return is reserved for processes that could not be spawned at all.
type Spawner interface {
	Spawn(ctx context.Context, command string, env []string, workdir string) (exitCode int, output string, err error)
}

// ShellSpawner runs each command through a shell in its own process
// group, so cancellation kills the whole subprocess tree, not just the
// shell.
type ShellSpawner struct {
	// Shell is the interpreter binary. Empty means /bin/sh.
	Shell string
}

// Spawn implements Spawner.
func (s *ShellSpawner) Spawn(ctx context.Context, command string, env []string, workdir string) (int, string, error) {
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = workdir
	cmd.Env = env

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	output := buf.String()
	if err == nil {
		return 0, output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), output, nil
	}
	return -1, output, err
}
