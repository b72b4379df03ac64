package diagnostics

import (
	"context"
	"os/exec"
	"time"
)

type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	s := c.Name
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// CommandRunner executes an external tool and returns its combined stdout/stderr.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

type ExecCommandRunner struct{}

func (ExecCommandRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	// Bound the wait for pipes after the process is killed on timeout.
	command.WaitDelay = 100 * time.Millisecond
	return command.CombinedOutput()
}
