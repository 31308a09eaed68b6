package tools

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
)

// LocalTerminal runs allow-listed commands with `sh -c` in the project
// directory. Commands run in the background; their output only reaches the
// debug log.
type LocalTerminal struct {
	dir             string
	allowedCommands []string
	timeout         time.Duration

	// done, when set, receives the result of every started command.
	done func(command string, output []byte, err error)
}

func NewLocalTerminal(dir string, allowedCommands []string, timeout time.Duration) *LocalTerminal {
	return &LocalTerminal{dir: dir, allowedCommands: allowedCommands, timeout: timeout}
}

// OnDone registers a hook called when a command finishes.
func (t *LocalTerminal) OnDone(fn func(command string, output []byte, err error)) {
	t.done = fn
}

func (t *LocalTerminal) Run(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.ToolExecution(errors.New("empty command"))
	}
	if !isCommandAllowed(command, t.allowedCommands) {
		return errors.ToolExecution(errors.New("command '%s' is not in the list of allowed commands", command))
	}

	// The command outlives the cycle that started it, so it only inherits
	// the caller's values, not its cancellation.
	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, t.timeout)
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.dir
	logging.Info("starting command", "command", command)

	go func() {
		defer cancel()
		output, err := cmd.CombinedOutput()
		if err != nil {
			logging.Warn("command failed", "command", command, "error", err, "output", string(output))
		} else {
			logging.Debug("command finished", "command", command, "output", string(output))
		}
		if t.done != nil {
			t.done(command, output, err)
		}
	}()
	return nil
}
