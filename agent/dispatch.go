package agent

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

// Outcome tells the controller what to do after a dispatch.
type Outcome int

const (
	// Continue means the cycle may call the model again.
	Continue Outcome = iota
	// AwaitReview means a change was staged and the cycle must wait for a
	// human decision.
	AwaitReview
)

// Dispatcher executes tool invocations against the collaborators. Reads run
// immediately, commands are started and forgotten, writes are only staged.
type Dispatcher struct {
	store    *session.Store
	fs       tools.FileSystem
	terminal tools.Terminal
	reviewer tools.Reviewer

	callbacks *Callbacks
}

func NewDispatcher(store *session.Store, fsys tools.FileSystem, terminal tools.Terminal, reviewer tools.Reviewer) *Dispatcher {
	return &Dispatcher{store: store, fs: fsys, terminal: terminal, reviewer: reviewer, callbacks: &Callbacks{}}
}

// Dispatch executes one invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, sess CycleSession, inv tools.Invocation) (Outcome, error) {
	d.callbacks.invocation(inv)

	switch inv := inv.(type) {
	case tools.ReadFile:
		content, err := d.fs.Read(inv.Path)
		if err != nil {
			logging.Warn("read_file failed", "path", inv.Path, "error", err)
			d.system(fmt.Sprintf("Error reading %s: %v", inv.Path, err))
			return Continue, nil
		}
		d.system(fmt.Sprintf("[FILE: %s]\n%s\n[END FILE: %s]", inv.Path, content, inv.Path))
		return Continue, nil

	case tools.ExecuteCommand:
		if err := d.terminal.Run(ctx, inv.Command); err != nil {
			logging.Warn("execute_command refused", "command", inv.Command, "error", err)
			d.system(fmt.Sprintf("Error: could not run `%s`: %v", inv.Command, err))
		}
		return Continue, nil

	case tools.WriteFile:
		return d.stage(sess, inv)

	default:
		return Continue, errors.New("unsupported invocation %T", inv)
	}
}

// DispatchBatch dispatches invocations in order and stops at the first one
// that needs review. Invocations after it are dropped.
func (d *Dispatcher) DispatchBatch(ctx context.Context, sess CycleSession, invs []tools.Invocation) (Outcome, error) {
	for i, inv := range invs {
		outcome, err := d.Dispatch(ctx, sess, inv)
		if err != nil {
			return outcome, err
		}
		if outcome == AwaitReview {
			if dropped := invs[i+1:]; len(dropped) > 0 {
				kinds := make([]string, len(dropped))
				for j, inv := range dropped {
					kinds[j] = inv.Kind()
				}
				logging.Warn("dropping directives after write_file", "path", inv.(tools.WriteFile).Path, "dropped", kinds)
			}
			return AwaitReview, nil
		}
	}
	return Continue, nil
}

func (d *Dispatcher) stage(sess CycleSession, inv tools.WriteFile) (Outcome, error) {
	if sess.Review == nil {
		return Continue, errors.New("cycle session has no review gate")
	}

	current, err := d.fs.Read(inv.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("cannot stage write", "path", inv.Path, "error", err)
		d.system(fmt.Sprintf("Error: cannot propose changes to %s: %v", inv.Path, err))
		return Continue, nil
	}

	change, err := sess.Review.Stage(inv.Path, inv.Content, string(current))
	if errors.Is(err, errors.ErrChangePending) {
		d.system(fmt.Sprintf("Write to %s refused: %s is still awaiting review", inv.Path, change.Path))
		return Continue, err
	}
	if err != nil {
		return Continue, err
	}

	logging.Info("change staged for review", "path", change.Path, "id", change.ID)
	d.reviewer.PresentDiff(change.Path, change.Original, change.Content)
	d.callbacks.review(change)
	return AwaitReview, nil
}

func (d *Dispatcher) system(content string) {
	d.callbacks.turn(d.store.AppendMessage(session.RoleSystem, content))
}
