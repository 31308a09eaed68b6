package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/m4xw311/aiteam/agent"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

// Terminal handles the interactive command-line mode of an agent.
type Terminal struct {
	ctrl *agent.Controller
	sess agent.CycleSession
	name string

	in  *bufio.Scanner
	out io.Writer

	// mu guards output from callbacks, which may run on the review timer.
	mu       sync.Mutex
	midReply bool
}

// New creates a terminal driving ctrl. name labels the agent's replies.
// The controller's Reviewer should print to the same writer, see
// review.NewPrinter.
func New(ctrl *agent.Controller, sess agent.CycleSession, name string, in io.Reader, out io.Writer) *Terminal {
	if name == "" {
		name = "Agent"
	}
	t := &Terminal{
		ctrl: ctrl,
		sess: sess,
		name: name,
		in:   bufio.NewScanner(in),
		out:  out,
	}
	t.in.Buffer(make([]byte, 64<<10), 1<<20)
	ctrl.SetCallbacks(t.callbacks())
	return t
}

// Run reads prompts until EOF or /quit. A non-empty initialPrompt is
// submitted first.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if strings.TrimSpace(initialPrompt) != "" {
		fmt.Fprintf(t.out, "You: %s\n", initialPrompt)
		t.submit(ctx, initialPrompt)
	}

	for {
		reviewing := t.ctrl.State() == agent.AwaitingReview
		if !reviewing {
			fmt.Fprint(t.out, "You: ")
		}
		if !t.in.Scan() {
			break
		}
		// The review may have timed out while the answer was being typed.
		if reviewing && t.ctrl.State() == agent.AwaitingReview {
			t.resolve(ctx, t.in.Text())
			continue
		}

		input := strings.TrimSpace(t.in.Text())
		switch {
		case input == "":
			continue
		case input == "/quit" || input == "/exit":
			t.save()
			return nil
		case input == "/tasks" || strings.HasPrefix(input, "/task "):
			msg, err := applyTaskCommand(t.ctrl.Store(), input)
			if err != nil {
				fmt.Fprintf(t.out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(t.out, msg)
			t.save()
		default:
			t.submit(ctx, input)
		}
	}

	t.save()
	return t.in.Err()
}

func (t *Terminal) submit(ctx context.Context, prompt string) {
	t.report(t.ctrl.Submit(ctx, t.sess, prompt))
}

func (t *Terminal) resolve(ctx context.Context, answer string) {
	decision, err := review.ParseDecision(answer)
	if err != nil {
		fmt.Fprint(t.out, "Please answer y or n: ")
		return
	}
	t.report(t.ctrl.Resolve(ctx, t.sess, decision))
}

// report prints refusals. Failures inside a cycle were already shown as
// system turns.
func (t *Terminal) report(err error) {
	t.endReply()
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrBusy), errors.Is(err, errors.ErrReviewPending), errors.Is(err, errors.ErrNoPendingChange):
		fmt.Fprintf(t.out, "Error: %v\n", err)
	default:
		logging.Debug("cycle ended with error", "error", err)
	}
	t.save()
}

func (t *Terminal) save() {
	if err := t.ctrl.Store().Save(); err != nil {
		logging.Warn("failed to save session", "session", t.ctrl.Store().Name, "error", err)
	}
}

func (t *Terminal) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnFragment: func(text string) {
			t.mu.Lock()
			defer t.mu.Unlock()
			if !t.midReply {
				fmt.Fprintf(t.out, "%s: ", t.name)
				t.midReply = true
			}
			fmt.Fprint(t.out, text)
		},
		OnStateChange: func(from, to agent.State) {
			if from == agent.AwaitingModel {
				t.endReply()
			}
		},
		OnInvocation: func(inv tools.Invocation) {
			t.mu.Lock()
			defer t.mu.Unlock()
			switch inv := inv.(type) {
			case tools.ReadFile:
				fmt.Fprintf(t.out, "-> reading %s\n", inv.Path)
			case tools.ExecuteCommand:
				fmt.Fprintf(t.out, "-> running %s\n", inv.Command)
			}
		},
		OnTurn: func(turn session.Turn) {
			if turn.Role != session.RoleSystem || strings.HasPrefix(turn.Content, "[FILE: ") {
				return
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			t.endReplyLocked()
			fmt.Fprintln(t.out, turn.Content)
		},
	}
}

func (t *Terminal) endReply() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endReplyLocked()
}

func (t *Terminal) endReplyLocked() {
	if t.midReply {
		fmt.Fprintln(t.out)
		t.midReply = false
	}
}
