// Package terminal implements the interactive command-line mode of an aiteam
// agent.
//
// Replies are streamed as they arrive. When the agent proposes a file change
// the unified diff is printed and the next line read is taken as the
// decision (y/n). Tool activity and system messages are shown inline; file
// contents fed back to the model are not.
//
// # Usage
//
//	ctrl := agent.New(cfg, store, agent.Deps{..., Reviewer: review.NewPrinter(os.Stdout)})
//	term := terminal.New(ctrl, agent.NewCycleSession("backend"), "Senior Backend", os.Stdin, os.Stdout)
//	err := term.Run(ctx, initialPrompt)
//
// # Commands
//
//   - /quit, /exit: save the session and leave
//   - /tasks: show the project plan
//   - /task add <title>: append a pending task
//   - /task start <n>: make task n the active one
//   - /task done <n>: mark task n completed
//
// The session is saved after every cycle.
package terminal
