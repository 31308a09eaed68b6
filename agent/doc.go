// Package agent runs the tool-using work loop of an aiteam agent.
//
// A Controller sends the conversation context to the model, streams the reply,
// extracts the tool directives embedded in it and acts on them through a
// Dispatcher. Reads are answered immediately, commands are started in the
// background, and writes are staged in the session's review gate. The
// controller keeps calling the model until a reply carries no directives, or
// suspends when a write needs a human decision.
//
// # States
//
//	Idle -> AwaitingModel -> ParsingTools -> Idle
//	                                      -> Continuing -> AwaitingModel
//	                                      -> AwaitingReview
//	AwaitingReview -> (accept) Continuing | (reject) AwaitingModel
//	AwaitingModel -> Error -> Idle   (model call failed)
//
// Submit and Resolve return once the cycle is Idle again or waits for review.
// A prompt submitted while a cycle is running is refused with errors.ErrBusy,
// or errors.ErrReviewPending while a change waits for review.
//
// # Usage
//
//	ctrl := agent.New(cfg, store, agent.Deps{
//	    Model:    llm.NewRouter(cfg.OllamaHost),
//	    FS:       fsys,
//	    Terminal: terminal,
//	    Reviewer: review.NewPrinter(os.Stdout),
//	    Tree:     tools.NewTree(".", cfg.Ignore),
//	})
//	ctrl.SetCallbacks(agent.Callbacks{
//	    OnFragment: func(text string) { fmt.Print(text) },
//	})
//	sess := agent.NewCycleSession("backend")
//	err := ctrl.Submit(ctx, sess, "Add a README")
//	if ctrl.State() == agent.AwaitingReview {
//	    err = ctrl.Resolve(ctx, sess, review.Accept)
//	}
//
// # Subpackages
//
// agent/terminal provides the interactive command-line host. agent/acp serves
// the Agent Client Protocol over stdio for editors and webview panels.
package agent
