package agent

import (
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

// Callbacks lets a host observe a cycle. Any field may be nil. Callbacks are
// invoked synchronously from the goroutine driving the cycle and never while
// the controller holds its lock, so they may call State or Cancel.
type Callbacks struct {
	// OnFragment receives streamed model text as it arrives.
	OnFragment func(text string)
	// OnTurn is called after a turn is appended to the conversation.
	OnTurn func(turn session.Turn)
	// OnStateChange reports every transition.
	OnStateChange func(from, to State)
	// OnInvocation is called before a directive is dispatched.
	OnInvocation func(inv tools.Invocation)
	// OnReview is called when a change is staged for review.
	OnReview func(change review.PendingChange)
	// OnComplete is called when the cycle returns to Idle. err is nil on
	// a normal finish.
	OnComplete func(err error)
}

func (cb Callbacks) fragment(text string) {
	if cb.OnFragment != nil {
		cb.OnFragment(text)
	}
}

func (cb Callbacks) turn(t session.Turn) {
	if cb.OnTurn != nil {
		cb.OnTurn(t)
	}
}

func (cb Callbacks) stateChange(from, to State) {
	if cb.OnStateChange != nil && from != to {
		cb.OnStateChange(from, to)
	}
}

func (cb Callbacks) invocation(inv tools.Invocation) {
	if cb.OnInvocation != nil {
		cb.OnInvocation(inv)
	}
}

func (cb Callbacks) review(change review.PendingChange) {
	if cb.OnReview != nil {
		cb.OnReview(change)
	}
}

func (cb Callbacks) complete(err error) {
	if cb.OnComplete != nil {
		cb.OnComplete(err)
	}
}
