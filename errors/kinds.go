package errors

import (
	stderrors "errors"
)

// Kind classifies failures that reach the user as conversation turns.
type Kind string

const (
	// KindConfiguration covers a missing agent profile or credential. Fatal
	// to the current turn, never retried.
	KindConfiguration Kind = "configuration"
	// KindTransport covers a failed model call or an interrupted stream.
	KindTransport Kind = "transport"
	// KindToolExecution covers file and command failures. The cycle keeps
	// going and the model sees the failure as a system turn.
	KindToolExecution Kind = "tool_execution"
)

// Sentinels returned by the cycle controller and the review gate.
var (
	ErrBusy              = stderrors.New("an agent cycle is already in progress")
	ErrReviewPending     = stderrors.New("a proposed change is awaiting review")
	ErrNoPendingChange   = stderrors.New("no proposed change is awaiting review")
	ErrChangePending     = stderrors.New("another proposed change is already pending")
	ErrContinuationLimit = stderrors.New("continuation limit reached")
	ErrCancelled         = stderrors.New("cycle cancelled")
)

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Configuration marks err as a ConfigurationError.
func Configuration(err error) error { return withKind(KindConfiguration, err) }

// Transport marks err as a TransportError.
func Transport(err error) error { return withKind(KindTransport, err) }

// ToolExecution marks err as a ToolExecutionError.
func ToolExecution(err error) error { return withKind(KindToolExecution, err) }

// KindOf returns the Kind of the first classified error in err's chain, or
// an empty Kind when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func withKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}
