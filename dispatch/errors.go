package dispatch

import "errors"

var (
	// ErrClosed is returned by Submit after Close and is the cancellation
	// cause of entries still open at Close.
	ErrClosed = errors.New("dispatch: dispatcher closed")

	// ErrSuperseded is the cancellation cause of entries replaced by a
	// later cancelable submission on the same queue key.
	ErrSuperseded = errors.New("dispatch: superseded by a newer request")

	// ErrNoAdapter is the failure of descriptors executed without a
	// transport adapter or mock.
	ErrNoAdapter = errors.New("dispatch: no transport adapter configured")

	// ErrUnknownAction is returned by Submit for descriptors naming an
	// unregistered action.
	ErrUnknownAction = errors.New("dispatch: unknown action")

	// ErrDuplicateAction is returned when registering an action name twice.
	ErrDuplicateAction = errors.New("dispatch: action already registered")
)
