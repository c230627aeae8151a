package script

import "errors"

var (
	// ErrExecution indicates that an eligible artifact threw, failed to
	// compile or otherwise crashed while being timed.
	ErrExecution = errors.New("script: execution failed")

	// ErrUnreadable indicates that a candidate artifact exists but could not be read.
	ErrUnreadable = errors.New("script: unreadable artifact")
)
