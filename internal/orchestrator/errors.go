package orchestrator

import "errors"

var (
	// ErrConversationBusy means the conversation already has a running
	// turn and its wait queue is full. Callers should retry later.
	ErrConversationBusy = errors.New("conversation is busy")

	// ErrMaxIterations means the model kept requesting calls past the
	// iteration cap. Executed calls remain in the trace; no messages
	// are committed.
	ErrMaxIterations = errors.New("turn exceeded maximum model iterations")

	// ErrEmptyMessage rejects turns with no user content.
	ErrEmptyMessage = errors.New("message must not be empty")
)
