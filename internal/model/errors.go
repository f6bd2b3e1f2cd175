package model

import "errors"

// Sentinel errors distinguishing transport failures from protocol
// failures. Both are turn-fatal after the single in-adapter retry;
// application-level function failures never originate here.
var (
	// ErrModelUnavailable covers transport, auth, quota, and server
	// errors from the model service.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrMalformedReply covers replies that cannot be parsed into a
	// final answer or a set of known function-call requests.
	ErrMalformedReply = errors.New("malformed model reply")
)
