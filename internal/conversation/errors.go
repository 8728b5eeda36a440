package conversation

import "errors"

var (
	// ErrNotFound means the sender has no active conversation.
	ErrNotFound = errors.New("conversation: not found")
	// ErrStoreUnreachable means the state store or dedupe guard could not be
	// reached. The inbound message must be redelivered.
	ErrStoreUnreachable = errors.New("conversation: store unreachable")
	// ErrLockTimeout means another turn for the same sender held the lock
	// past the wait budget.
	ErrLockTimeout = errors.New("conversation: lock wait timed out")
	// ErrLockLost means the sender lease expired or was taken over while a
	// turn held it. Nothing was written; the message must be redelivered.
	ErrLockLost = errors.New("conversation: sender lock lost")
	// ErrMessageInFlight means another delivery of the same message is still
	// being processed.
	ErrMessageInFlight = errors.New("conversation: message in flight")
	// ErrEmitFailed means the lead emitter failed on a finalize turn. The
	// record is kept so finalize is retried.
	ErrEmitFailed = errors.New("conversation: lead emit failed")
	// ErrInvalidInput rejects turns without a sender.
	ErrInvalidInput = errors.New("conversation: invalid input")
	// ErrCorruptRecord means a stored record could not be decoded or failed
	// validation.
	ErrCorruptRecord = errors.New("conversation: corrupt record")
)

// IsRetryable reports whether the inbound message should be left for
// redelivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnreachable) || errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrLockLost) ||
		errors.Is(err, ErrMessageInFlight)
}
