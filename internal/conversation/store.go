package conversation

import (
	"context"
	"time"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// DefaultRetention is the idle window after which a record expires.
const DefaultRetention = 7 * 24 * time.Hour

// Store owns conversation records. Load distinguishes ErrNotFound from
// ErrStoreUnreachable; Lock serializes read-modify-write for one sender.
type Store interface {
	Load(ctx context.Context, sender string) (*qualification.ConversationRecord, error)
	// Save writes the record and refreshes its expiry to ttl.
	Save(ctx context.Context, rec *qualification.ConversationRecord, ttl time.Duration) error
	// Reset discards the record unconditionally.
	Reset(ctx context.Context, sender string) error
	ExistsAndActive(ctx context.Context, sender string) (bool, error)
	// Lock blocks until the sender's lock is held or the wait budget is
	// spent. Work done under the lock must use the returned context, which
	// ends when the lock is released or lost. The release func is safe to
	// call more than once.
	Lock(ctx context.Context, sender string) (lockCtx context.Context, release func(), err error)
}

type leaseKey struct{}

type lease struct {
	sender string
	token  string
}

func withLease(ctx context.Context, sender, token string) context.Context {
	return context.WithValue(ctx, leaseKey{}, lease{sender: sender, token: token})
}

// leaseToken returns the lock token ctx carries for sender.
func leaseToken(ctx context.Context, sender string) (string, bool) {
	l, ok := ctx.Value(leaseKey{}).(lease)
	if !ok || l.sender != sender {
		return "", false
	}
	return l.token, true
}
