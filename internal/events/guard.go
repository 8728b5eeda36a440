package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultDedupeWindow matches the transport's redelivery horizon.
const DefaultDedupeWindow = 24 * time.Hour

// DefaultPendingWindow bounds how long a claimed message blocks its own
// redelivery before the turn is confirmed. It must outlast the slowest turn.
const DefaultPendingWindow = 2 * time.Minute

// ErrInFlight means another delivery of the message was claimed and has not
// been confirmed yet. The caller should leave the message for redelivery.
var ErrInFlight = errors.New("events: message is being processed")

const (
	statePending = "pending"
	stateDone    = "done"
)

// Guard remembers recently processed inbound messages per sender. A message
// is claimed first and confirmed once its turn is applied, so a crash between
// the two lets a later redelivery through.
type Guard interface {
	// IsDuplicate claims (sender, messageID) for the pending window. It
	// reports true when the message was already confirmed inside the dedupe
	// window, and ErrInFlight while an earlier claim is still pending.
	IsDuplicate(ctx context.Context, sender, messageID string) (bool, error)
	// Confirm marks a claimed message processed for the full dedupe window.
	Confirm(ctx context.Context, sender, messageID string) error
	// Forget drops a record so a redelivery of the same message is processed.
	Forget(ctx context.Context, sender, messageID string) error
}

// GuardOption customizes a Guard.
type GuardOption func(*guardOptions)

type guardOptions struct {
	pending time.Duration
}

// WithPendingWindow sets how long an unconfirmed claim holds.
func WithPendingWindow(d time.Duration) GuardOption {
	return func(o *guardOptions) {
		if d > 0 {
			o.pending = d
		}
	}
}

func applyGuardOptions(window time.Duration, opts []GuardOption) guardOptions {
	o := guardOptions{pending: DefaultPendingWindow}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pending > window {
		o.pending = window
	}
	return o
}

func dedupeKey(sender, messageID string) string {
	return fmt.Sprintf("%s|%s", strings.TrimSpace(sender), strings.TrimSpace(messageID))
}

func validate(sender, messageID string) error {
	if strings.TrimSpace(sender) == "" {
		return fmt.Errorf("events: sender required")
	}
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("events: message id required")
	}
	return nil
}

// claimResult maps the state found on an existing record.
func claimResult(state string) (bool, error) {
	if state == stateDone {
		return true, nil
	}
	return false, ErrInFlight
}

// MemoryGuard is an in-process Guard for development and tests.
type MemoryGuard struct {
	mu      sync.Mutex
	window  time.Duration
	pending time.Duration
	seen    map[string]memoryClaim
	now     func() time.Time
}

type memoryClaim struct {
	state     string
	expiresAt time.Time
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard builds a guard that forgets entries after window.
func NewMemoryGuard(window time.Duration, opts ...GuardOption) *MemoryGuard {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	o := applyGuardOptions(window, opts)
	return &MemoryGuard{
		window:  window,
		pending: o.pending,
		seen:    make(map[string]memoryClaim),
		now:     time.Now,
	}
}

func (g *MemoryGuard) IsDuplicate(_ context.Context, sender, messageID string) (bool, error) {
	if err := validate(sender, messageID); err != nil {
		return false, err
	}
	key := dedupeKey(sender, messageID)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.seen[key]; ok && now.Before(c.expiresAt) {
		return claimResult(c.state)
	}
	g.seen[key] = memoryClaim{state: statePending, expiresAt: now.Add(g.pending)}
	g.sweep(now)
	return false, nil
}

func (g *MemoryGuard) Confirm(_ context.Context, sender, messageID string) error {
	g.mu.Lock()
	g.seen[dedupeKey(sender, messageID)] = memoryClaim{state: stateDone, expiresAt: g.now().Add(g.window)}
	g.mu.Unlock()
	return nil
}

func (g *MemoryGuard) Forget(_ context.Context, sender, messageID string) error {
	g.mu.Lock()
	delete(g.seen, dedupeKey(sender, messageID))
	g.mu.Unlock()
	return nil
}

// sweep bounds memory by dropping expired entries once the map grows.
func (g *MemoryGuard) sweep(now time.Time) {
	if len(g.seen) < 1024 {
		return
	}
	for k, c := range g.seen {
		if !now.Before(c.expiresAt) {
			delete(g.seen, k)
		}
	}
}
