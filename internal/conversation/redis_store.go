package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockWait  = 10 * time.Second
	lockPollInterval = 25 * time.Millisecond
	unlockTimeout    = 2 * time.Second
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// fencedSetScript writes the record only while KEYS[2] holds the token.
var fencedSetScript = redis.NewScript(`
if redis.call("GET", KEYS[2]) ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// fencedDelScript deletes the record only while KEYS[2] holds the token.
var fencedDelScript = redis.NewScript(`
if redis.call("GET", KEYS[2]) ~= ARGV[1] then
	return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisStore keeps one JSON record per sender with a sliding TTL.
type RedisStore struct {
	redis    *redis.Client
	tracer   trace.Tracer
	lockTTL  time.Duration
	lockWait time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisStoreOption customizes a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithLockTTL sets the lease on a sender lock. The holder renews it every
// third of the TTL; a crashed holder frees the sender after this long.
func WithLockTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLockWait bounds how long Lock waits for a busy sender.
func WithLockWait(wait time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if wait > 0 {
			s.lockWait = wait
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	s := &RedisStore{
		redis:    client,
		tracer:   otel.Tracer("leadqual.internal.conversation.store"),
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(sender string) string {
	return fmt.Sprintf("leadqual:conversation:%s", sender)
}

func lockKey(sender string) string {
	return fmt.Sprintf("leadqual:lock:%s", sender)
}

func (s *RedisStore) Load(ctx context.Context, sender string) (*qualification.ConversationRecord, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_record",
		trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	data, err := s.redis.Get(ctx, recordKey(sender)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: load record: %w", ErrStoreUnreachable, err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) Save(ctx context.Context, rec *qualification.ConversationRecord, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_record",
		trace.WithAttributes(attribute.String("sender", rec.Sender)))
	defer span.End()

	if ttl <= 0 {
		ttl = DefaultRetention
	}
	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal record: %w", err)
	}
	if token, ok := leaseToken(ctx, rec.Sender); ok {
		keys := []string{recordKey(rec.Sender), lockKey(rec.Sender)}
		written, err := fencedSetScript.Run(ctx, s.redis, keys, token, data, ttl.Milliseconds()).Int()
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: save record: %w", ErrStoreUnreachable, err)
		}
		if written == 0 {
			span.RecordError(ErrLockLost)
			return fmt.Errorf("%w: save record", ErrLockLost)
		}
		return nil
	}
	if err := s.redis.Set(ctx, recordKey(rec.Sender), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: save record: %w", ErrStoreUnreachable, err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, sender string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.reset_record",
		trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	if token, ok := leaseToken(ctx, sender); ok {
		keys := []string{recordKey(sender), lockKey(sender)}
		deleted, err := fencedDelScript.Run(ctx, s.redis, keys, token).Int()
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: reset record: %w", ErrStoreUnreachable, err)
		}
		if deleted == 0 {
			span.RecordError(ErrLockLost)
			return fmt.Errorf("%w: reset record", ErrLockLost)
		}
		return nil
	}
	if err := s.redis.Del(ctx, recordKey(sender)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: reset record: %w", ErrStoreUnreachable, err)
	}
	return nil
}

func (s *RedisStore) ExistsAndActive(ctx context.Context, sender string) (bool, error) {
	return existsAndActive(ctx, s, sender)
}

// Lock takes the sender lease and keeps renewing it until release. The
// returned context carries the lease token, so Save and Reset through it
// only write while the lease is still ours, and it is cancelled with cause
// ErrLockLost once the lease is gone.
func (s *RedisStore) Lock(ctx context.Context, sender string) (context.Context, func(), error) {
	ctx, span := s.tracer.Start(ctx, "conversation.lock",
		trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	key := lockKey(sender)
	token := uuid.NewString()
	deadline := time.NewTimer(s.lockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := s.redis.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			span.RecordError(err)
			return nil, nil, fmt.Errorf("%w: acquire lock: %w", ErrStoreUnreachable, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-deadline.C:
			span.SetAttributes(attribute.Bool("lock_timeout", true))
			return nil, nil, ErrLockTimeout
		case <-ticker.C:
		}
	}

	lockCtx, cancel := context.WithCancelCause(withLease(ctx, sender, token))
	done := make(chan struct{})
	go s.renew(lockCtx, cancel, key, token, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel(context.Canceled)
			<-done
			unlockCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer stop()
			// A failed release is bounded by the lease TTL.
			_ = releaseScript.Run(unlockCtx, s.redis, []string{key}, token).Err()
		})
	}
	return lockCtx, release, nil
}

// renew extends the lease every third of its TTL until ctx ends. A lease
// that was taken over, or that could not be renewed before it lapsed,
// cancels ctx with ErrLockLost.
func (s *RedisStore) renew(ctx context.Context, cancel context.CancelCauseFunc, key, token string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(s.lockTTL/3, time.Millisecond))
	defer ticker.Stop()
	renewed := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		renewCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), s.lockTTL/3)
		n, err := renewScript.Run(renewCtx, s.redis, []string{key}, token, s.lockTTL.Milliseconds()).Int()
		stop()
		switch {
		case err == nil && n == 1:
			renewed = time.Now()
		case err == nil:
			cancel(ErrLockLost)
			return
		case time.Since(renewed) >= s.lockTTL:
			cancel(fmt.Errorf("%w: renew lease: %w", ErrLockLost, err))
			return
		}
	}
}

func decodeRecord(data []byte) (*qualification.ConversationRecord, error) {
	var rec qualification.ConversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if rec.Fields == nil {
		rec.Fields = qualification.Fields{}
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return &rec, nil
}

func existsAndActive(ctx context.Context, s Store, sender string) (bool, error) {
	rec, err := s.Load(ctx, sender)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorruptRecord):
		return false, nil
	case err != nil:
		return false, err
	}
	return rec.Status == qualification.StatusActive, nil
}
