package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// MemoryStore is an in-process Store for development and tests. Records are
// stored as JSON so callers never share memory with the store.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]memoryEntry
	locks    map[string]chan struct{}
	lockWait time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &MemoryStore{
		records:  make(map[string]memoryEntry),
		locks:    make(map[string]chan struct{}),
		lockWait: lockWait,
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, sender string) (*qualification.ConversationRecord, error) {
	s.mu.Lock()
	entry, ok := s.records[sender]
	if ok && !s.now().Before(entry.expiresAt) {
		delete(s.records, sender)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(entry.data)
}

func (s *MemoryStore) Save(_ context.Context, rec *qualification.ConversationRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRetention
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("conversation: marshal record: %w", err)
	}
	s.mu.Lock()
	s.records[rec.Sender] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, sender string) error {
	s.mu.Lock()
	delete(s.records, sender)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ExistsAndActive(ctx context.Context, sender string) (bool, error) {
	return existsAndActive(ctx, s, sender)
}

func (s *MemoryStore) Lock(ctx context.Context, sender string) (context.Context, func(), error) {
	s.mu.Lock()
	ch, ok := s.locks[sender]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[sender] = ch
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	case <-timer.C:
		return nil, nil, ErrLockTimeout
	}

	lockCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	return lockCtx, func() {
		once.Do(func() {
			cancel()
			<-ch
		})
	}, nil
}
