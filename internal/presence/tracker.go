package presence

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an online mark survives without a heartbeat.
// The client heartbeat period must stay strictly below this.
const DefaultTTL = 60 * time.Second

// Tracker is the approximate online/offline signal. Implementations are
// independently-failing side stores: callers must treat errors as
// degraded presence, never as a reason to fail messaging.
type Tracker interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	BulkIsOnline(ctx context.Context, userIDs []string) (map[string]bool, error)
}

type memoryEntry struct {
	expires time.Time
}

// MemoryTracker keeps presence in a process-local TTL map. Used in
// tests and when no Redis address is configured; entries do not survive
// restarts, which is acceptable since reconnecting clients re-mark
// themselves online.
type MemoryTracker struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryTracker constructs an in-process tracker with the given TTL.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// MarkOnline sets or refreshes the presence entry. Idempotent.
func (t *MemoryTracker) MarkOnline(_ context.Context, userID string) error {
	now := t.now()
	t.mu.Lock()
	t.entries[userID] = memoryEntry{expires: now.Add(t.ttl)}
	t.gcLocked(now)
	t.mu.Unlock()
	return nil
}

// MarkOffline removes the presence entry immediately.
func (t *MemoryTracker) MarkOffline(_ context.Context, userID string) error {
	t.mu.Lock()
	delete(t.entries, userID)
	t.mu.Unlock()
	return nil
}

// IsOnline reports whether an unexpired entry exists for the user.
func (t *MemoryTracker) IsOnline(_ context.Context, userID string) (bool, error) {
	now := t.now()
	t.mu.RLock()
	entry, ok := t.entries[userID]
	t.mu.RUnlock()
	return ok && now.Before(entry.expires), nil
}

// BulkIsOnline resolves presence for many users at once.
func (t *MemoryTracker) BulkIsOnline(_ context.Context, userIDs []string) (map[string]bool, error) {
	now := t.now()
	statuses := make(map[string]bool, len(userIDs))

	t.mu.RLock()
	for _, id := range userIDs {
		entry, ok := t.entries[id]
		statuses[id] = ok && now.Before(entry.expires)
	}
	t.mu.RUnlock()
	return statuses, nil
}

func (t *MemoryTracker) gcLocked(now time.Time) {
	for id, entry := range t.entries {
		if !now.Before(entry.expires) {
			delete(t.entries, id)
		}
	}
}

// WithNowFunc overrides the clock. Tests only.
func (t *MemoryTracker) WithNowFunc(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
