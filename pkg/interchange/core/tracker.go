package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Key identifying one command against one service. At most one
// request per key may be in flight at any time.
type PendingKey struct {
	Svc string
	Cmd uuid.UUID
}

func NewPendingKey(svc types.ServiceIdentity, cmd uuid.UUID) PendingKey {
	return PendingKey{Svc: svc.String(), Cmd: cmd}
}

// In-memory registry preventing duplicate concurrent requests for
// the same (service, command) pair. Entries are created when a
// request is dispatched and removed unconditionally when any
// terminal outcome arrives, never leaked.
type Tracker struct {
	// Synchronization for operations.
	mutex *sync.Mutex

	// Holds the begin moment of each in-flight key.
	inflight map[PendingKey]time.Time

	// Coarse upper bound of a round trip, used for wait hints.
	expected time.Duration

	clock func() time.Time
}

func NewTracker(expected time.Duration) *Tracker {
	return &Tracker{
		mutex:    &sync.Mutex{},
		inflight: make(map[PendingKey]time.Time),
		expected: expected,
		clock:    time.Now,
	}
}

// TryBegin atomically registers the key if absent. Returns false
// when a request for the key is already in flight, the duplicate
// must be suppressed by the caller.
func (t *Tracker) TryBegin(svc types.ServiceIdentity, cmd uuid.UUID) bool {
	return t.acquire(NewPendingKey(svc, cmd))
}

func (t *Tracker) acquire(key PendingKey) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, exists := t.inflight[key]; exists {
		return false
	}
	t.inflight[key] = t.clock()
	return true
}

// End unconditionally removes the key. Must be called exactly once
// per successful TryBegin, on every completion path, otherwise the
// command stays permanently blocked.
func (t *Tracker) End(svc types.ServiceIdentity, cmd uuid.UUID) {
	t.release(NewPendingKey(svc, cmd))
}

func (t *Tracker) release(key PendingKey) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.inflight, key)
}

// IsPending reports whether the key is currently registered. The
// hint is a coarse upper bound of the remaining wait derived from
// the expected round trip, zero when the estimate is exhausted or
// unknown.
func (t *Tracker) IsPending(svc types.ServiceIdentity, cmd uuid.UUID) (bool, time.Duration) {
	key := NewPendingKey(svc, cmd)
	t.mutex.Lock()
	defer t.mutex.Unlock()
	begin, exists := t.inflight[key]
	if !exists {
		return false, 0
	}
	if t.expected <= 0 {
		return true, 0
	}
	remaining := t.expected - t.clock().Sub(begin)
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}
