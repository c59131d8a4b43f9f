package oplog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/tracelog"
)

var (
	_ = []Buffer{&BlockingQueue{}}
)

// Buffer defines ordered staging area between oplog fetcher and batcher.
// Push and TryPop are atomic on their own, nothing is guaranteed across calls.
type Buffer interface {
	Push(ctx context.Context, entry models.OplogEntry) error
	TryPop() (models.OplogEntry, bool)
	BlockingPop(ctx context.Context) (models.OplogEntry, error)
	Peek() (models.OplogEntry, bool)
	Count() int
	Size() int
	Clear()
	Shutdown()
}

// BackpressurePolicy defines Push behaviour on a full buffer.
type BackpressurePolicy string

const (
	BlockWhenFull BackpressurePolicy = "block"
	FailWhenFull  BackpressurePolicy = "fail"
)

// ParseBackpressurePolicy ...
func ParseBackpressurePolicy(s string) (BackpressurePolicy, error) {
	switch p := BackpressurePolicy(s); p {
	case BlockWhenFull, FailWhenFull:
		return p, nil
	}
	return "", fmt.Errorf("unknown buffer policy '%s', expected one of: [%s %s]", s, BlockWhenFull, FailWhenFull)
}

// BlockingQueue is in-memory FIFO Buffer bounded by entries count and bytes.
// Zero limit means the dimension is unbounded.
type BlockingQueue struct {
	mu       sync.Mutex
	entries  []models.OplogEntry
	size     int
	maxCount int
	maxBytes int
	policy   BackpressurePolicy
	changed  chan struct{}
	shutdown bool
}

// NewBlockingQueue builds BlockingQueue.
func NewBlockingQueue(maxCount, maxBytes int, policy BackpressurePolicy) *BlockingQueue {
	return &BlockingQueue{
		maxCount: maxCount,
		maxBytes: maxBytes,
		policy:   policy,
		changed:  make(chan struct{}),
	}
}

// Push appends entry to the tail, blocks or fails with ErrBufferFull according to policy.
func (q *BlockingQueue) Push(ctx context.Context, entry models.OplogEntry) error {
	for {
		q.mu.Lock()
		if q.shutdown {
			q.mu.Unlock()
			return models.ErrBufferShutdown
		}
		if q.hasSpaceLocked(entry) {
			q.entries = append(q.entries, entry)
			q.size += len(entry.Data)
			q.notifyLocked()
			q.mu.Unlock()
			return nil
		}
		if q.policy == FailWhenFull {
			q.mu.Unlock()
			return models.ErrBufferFull
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryPop removes the oldest entry, does not block.
func (q *BlockingQueue) TryPop() (models.OplogEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// BlockingPop waits until entry is available, buffer is shut down or ctx is done.
func (q *BlockingQueue) BlockingPop(ctx context.Context) (models.OplogEntry, error) {
	for {
		q.mu.Lock()
		if entry, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return entry, nil
		}
		if q.shutdown {
			q.mu.Unlock()
			return models.OplogEntry{}, models.ErrBufferShutdown
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return models.OplogEntry{}, ctx.Err()
		}
	}
}

// Peek returns the oldest entry without removing it.
func (q *BlockingQueue) Peek() (models.OplogEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return models.OplogEntry{}, false
	}
	return q.entries[0], true
}

// Count returns number of staged entries.
func (q *BlockingQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Size returns number of staged bytes.
func (q *BlockingQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Clear drops all staged entries.
func (q *BlockingQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	q.size = 0
	q.notifyLocked()
}

// Shutdown rejects further pushes and wakes up all waiters.
// Staged entries can still be popped.
func (q *BlockingQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	q.shutdown = true
	q.notifyLocked()
}

func (q *BlockingQueue) popLocked() (models.OplogEntry, bool) {
	if len(q.entries) == 0 {
		return models.OplogEntry{}, false
	}
	entry := q.entries[0]
	q.entries[0] = models.OplogEntry{}
	q.entries = q.entries[1:]
	q.size -= len(entry.Data)
	q.notifyLocked()
	return entry, true
}

// hasSpaceLocked admits oversized entry into empty queue, otherwise producer would wait forever.
func (q *BlockingQueue) hasSpaceLocked(entry models.OplogEntry) bool {
	if q.maxCount > 0 && len(q.entries) >= q.maxCount {
		return false
	}
	if q.maxBytes > 0 && len(q.entries) > 0 && q.size+len(entry.Data) > q.maxBytes {
		return false
	}
	return true
}

func (q *BlockingQueue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// NewPushBackOff builds exponential backoff used by producers on full buffer.
func NewPushBackOff(retries uint64, initialInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, retries)
}

// PushWithRetry retries ErrBufferFull according to given backoff, other errors are returned at once.
func PushWithRetry(ctx context.Context, buf Buffer, entry models.OplogEntry, b backoff.BackOff) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := buf.Push(ctx, entry)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrBufferFull) {
			tracelog.WarningLogger.Printf("Oplog buffer is full (%d entries, %d bytes), push of op %s: attempt %d",
				buf.Count(), buf.Size(), entry.TS, attempt)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
