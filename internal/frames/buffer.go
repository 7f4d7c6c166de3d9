package frames

import (
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/nbsgate/internal/common"
)

var (
	// ErrLate reports a frame whose key sorts before the watermark of
	// already-released frames.
	ErrLate = errors.New("frame arrived too late")

	// ErrDuplicate reports a frame whose key is already buffered or was
	// already released.
	ErrDuplicate = errors.New("frame is a duplicate")

	// ErrFull reports an insert against a buffer at capacity.
	ErrFull = errors.New("frame buffer is full")

	// ErrClosed is returned by TakeOldest once the buffer is closed and
	// drained.
	ErrClosed = errors.New("frame buffer is closed")
)

// Frame is a buffered NOAAPort frame together with its ordering key.
// Ownership of Data transfers to the caller when TakeOldest returns it.
type Frame struct {
	Key  Key
	Data []byte
}

type entry struct {
	key  Key
	data []byte
}

// Buffer accepts decoded frames arriving out of order and releases them
// in temporal key order: immediately when the oldest buffered frame is
// the immediate successor of the last released one, otherwise after a
// bounded wait for gap-filling. A single mutex guards all state; one
// condition variable serves both the "non-empty" and the "successor or
// deadline" waits.
type Buffer struct {
	mu           sync.Mutex
	cond         *sync.Cond
	entries      []entry // sorted by key, oldest first
	lastReleased Key
	hasReleased  bool
	closed       bool
	maxFrames    int
	timeout      time.Duration

	metrics *common.Metrics
}

// NewBuffer returns a buffer holding at most maxFrames frames. timeout
// is how long a buffered frame may wait for its predecessor before it is
// released regardless; the deadline is fixed at insertion.
func NewBuffer(maxFrames int, timeout time.Duration) *Buffer {
	if maxFrames <= 0 {
		maxFrames = 1
	}
	b := &Buffer{maxFrames: maxFrames, timeout: timeout}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetMetrics attaches a metrics recorder to the buffer.
func (b *Buffer) SetMetrics(m *common.Metrics) {
	b.mu.Lock()
	b.metrics = m
	b.mu.Unlock()
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Insert adds a frame under the given key, copying data into the
// buffer's own storage. Duplicate and too-late frames are rejected
// without changing state; both are counted, recoverable conditions. The
// key's reveal deadline is stamped here: insertion time plus the
// configured timeout.
func (b *Buffer) Insert(key Key, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.hasReleased {
		if key.Less(b.lastReleased) {
			if b.metrics != nil {
				b.metrics.IncLate()
			}
			common.Logf("frame arrived too late: lastReleased=%s, late=%s; increase the timeout?",
				b.lastReleased, key)
			return ErrLate
		}
		if key.Same(b.lastReleased) {
			if b.metrics != nil {
				b.metrics.IncDuplicate()
			}
			return ErrDuplicate
		}
	}

	i := sort.Search(len(b.entries), func(i int) bool {
		return !b.entries[i].key.Less(key)
	})
	if i < len(b.entries) && b.entries[i].key.Same(key) {
		if b.metrics != nil {
			b.metrics.IncDuplicate()
		}
		return ErrDuplicate
	}
	if len(b.entries) >= b.maxFrames {
		if b.metrics != nil {
			b.metrics.IncDropped()
		}
		return ErrFull
	}

	key.RevealDeadline = time.Now().Add(b.timeout)
	stored := entry{key: key, data: append([]byte(nil), data...)}
	b.entries = append(b.entries, entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = stored
	b.cond.Signal()
	return nil
}

// TakeOldest blocks until a frame can be released and returns it. The
// oldest buffered frame is released immediately on the very first call,
// when it immediately succeeds the last released frame, or once its
// reveal deadline has passed; otherwise the call waits until a successor
// arrives or the deadline expires, whichever comes first. Released keys
// are non-decreasing. After Close, ErrClosed is returned once the buffer
// is drained.
func (b *Buffer) TakeOldest() (Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		for len(b.entries) == 0 {
			if b.closed {
				return Frame{}, ErrClosed
			}
			b.cond.Wait()
		}

		head := b.entries[0].key
		if b.closed || !b.hasReleased || head.IsSuccessorOf(b.lastReleased) || !time.Now().Before(head.RevealDeadline) {
			return b.releaseLocked(), nil
		}

		// Wait for a successor to arrive, but no longer than the
		// head's absolute deadline. The deadline was fixed at
		// insertion, so spurious wakeups cannot extend it; a closer
		// successor arriving re-evaluates against the new head.
		timer := time.AfterFunc(time.Until(head.RevealDeadline), b.cond.Broadcast)
		b.cond.Wait()
		timer.Stop()
	}
}

// releaseLocked removes and returns the oldest frame, advancing the
// watermark.
func (b *Buffer) releaseLocked() Frame {
	head := b.entries[0]
	copy(b.entries, b.entries[1:])
	b.entries[len(b.entries)-1] = entry{}
	b.entries = b.entries[:len(b.entries)-1]
	b.lastReleased = head.key
	b.hasReleased = true
	return Frame{Key: head.key, Data: head.data}
}

// Close marks the buffer closed and wakes all waiters. Buffered frames
// remain takeable; TakeOldest returns ErrClosed once drained.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
