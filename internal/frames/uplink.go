package frames

import "sync"

// UplinkTracker maps the frame-level header's source field to a
// monotonically increasing uplink epoch. The epoch increments every time
// the source changes, even if it reverts to a value seen before: the
// buffer's reveal timeout is far shorter than the minutes-scale silence
// that accompanies an uplink switch, so frames from the previous epoch
// will have drained by the time the change is observed.
type UplinkTracker struct {
	mu          sync.Mutex
	initialized bool
	lastSource  uint8
	epoch       uint32
}

// EpochFor returns the uplink epoch for the given source field, starting
// a new epoch if the source changed since the previous call. The first
// call records the source and returns epoch 0.
func (t *UplinkTracker) EpochFor(source uint8) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		t.initialized = true
		t.lastSource = source
	} else if t.lastSource != source {
		t.lastSource = source
		t.epoch++
	}
	return t.epoch
}
