package rootchain

import (
	"math"
	"sync/atomic"
)

// Reader pins the version chain at the snapshot it captured. As long as the
// reader is registered, pruning keeps every snapshot at or above its
// version reachable.
type Reader struct {
	ref  *RootRef
	slot int
}

// Root returns the snapshot the reader captured.
func (r *Reader) Root() *RootRef {
	return r.ref
}

// Version returns the version the reader is pinned to.
func (r *Reader) Version() int64 {
	return r.ref.Version
}

// readerSlots provides fixed-size slot-based reader tracking for bounded
// concurrency. Each slot is an atomic pointer, giving O(1)
// register/unregister with no allocation.
type readerSlots struct {
	slots       []atomic.Pointer[Reader]
	maxSize     int
	activeCount atomic.Int32
	minVersion  atomic.Int64 // cached minimum version (MaxInt64 when no readers)
}

func newReaderSlots(maxReaders int) *readerSlots {
	rs := &readerSlots{
		slots:   make([]atomic.Pointer[Reader], maxReaders),
		maxSize: maxReaders,
	}
	rs.minVersion.Store(math.MaxInt64)
	return rs
}

// register finds an empty slot and atomically assigns it to the reader.
// Returns the slot index on success, ErrTooManyReaders if all slots are
// full.
func (rs *readerSlots) register(rd *Reader) (int, error) {
	for i := 0; i < rs.maxSize; i++ {
		if rs.slots[i].CompareAndSwap(nil, rd) {
			rs.activeCount.Add(1)

			for {
				current := rs.minVersion.Load()
				if rd.ref.Version >= current {
					break
				}
				if rs.minVersion.CompareAndSwap(current, rd.ref.Version) {
					break
				}
			}

			return i, nil
		}
	}
	return -1, ErrTooManyReaders
}

// unregister atomically clears the slot and handles cache invalidation.
func (rs *readerSlots) unregister(slot int) {
	rd := rs.slots[slot].Load()
	rs.slots[slot].Store(nil)

	if rs.activeCount.Add(-1) == 0 {
		// Last reader out, reset min
		rs.minVersion.Store(math.MaxInt64)
	} else if rd != nil && rd.ref.Version == rs.minVersion.Load() {
		// We removed the min reader, need rescan
		rs.rescanMin()
	}
}

// rescanMin rescans all slots to find the new minimum version.
func (rs *readerSlots) rescanMin() {
	minVersion := int64(math.MaxInt64)
	for i := 0; i < rs.maxSize; i++ {
		if rd := rs.slots[i].Load(); rd != nil {
			if rd.ref.Version < minVersion {
				minVersion = rd.ref.Version
			}
		}
	}
	rs.minVersion.Store(minVersion)
}

// oldestVersion returns the cached minimum registered version, or MaxInt64
// when no readers are active.
func (rs *readerSlots) oldestVersion() int64 {
	if rs.activeCount.Load() == 0 {
		return math.MaxInt64
	}
	return rs.minVersion.Load()
}
