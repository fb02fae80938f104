package rootchain

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/elastic/go-freelru"

	"rootchain/internal/appendbuf"
	"rootchain/internal/base"
)

// Map owns the published state of one copy-on-write tree. All reads and
// writes go through atomic replacement of the current RootRef; there is no
// lock on the read path. Contention is handled by optimistic retry, with
// escalation to the snapshot-embedded exclusive lock after the configured
// attempt limit.
type Map struct {
	root      atomic.Pointer[RootRef]
	writerIDs atomic.Uint64

	// unsavedMemory tracks how much not-yet-flushed page memory the map is
	// holding, so the store can decide when to force a flush. Removal
	// accounting decrements it as unsaved pages are claimed removed.
	unsavedMemory atomic.Int64

	readers  *readerSlots
	versions *freelru.SyncedLRU[int64, *RootRef]

	// appendBuf holds appended entries not yet merged into the tree.
	// Access is serialized by the root update lock; the published
	// occupancy lives on the snapshot as its append counter.
	appendBuf *appendbuf.Buffer

	store   Store
	reclaim Reclaimer
	log     Logger
	opts    Options
}

// Writer identifies a mutator for lock ownership. Goroutines have no usable
// identity, so each mutating actor obtains a token once and passes it to
// the locking transitions; reentrancy is per token.
type Writer struct {
	id uint64
}

// NewMap creates a map published at version 0 with the given root page.
func NewMap(root base.Page, opts ...Option) (*Map, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &Map{
		readers:   newReaderSlots(o.maxReaders),
		appendBuf: appendbuf.New(o.appendThreshold),
		store:     o.store,
		reclaim:   o.reclaimer,
		log:       o.logger,
		opts:      o,
	}
	if o.versionCacheSize > 0 {
		versions, err := freelru.NewSynced[int64, *RootRef](uint32(o.versionCacheSize), hashVersion)
		if err != nil {
			return nil, err
		}
		m.versions = versions
	}
	m.root.Store(newRootRef(root, 0))
	return m, nil
}

// NewWriter returns a fresh writer token.
func (m *Map) NewWriter() *Writer {
	return &Writer{id: m.writerIDs.Add(1)}
}

// Current returns the published snapshot.
func (m *Map) Current() *RootRef {
	return m.root.Load()
}

func (m *Map) compareAndSetRoot(expected, updated *RootRef) bool {
	return m.root.CompareAndSwap(expected, updated)
}

// PublishNewRoot replaces the root page of an unlocked snapshot, folding
// attempts into the attempt counter and threading removed onto the removal
// chain. Returns nil when r is locked or no longer current; the caller must
// re-read and retry.
func (m *Map) PublishNewRoot(r *RootRef, newRoot base.Page, attempts int64, removed *RemovalEntry) *RootRef {
	if r.holdCount != 0 {
		return nil
	}
	updated := r.withRoot(newRoot, attempts, removed)
	if m.compareAndSetRoot(r, updated) {
		return updated
	}
	return nil
}

// TryLock acquires the update lock on r for w, or re-enters it when w
// already holds it. Returns nil when another writer holds the lock or r is
// no longer current.
func (m *Map) TryLock(r *RootRef, w *Writer, attempts int64) *RootRef {
	if r.holdCount != 0 && r.ownerID != w.id {
		return nil
	}
	locked := r.locked(w.id, attempts)
	if m.compareAndSetRoot(r, locked) {
		return locked
	}
	return nil
}

// PublishLockedUpdate publishes a root change while w holds the lock,
// releasing one hold when release is true. The lock serializes writers, so
// no CAS validation is needed; the snapshot is still replaced wholesale so
// lock-free readers observe a consistent view. Calling this without holding
// the lock is a contract breach and panics.
func (m *Map) PublishLockedUpdate(r *RootRef, w *Writer, newRoot base.Page, appendCount int, release bool, removed *RemovalEntry) *RootRef {
	updated := r.withLockedUpdate(w.id, newRoot, appendCount, release, removed)
	m.root.Store(updated)
	return updated
}

// CommitVersion closes the current version at a boundary: it folds the
// previous chain past ancestors with identical root and append state, bumps
// the version, and clears any lock held by w. Committing over another
// writer's lock is a contract breach and panics. Returns nil when r is no
// longer current.
func (m *Map) CommitVersion(r *RootRef, w *Writer, newVersion int64, attempts int64) *RootRef {
	if r.holdCount != 0 && (w == nil || r.ownerID != w.id) {
		panic(fmt.Sprintf("rootchain: version commit over foreign lock on %v", r))
	}
	updated := r.withVersion(newVersion, attempts)
	if m.compareAndSetRoot(r, updated) {
		return updated
	}
	return nil
}

// AdvanceVersion commits the next version, retrying on contention.
func (m *Map) AdvanceVersion(w *Writer) *RootRef {
	for attempts := int64(1); ; attempts++ {
		r := m.Current()
		if next := m.CommitVersion(r, w, r.Version+1, attempts); next != nil {
			return next
		}
	}
}

// UpdateRoot applies fn to the current root and publishes the result,
// retrying on contention. fn may run multiple times and must be pure apart
// from building pages. After the configured attempt limit the update
// escalates to the exclusive lock, which serializes against other writers
// instead of spinning.
func (m *Map) UpdateRoot(w *Writer, fn func(root base.Page) (base.Page, *RemovalEntry)) *RootRef {
	for attempts := int64(1); ; attempts++ {
		r := m.Current()
		if attempts > int64(m.opts.retryLimit) {
			m.log.Warn("root update contention, escalating to exclusive lock",
				"attempts", attempts, "version", r.Version)
			locked := m.lockRoot(w, attempts)
			newRoot, removed := fn(locked.Root)
			return m.PublishLockedUpdate(locked, w, newRoot, locked.AppendCount(), true, removed)
		}
		if r.holdCount == 0 {
			newRoot, removed := fn(r.Root)
			if next := m.PublishNewRoot(r, newRoot, attempts, removed); next != nil {
				return next
			}
		}
	}
}

// lockRoot spins until the update lock is acquired.
func (m *Map) lockRoot(w *Writer, attempts int64) *RootRef {
	for {
		r := m.Current()
		if locked := m.TryLock(r, w, attempts); locked != nil {
			return locked
		}
		attempts++
		runtime.Gosched()
	}
}

// ComputeRemovalLedger resolves the pages along path that became removable
// after an update, with safeVersion bounding the chunks eligible for
// reclamation. The footprint of unsaved pages claimed removed is deducted
// from the map's unsaved-memory counter. Returns nil when nothing is
// removable.
func (m *Map) ComputeRemovalLedger(path *CursorPos, safeVersion int64) *RemovalEntry {
	if path == nil {
		return nil
	}
	var tally int64
	entry := path.shrinkToLedger(m.store, &tally, safeVersion)
	m.unsavedMemory.Add(tally)
	return entry
}

// DrainRemovalLedger detaches the pending removal chain from the current
// snapshot and returns every persisted position it captured, handing each
// to the configured reclaimer. Entries appended concurrently go onto a
// fresh chain, never lost, just deferred to the next drain. Draining an
// empty chain returns nothing.
func (m *Map) DrainRemovalLedger() []base.Pos {
	head := m.Current().detachRemovals()
	var positions []base.Pos
	for n := head; n != nil; n = n.next {
		n.data.Load().ForEach(func(pos base.Pos) {
			positions = append(positions, pos)
		})
	}
	if m.reclaim != nil {
		for _, pos := range positions {
			m.reclaim.Record(pos)
		}
	}
	if len(positions) > 0 {
		m.log.Info("drained removal ledger", "positions", len(positions))
	}
	return positions
}

// CompactRemovalLedger rewrites lazy path entries on the pending chain into
// flat position arrays once the flush that raced them has completed. Called
// by the store after a flush, before the next drain.
func (m *Map) CompactRemovalLedger(safeVersion int64) {
	for n := m.Current().removal.Load(); n != nil; n = n.next {
		entry := n.data.Load()
		if !entry.IsLazy() {
			continue
		}
		var tally int64
		compacted := entry.path.shrinkToLedger(m.store, &tally, safeVersion)
		m.unsavedMemory.Add(tally)
		if compacted == nil {
			n.data.Store(NewRemovalPositions(nil))
		} else if !compacted.IsLazy() {
			n.data.Store(compacted)
		}
	}
}

// Append buffers an entry against the current root without rewriting it;
// the entry is counted in the snapshot's total through the append counter.
// Returns the published snapshot and shouldMerge=true once the buffer is
// worth merging. Fails with ErrAppendBufferFull when the occupancy counter
// is exhausted; the caller must MergeAppends first.
func (m *Map) Append(w *Writer, entry []byte) (*RootRef, bool, error) {
	locked := m.lockRoot(w, 1)
	if m.appendBuf.Full() {
		m.PublishLockedUpdate(locked, w, locked.Root, locked.AppendCount(), true, nil)
		return nil, true, ErrAppendBufferFull
	}
	count, shouldMerge := m.appendBuf.Append(entry)
	r := m.PublishLockedUpdate(locked, w, locked.Root, count, true, nil)
	return r, shouldMerge, nil
}

// MergeAppends drains the append buffer and applies merge to fold the
// buffered entries into a new root, publishing it with a zeroed append
// counter. Required before a version boundary.
func (m *Map) MergeAppends(w *Writer, merge func(root base.Page, entries [][]byte) (base.Page, *RemovalEntry)) *RootRef {
	locked := m.lockRoot(w, 1)
	entries := m.appendBuf.Drain()
	newRoot, removed := merge(locked.Root, entries)
	return m.PublishLockedUpdate(locked, w, newRoot, 0, true, removed)
}

// BeginRead registers a reader pinned to the current snapshot. The reader
// must be released with EndRead; while registered it holds the version
// chain at its version.
func (m *Map) BeginRead() (*Reader, error) {
	rd := &Reader{ref: m.Current()}
	slot, err := m.readers.register(rd)
	if err != nil {
		return nil, err
	}
	rd.slot = slot
	return rd, nil
}

// EndRead releases a reader registered by BeginRead.
func (m *Map) EndRead(rd *Reader) {
	m.readers.unregister(rd.slot)
}

// AddUnsavedMemory adjusts the not-yet-flushed memory estimate; the layer
// above calls it as it creates or flushes pages.
func (m *Map) AddUnsavedMemory(delta int64) {
	m.unsavedMemory.Add(delta)
}

// UnsavedMemory returns the current not-yet-flushed memory estimate.
func (m *Map) UnsavedMemory() int64 {
	return m.unsavedMemory.Load()
}
