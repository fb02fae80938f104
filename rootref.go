package rootchain

import (
	"fmt"
	"sync/atomic"

	"rootchain/internal/base"
)

// RootRef is the immutable published state of a map as a whole: the root
// page, the version being written, and the bookkeeping needed to advance
// both without blocking readers. A single structure lets the whole map state
// change with one atomic swap; readers that capture a RootRef see a fully
// consistent view forever after.
//
// Two fields are deliberately outside the immutability contract: previous,
// which pruning may null (and only null), and the removal chain head, which
// is appended to and detached with atomic pointer operations. A stale read
// of either only delays work, never corrupts state.
type RootRef struct {
	// Root is the current root page.
	Root base.Page

	// Version is the version used for writing.
	Version int64

	// UpdateCounter counts successful root swaps.
	UpdateCounter int64

	// UpdateAttemptCounter additionally folds in lost CAS attempts, as a
	// contention signal for callers tuning their retry policy.
	UpdateAttemptCounter int64

	holdCount   uint8
	ownerID     uint64
	appendCount uint8

	// previous is the last root of the previous version that had any data
	// changes. Pruning nulls it once no reader needs that version; it is
	// never reassigned to another snapshot, so a concurrent reader walking
	// the chain sees either the old tail or none.
	previous atomic.Pointer[RootRef]

	// removal is the head of the pending removal-ledger chain.
	removal atomic.Pointer[removalNode]
}

// newRootRef creates the initial snapshot for a map.
func newRootRef(root base.Page, version int64) *RootRef {
	return &RootRef{
		Root:                 root,
		Version:              version,
		UpdateCounter:        1,
		UpdateAttemptCounter: 1,
	}
}

// withRoot derives the snapshot produced by an unlocked root swap.
func (r *RootRef) withRoot(root base.Page, attempts int64, removed *RemovalEntry) *RootRef {
	next := &RootRef{
		Root:                 root,
		Version:              r.Version,
		UpdateCounter:        r.UpdateCounter + 1,
		UpdateAttemptCounter: r.UpdateAttemptCounter + attempts,
		appendCount:          r.appendCount,
	}
	next.previous.Store(r.previous.Load())
	next.removal.Store(r.pushRemoval(removed))
	return next
}

// locked derives the snapshot produced by a lock acquisition, initial or
// reentrant.
func (r *RootRef) locked(owner uint64, attempts int64) *RootRef {
	if r.holdCount != 0 && r.ownerID != owner {
		panic(fmt.Sprintf("rootchain: lock attempt by writer %d on %v", owner, r))
	}
	next := &RootRef{
		Root:                 r.Root,
		Version:              r.Version,
		UpdateCounter:        r.UpdateCounter + 1,
		UpdateAttemptCounter: r.UpdateAttemptCounter + attempts,
		holdCount:            r.holdCount + 1,
		ownerID:              owner,
		appendCount:          r.appendCount,
	}
	next.previous.Store(r.previous.Load())
	next.removal.Store(r.removal.Load())
	return next
}

// withLockedUpdate derives the snapshot publishing an intermediate or final
// root change while the lock is held. When release is true the hold count
// drops by one, and the owner is cleared once it reaches zero.
func (r *RootRef) withLockedUpdate(owner uint64, root base.Page, appendCount int, release bool, removed *RemovalEntry) *RootRef {
	if r.holdCount == 0 || r.ownerID != owner {
		panic(fmt.Sprintf("rootchain: locked update by writer %d on %v", owner, r))
	}
	hold := r.holdCount
	if release {
		hold--
	}
	next := &RootRef{
		Root:                 root,
		Version:              r.Version,
		UpdateCounter:        r.UpdateCounter,
		UpdateAttemptCounter: r.UpdateAttemptCounter,
		holdCount:            hold,
		appendCount:          uint8(appendCount),
	}
	if hold > 0 {
		next.ownerID = owner
	}
	next.previous.Store(r.previous.Load())
	next.removal.Store(r.pushRemoval(removed))
	return next
}

// withVersion derives the snapshot that opens a new version. The chain
// skips ancestors that share this snapshot's root and append state, so each
// link of the previous chain marks an actual data change.
func (r *RootRef) withVersion(version int64, attempts int64) *RootRef {
	if version <= r.Version {
		panic(fmt.Sprintf("rootchain: version must advance, %d -> %d", r.Version, version))
	}
	if r.appendCount != 0 {
		panic(fmt.Sprintf("rootchain: version boundary with non-empty append buffer on %v", r))
	}
	ancestor := r
	for {
		prev := ancestor.previous.Load()
		if prev == nil || prev.Root != r.Root || prev.appendCount != r.appendCount {
			break
		}
		ancestor = prev
	}
	next := &RootRef{
		Root:                 r.Root,
		Version:              version,
		UpdateCounter:        ancestor.UpdateCounter + 1,
		UpdateAttemptCounter: ancestor.UpdateAttemptCounter + attempts,
	}
	next.previous.Store(ancestor)
	return next
}

// pushRemoval returns the removal chain head for a derived snapshot,
// prepending a node when the update recorded removals.
func (r *RootRef) pushRemoval(removed *RemovalEntry) *removalNode {
	head := r.removal.Load()
	if removed == nil {
		return head
	}
	return newRemovalNode(removed, head)
}

// pruneOlderThan nulls the previous link of every reachable snapshot whose
// version is below oldest. The first such snapshot stays reachable, because
// the last root of the previous version is also the first root of the next
// one; only its tail is cut.
func (r *RootRef) pruneOlderThan(oldest int64) {
	for ref := r; ref != nil; ref = ref.previous.Load() {
		if ref.Version < oldest {
			ref.previous.Store(nil)
		}
	}
}

// detachRemovals atomically takes ownership of the pending removal chain.
// Entries appended after the swap land on a fresh chain, deferred to the
// next drain.
func (r *RootRef) detachRemovals() *removalNode {
	return r.removal.Swap(nil)
}

// Previous returns the preceding snapshot in the version chain, or nil if
// the tail has been pruned.
func (r *RootRef) Previous() *RootRef {
	return r.previous.Load()
}

// IsLocked reports whether the update lock is held.
func (r *RootRef) IsLocked() bool {
	return r.holdCount != 0
}

// HoldCount returns the reentrant hold count of the update lock.
func (r *RootRef) HoldCount() int {
	return int(r.holdCount)
}

// AppendCount returns the number of buffered not-yet-merged appended
// entries.
func (r *RootRef) AppendCount() int {
	return int(r.appendCount)
}

// TotalCount returns the entry count of the snapshot, including buffered
// appends.
func (r *RootRef) TotalCount() uint64 {
	return r.Root.TotalCount() + uint64(r.appendCount)
}

// CommittedVersion returns the version this snapshot's data belongs to.
// A snapshot whose root and append state match its predecessor carries no
// changes of its own, so its data is still the predecessor's version.
func (r *RootRef) CommittedVersion() int64 {
	prev := r.previous.Load()
	if prev == nil || prev.Root != r.Root || prev.appendCount != r.appendCount {
		return r.Version
	}
	return prev.Version
}

func (r *RootRef) String() string {
	return fmt.Sprintf("RootRef{%p,v%d,%d:%d,+%d}",
		r.Root, r.Version, r.ownerID, r.holdCount, r.appendCount)
}
