package rootchain

import (
	"sync/atomic"

	"rootchain/internal/base"
)

// RemovalEntry records the pages one update made unreachable, queued on the
// snapshot's removal chain until reclamation drains it. The representation
// is a closed two-case union: a flat slice of position tokens resolved
// eagerly, or a path chain kept whole when resolution raced a flush and
// must be redone lazily at visit time.
type RemovalEntry struct {
	positions []base.Pos
	path      *CursorPos
}

func NewRemovalPositions(positions []base.Pos) *RemovalEntry {
	return &RemovalEntry{positions: positions}
}

func NewRemovalPath(path *CursorPos) *RemovalEntry {
	return &RemovalEntry{path: path}
}

// IsLazy reports whether the entry defers resolution to visit time.
func (e *RemovalEntry) IsLazy() bool {
	return e != nil && e.path != nil
}

// ForEach yields every persisted position the entry captures, exactly once.
func (e *RemovalEntry) ForEach(visit func(pos base.Pos)) {
	if e == nil {
		return
	}
	if e.path != nil {
		e.path.VisitPages(func(_ base.Page, pos base.Pos) {
			if pos.IsSaved() {
				visit(pos)
			}
		})
		return
	}
	for _, pos := range e.positions {
		visit(pos)
	}
}

// removalNode is one link of a snapshot's pending-removal chain, LIFO. The
// data slot is rewritten in place when a lazy entry is compacted after the
// flush that raced it completes; next is fixed at construction.
type removalNode struct {
	data atomic.Pointer[RemovalEntry]
	next *removalNode
}

func newRemovalNode(e *RemovalEntry, next *removalNode) *removalNode {
	n := &removalNode{next: next}
	n.data.Store(e)
	return n
}
