package rootchain

import (
	"fmt"

	"rootchain/internal/base"
)

// CursorPos is one frame of a bottom-up path through the tree, built while
// descending to a target key. The chain runs strictly leaf to root, one
// frame per level; after construction it is only ever pruned or degraded,
// never extended or reordered. The same chain serves cursor iteration,
// unsaved-memory accounting, and discovery of pages a finished update made
// unreachable.
type CursorPos struct {
	// Page is the page at this level, or nil once the frame has been
	// degraded to its saved position.
	Page base.Page

	// Index is the key index used to descend from this page, or the index
	// of the target key at the leaf. At the leaf it is negative when the
	// key is absent.
	Index int

	// Parent is the frame one level up, or nil at the root.
	Parent *CursorPos

	// savedPos is the compact recoverable encoding of a degraded frame:
	// the page's position token with the removed marker set. Valid only
	// while Page is nil.
	savedPos base.Pos
}

// NewCursorPos pushes a frame onto a path. Pass the current head as parent
// while descending; the final call at the leaf yields the head of the
// leaf-to-root chain.
func NewCursorPos(page base.Page, index int, parent *CursorPos) *CursorPos {
	return &CursorPos{Page: page, Index: index, Parent: parent}
}

// BuildPath assembles a path from a root-to-leaf descent. pages and indices
// are given top-down and must have equal length; the returned head is the
// leaf frame.
func BuildPath(pages []base.Page, indices []int) *CursorPos {
	if len(pages) != len(indices) {
		panic(fmt.Sprintf("rootchain: descent with %d pages but %d indices", len(pages), len(indices)))
	}
	var head *CursorPos
	for i, page := range pages {
		head = NewCursorPos(page, indices[i], head)
	}
	return head
}

// Depth returns the number of frames in the chain.
func (c *CursorPos) Depth() int {
	n := 0
	for head := c; head != nil; head = head.Parent {
		n++
	}
	return n
}

// pagePos returns the position token for this frame, whether it still holds
// the page or has been degraded.
func (c *CursorPos) pagePos() base.Pos {
	if c.Page != nil {
		return c.Page.Pos()
	}
	return c.savedPos
}

// VisitPages calls visit for every reachable page on the path, leaf to
// root. Leaves that hold no entries are skipped; internal pages are visited
// even when empty, because the visit drives persisted-position bookkeeping
// for compaction. Degraded frames synthesize their token from the stored
// encoding and pass a nil page.
func (c *CursorPos) VisitPages(visit func(page base.Page, pos base.Pos)) {
	for head := c; head != nil; head = head.Parent {
		if head.Page == nil {
			visit(nil, head.savedPos)
			continue
		}
		if page := head.Page; page.TotalCount() > 0 || !page.IsLeaf() {
			visit(page, page.Pos().AsRemoved())
		}
	}
}

// shrinkToLedger resolves the path into a removal-ledger entry: pages
// already saved in a chunk at or below safeVersion become removable
// positions, while still-unsaved non-empty pages are claimed removed in
// place and their footprint charged against the unsaved-memory tally.
//
// The two passes race with concurrent flushing: a page unsaved in the first
// pass may be saved by the second, making more frames qualify than were
// counted. When that happens the path itself is returned as a lazy entry,
// deferring the decision to drain time. The race is only legitimate while
// the store is mid-flush for safeVersion, which store asserts.
//
// Returns nil when nothing on the path is removable.
func (c *CursorPos) shrinkToLedger(store Store, unsavedMemory *int64, safeVersion int64) *RemovalEntry {
	count := 0
	unsaved := int64(0)
	for head := c; head != nil; head = head.Parent {
		pos := head.pagePos()
		if pos.IsSaved() && int64(pos.ChunkID()) <= safeVersion {
			count++
		} else if page := head.Page; page != nil && page.TotalCount() > 0 {
			if page.MarkRemoved() {
				unsaved += int64(page.Memory())
			} else if p := page.Pos(); p.IsSaved() && int64(p.ChunkID()) <= safeVersion {
				count++
			}
		}
	}
	*unsavedMemory -= unsaved
	if count == 0 {
		return nil
	}
	positions := make([]base.Pos, count)
	filled := 0
	for head := c; head != nil; head = head.Parent {
		pos := head.pagePos()
		if pos.IsSaved() && int64(pos.ChunkID()) <= safeVersion {
			if filled == count {
				// More frames qualify than the first pass saw; a
				// concurrent flush is saving this path's pages.
				if store != nil && !store.FlushInProgress(safeVersion) {
					panic(fmt.Sprintf("rootchain: removal count underflow without a flush for version %d", safeVersion))
				}
				return NewRemovalPath(c)
			}
			positions[filled] = pos.AsRemoved()
			filled++
		}
	}
	return NewRemovalPositions(positions)
}

// DropUnsaved strips leading frames that hold never-saved pages, then
// excises any remaining never-saved interior frames by relinking parents.
// The footprint of every dropped page is charged against the unsaved-memory
// tally. Returns the new head, which holds the first saved page, or nil if
// the whole path was unsaved.
func (c *CursorPos) DropUnsaved(unsavedMemory *int64) *CursorPos {
	unsaved := int64(0)
	head := c
	for head != nil && head.Page != nil && !head.Page.Pos().IsSaved() {
		unsaved += int64(head.Page.Memory())
		head = head.Parent
	}
	for f := head; f != nil; f = f.Parent {
		for {
			p := f.Parent
			if p == nil || p.Page == nil || p.Page.Pos().IsSaved() {
				break
			}
			unsaved += int64(p.Page.Memory())
			f.Parent = p.Parent
		}
	}
	*unsavedMemory -= unsaved
	return head
}

// DegradeSaved converts every frame saved in a chunk at or below
// safeVersion into a position-only frame, releasing the page handle, and
// charges frames still unsaved against the unsaved-memory tally.
func (c *CursorPos) DegradeSaved(unsavedMemory *int64, safeVersion int64) {
	unsaved := int64(0)
	for head := c; head != nil; head = head.Parent {
		page := head.Page
		if page == nil {
			continue
		}
		pos := page.Pos()
		if pos.IsSaved() && int64(pos.ChunkID()) <= safeVersion {
			head.savedPos = pos.AsRemoved()
			head.Page = nil
		} else if !pos.IsSaved() {
			unsaved += int64(page.Memory())
		}
	}
	*unsavedMemory -= unsaved
}

// CollectRemoved enumerates the position of every frame saved in a chunk at
// or below safeVersion, leaf to root, charging the rest against the
// unsaved-memory tally. Returns nil when nothing qualifies.
func (c *CursorPos) CollectRemoved(unsavedMemory *int64, safeVersion int64) []base.Pos {
	var positions []base.Pos
	unsaved := int64(0)
	for head := c; head != nil; head = head.Parent {
		pos := head.pagePos()
		if pos.IsSaved() && int64(pos.ChunkID()) <= safeVersion {
			positions = append(positions, pos.AsRemoved())
		} else if head.Page != nil && !pos.IsSaved() {
			unsaved += int64(head.Page.Memory())
		}
	}
	*unsavedMemory -= unsaved
	return positions
}
