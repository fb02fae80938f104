package base

import (
	"sync/atomic"
)

// Page is the view of a B-tree node the root-chain core needs. Pages are
// shared-read once reachable from a published snapshot; the only state
// transition allowed after that is claiming removal, and MarkRemoved must be
// safe under concurrent attempts (first caller wins).
type Page interface {
	// TotalCount returns the number of entries in the subtree rooted here.
	TotalCount() uint64
	// IsLeaf reports whether this is a leaf page.
	IsLeaf() bool
	// Pos returns the page's position token, or zero while unsaved.
	Pos() Pos
	// Memory returns the in-memory footprint estimate in bytes.
	Memory() uint32
	// MarkRemoved claims removal of a never-saved page. It fails if the
	// page was saved (or removed) concurrently.
	MarkRemoved() bool
}

// Node is an in-memory page. Entry count, leaf flag, and footprint are fixed
// at construction; the only mutable state is the position word, which starts
// at zero and is claimed exactly once, by either the save path or the remove
// path. The losing CAS tells its caller the page went the other way.
type Node struct {
	pos    atomic.Uint64
	count  uint64
	memory uint32
	leaf   bool
}

// NewLeaf creates an unsaved leaf node.
func NewLeaf(count uint64, memory uint32) *Node {
	return &Node{count: count, memory: memory, leaf: true}
}

// NewBranch creates an unsaved internal node.
func NewBranch(count uint64, memory uint32) *Node {
	return &Node{count: count, memory: memory}
}

func (n *Node) TotalCount() uint64 { return n.count }

func (n *Node) IsLeaf() bool { return n.leaf }

func (n *Node) Memory() uint32 { return n.memory }

func (n *Node) Pos() Pos { return Pos(n.pos.Load()) }

// MarkSaved records the on-disk position after a flush. It fails if the
// page was already saved or its removal was claimed first.
func (n *Node) MarkSaved(p Pos) bool {
	return n.pos.CompareAndSwap(0, uint64(p))
}

// MarkRemoved claims removal of the node before it was ever saved. It fails
// if a concurrent flush saved the node first, in which case the caller must
// account for it by position instead.
func (n *Node) MarkRemoved() bool {
	return n.pos.CompareAndSwap(0, uint64(RemovedPos))
}
