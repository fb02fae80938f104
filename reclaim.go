package rootchain

import (
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"rootchain/internal/base"
)

// Store is the flush/compaction collaborator below this core.
type Store interface {
	// FlushInProgress reports whether a flush that may still be saving
	// pages for the given version is running. Consulted only to validate
	// the removal-count race in shrinkToLedger.
	FlushInProgress(version int64) bool
}

// Reclaimer receives the positions of pages that are safe to reclaim once
// their containing chunk is no longer referenced.
type Reclaimer interface {
	Record(pos base.Pos)
}

// ChunkAccountant aggregates reclaimed page positions by storage chunk,
// keeping a bitmap of freed offsets per chunk. The compaction layer reads
// the per-chunk occupancy to decide which chunks are worth rewriting.
type ChunkAccountant struct {
	mu    sync.Mutex
	freed map[uint32]*roaring.Bitmap // chunk id -> offsets of freed pages
}

// NewChunkAccountant creates an empty accountant.
func NewChunkAccountant() *ChunkAccountant {
	return &ChunkAccountant{freed: make(map[uint32]*roaring.Bitmap)}
}

// Record notes a freed page position. Unsaved tokens are ignored.
func (c *ChunkAccountant) Record(pos base.Pos) {
	if !pos.IsSaved() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bm := c.freed[pos.ChunkID()]
	if bm == nil {
		bm = roaring.New()
		c.freed[pos.ChunkID()] = bm
	}
	bm.Add(pos.Offset())
}

// RecordAll notes a batch of freed positions.
func (c *ChunkAccountant) RecordAll(positions []base.Pos) {
	for _, pos := range positions {
		c.Record(pos)
	}
}

// Contains reports whether the position has been recorded as freed.
func (c *ChunkAccountant) Contains(pos base.Pos) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bm := c.freed[pos.ChunkID()]
	return bm != nil && bm.Contains(pos.Offset())
}

// Chunks returns the ids of all chunks with freed pages, ascending.
func (c *ChunkAccountant) Chunks() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uint32, 0, len(c.freed))
	for id := range c.freed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// FreedIn returns the number of distinct freed pages in a chunk.
func (c *ChunkAccountant) FreedIn(chunk uint32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	bm := c.freed[chunk]
	if bm == nil {
		return 0
	}
	return bm.GetCardinality()
}

// Release detaches and returns the freed-offset set for a chunk, typically
// when the compactor rewrites it. Returns nil if the chunk has no freed
// pages.
func (c *ChunkAccountant) Release(chunk uint32) *roaring.Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()

	bm := c.freed[chunk]
	delete(c.freed, chunk)
	return bm
}
