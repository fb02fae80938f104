package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosFields(t *testing.T) {
	t.Parallel()

	pos := NewPos(42, 123456, 7, true)
	assert.Equal(t, uint32(42), pos.ChunkID())
	assert.Equal(t, uint32(123456), pos.Offset())
	assert.Equal(t, uint8(7), pos.LengthCode())
	assert.True(t, pos.IsLeaf())
	assert.True(t, pos.IsSaved())
	assert.False(t, pos.IsRemoved())

	branch := NewPos(1, 0, 0, false)
	assert.False(t, branch.IsLeaf())
	assert.True(t, branch.IsSaved())
}

func TestPosRemovedMarker(t *testing.T) {
	t.Parallel()

	pos := NewPos(3, 64, 2, false)
	removed := pos.AsRemoved()
	assert.True(t, removed.IsRemoved())
	// The marker does not change where the page lives
	assert.True(t, removed.IsSaved())
	assert.Equal(t, pos.ChunkID(), removed.ChunkID())
	assert.Equal(t, pos.Offset(), removed.Offset())

	// Marking twice is a no-op
	assert.Equal(t, removed, removed.AsRemoved())
}

func TestPosZeroAndBareMarker(t *testing.T) {
	t.Parallel()

	var unsaved Pos
	assert.False(t, unsaved.IsSaved())

	// A page removed before it was ever written carries only the marker;
	// that is still not a location
	assert.False(t, RemovedPos.IsSaved())
	assert.True(t, RemovedPos.IsRemoved())
	assert.Equal(t, uint32(0), RemovedPos.ChunkID())
}

func TestNodeSaveRemoveRace(t *testing.T) {
	t.Parallel()

	// Save wins: removal must fail and the caller falls back to
	// position-based accounting
	n := NewLeaf(10, 256)
	require.True(t, n.MarkSaved(NewPos(2, 0, 1, true)))
	assert.False(t, n.MarkRemoved())
	assert.True(t, n.Pos().IsSaved())
	assert.Equal(t, uint32(2), n.Pos().ChunkID())

	// Removal wins: a later flush must not claim the node
	n = NewLeaf(10, 256)
	require.True(t, n.MarkRemoved())
	assert.False(t, n.MarkSaved(NewPos(2, 0, 1, true)))
	assert.False(t, n.Pos().IsSaved())
	assert.True(t, n.Pos().IsRemoved())
}

func TestNodeAccessors(t *testing.T) {
	t.Parallel()

	leaf := NewLeaf(5, 40)
	assert.True(t, leaf.IsLeaf())
	assert.Equal(t, uint64(5), leaf.TotalCount())
	assert.Equal(t, uint32(40), leaf.Memory())
	assert.False(t, leaf.Pos().IsSaved())

	branch := NewBranch(100, 4096)
	assert.False(t, branch.IsLeaf())
}
