package rootchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rootchain/internal/base"
)

func TestRemovalEntryForEach(t *testing.T) {
	t.Parallel()

	positions := []base.Pos{
		base.NewPos(1, 0, 1, true).AsRemoved(),
		base.NewPos(2, 8, 1, false).AsRemoved(),
	}
	entry := NewRemovalPositions(positions)

	var got []base.Pos
	entry.ForEach(func(pos base.Pos) { got = append(got, pos) })
	assert.Equal(t, positions, got)

	// Nil entries visit nothing
	var nilEntry *RemovalEntry
	nilEntry.ForEach(func(base.Pos) { t.Error("unexpected visit") })
}

func TestRemovalEntryLazyFiltersUnsaved(t *testing.T) {
	t.Parallel()

	saved := markSaved(t, base.NewBranch(1, 64), 2, 4)
	unsaved := base.NewLeaf(1, 16)
	path := BuildPath([]base.Page{saved, unsaved}, []int{0, 0})
	entry := NewRemovalPath(path)
	require.True(t, entry.IsLazy())

	var got []base.Pos
	entry.ForEach(func(pos base.Pos) { got = append(got, pos) })
	// Only the persisted page yields a position
	assert.Equal(t, []base.Pos{saved.Pos().AsRemoved()}, got)
}

func TestDrainEmptyLedger(t *testing.T) {
	t.Parallel()

	m := newTestMap(t)
	assert.Empty(t, m.DrainRemovalLedger())
}

func TestDrainIdempotent(t *testing.T) {
	t.Parallel()

	m := newTestMap(t)

	first := base.NewPos(1, 0, 1, true).AsRemoved()
	second := base.NewPos(2, 4, 1, false).AsRemoved()
	require.NotNil(t, m.PublishNewRoot(m.Current(), base.NewLeaf(1, 10), 1,
		NewRemovalPositions([]base.Pos{first})))
	require.NotNil(t, m.PublishNewRoot(m.Current(), base.NewLeaf(2, 10), 1,
		NewRemovalPositions([]base.Pos{second})))

	// Chain is LIFO: the most recent entry drains first
	assert.Equal(t, []base.Pos{second, first}, m.DrainRemovalLedger())
	assert.Empty(t, m.DrainRemovalLedger(), "second drain without appends yields nothing")
}

func TestDrainDefersConcurrentAppends(t *testing.T) {
	t.Parallel()

	m := newTestMap(t)

	early := base.NewPos(1, 0, 1, true).AsRemoved()
	late := base.NewPos(3, 0, 1, true).AsRemoved()

	require.NotNil(t, m.PublishNewRoot(m.Current(), base.NewLeaf(1, 10), 1,
		NewRemovalPositions([]base.Pos{early})))
	assert.Equal(t, []base.Pos{early}, m.DrainRemovalLedger())

	// An entry appended after the detach lands on a fresh chain
	require.NotNil(t, m.PublishNewRoot(m.Current(), base.NewLeaf(2, 10), 1,
		NewRemovalPositions([]base.Pos{late})))
	assert.Equal(t, []base.Pos{late}, m.DrainRemovalLedger())
}

func TestDrainRecordsToReclaimer(t *testing.T) {
	t.Parallel()

	acct := NewChunkAccountant()
	m := newTestMap(t, WithReclaimer(acct))

	posA := base.NewPos(1, 0, 1, true).AsRemoved()
	posB := base.NewPos(1, 8, 1, true).AsRemoved()
	posC := base.NewPos(4, 0, 1, false).AsRemoved()
	require.NotNil(t, m.PublishNewRoot(m.Current(), base.NewLeaf(1, 10), 1,
		NewRemovalPositions([]base.Pos{posA, posB, posC})))

	m.DrainRemovalLedger()

	assert.Equal(t, []uint32{1, 4}, acct.Chunks())
	assert.Equal(t, uint64(2), acct.FreedIn(1))
	assert.True(t, acct.Contains(posC))
}

func TestCompactRemovalLedger(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	store.flushing.Store(true)
	m := newTestMap(t, WithStore(store))

	rp := &racyPage{unsavedReads: 2, pos: base.NewPos(1, 5, 1, true), count: 1, memory: 16}
	anchor := markSaved(t, base.NewBranch(1, 64), 1, 9)
	path := BuildPath([]base.Page{anchor, rp}, []int{0, 0})

	entry := m.ComputeRemovalLedger(path, 5)
	require.True(t, entry.IsLazy())
	require.NotNil(t, m.PublishNewRoot(m.Current(), base.NewLeaf(1, 10), 1, entry))

	// Flush finished; the lazy entry can now be resolved in place
	store.flushing.Store(false)
	m.CompactRemovalLedger(5)

	node := m.Current().removal.Load()
	require.NotNil(t, node)
	assert.False(t, node.data.Load().IsLazy())

	positions := m.DrainRemovalLedger()
	assert.Equal(t, []base.Pos{rp.pos.AsRemoved(), anchor.Pos().AsRemoved()}, positions)
}
