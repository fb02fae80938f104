package rootchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rootchain/internal/base"
)

func TestChunkAccountantRecord(t *testing.T) {
	t.Parallel()

	acct := NewChunkAccountant()

	acct.Record(base.NewPos(1, 0, 1, true).AsRemoved())
	acct.Record(base.NewPos(1, 8, 1, true).AsRemoved())
	acct.Record(base.NewPos(1, 8, 1, true).AsRemoved()) // duplicate offset
	acct.Record(base.NewPos(3, 16, 2, false).AsRemoved())

	// Unsaved tokens carry no location and are dropped
	acct.Record(0)
	acct.Record(base.RemovedPos)

	assert.Equal(t, []uint32{1, 3}, acct.Chunks())
	assert.Equal(t, uint64(2), acct.FreedIn(1))
	assert.Equal(t, uint64(1), acct.FreedIn(3))
	assert.Equal(t, uint64(0), acct.FreedIn(9))
}

func TestChunkAccountantContains(t *testing.T) {
	t.Parallel()

	acct := NewChunkAccountant()
	pos := base.NewPos(2, 64, 1, true).AsRemoved()

	assert.False(t, acct.Contains(pos))
	acct.RecordAll([]base.Pos{pos})
	assert.True(t, acct.Contains(pos))
	assert.False(t, acct.Contains(base.NewPos(2, 128, 1, true)))
}

func TestChunkAccountantRelease(t *testing.T) {
	t.Parallel()

	acct := NewChunkAccountant()
	acct.Record(base.NewPos(5, 0, 1, true).AsRemoved())
	acct.Record(base.NewPos(5, 4, 1, true).AsRemoved())

	bm := acct.Release(5)
	require.NotNil(t, bm)
	assert.Equal(t, uint64(2), bm.GetCardinality())
	assert.True(t, bm.Contains(4))

	// Released chunks start over
	assert.Empty(t, acct.Chunks())
	assert.Nil(t, acct.Release(5))
}
