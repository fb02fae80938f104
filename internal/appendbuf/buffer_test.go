package appendbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndDrain(t *testing.T) {
	t.Parallel()

	b := New(100)

	count, merge := b.Append([]byte("alpha"))
	assert.Equal(t, 1, count)
	assert.False(t, merge)

	count, merge = b.Append([]byte("beta"))
	assert.Equal(t, 2, count)
	assert.False(t, merge)
	assert.Equal(t, 9, b.Size())

	entries := b.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("alpha"), entries[0])
	assert.Equal(t, []byte("beta"), entries[1])
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Size())
}

func TestBufferThreshold(t *testing.T) {
	t.Parallel()

	b := New(8)
	_, merge := b.Append([]byte("1234"))
	assert.False(t, merge)
	_, merge = b.Append([]byte("5678"))
	assert.True(t, merge, "threshold reached")
}

func TestBufferDefensiveCopy(t *testing.T) {
	t.Parallel()

	b := New(100)
	entry := []byte("mutable")
	b.Append(entry)
	entry[0] = 'X'

	assert.Equal(t, []byte("mutable"), b.Drain()[0])
}

func TestBufferFull(t *testing.T) {
	t.Parallel()

	b := New(1 << 20)
	for i := 0; i < MaxEntries; i++ {
		b.Append([]byte{byte(i)})
	}
	require.True(t, b.Full())
	require.Panics(t, func() {
		b.Append([]byte("overflow"))
	})
}
