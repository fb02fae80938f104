// Package appendbuf buffers appended entries until the owner merges them
// into the tree. Buffered entries are counted in the map's total through
// the root snapshot's occupancy counter, so an append does not force a root
// rewrite.
package appendbuf

// MaxEntries is the capacity of the buffer, bounded by what the occupancy
// counter can represent.
const MaxEntries = 255

// Buffer manages batched append operations. Not safe for concurrent use;
// the owner serializes access through the root update lock.
type Buffer struct {
	entries   [][]byte
	size      int
	threshold int
}

// New creates an append buffer with the given flush threshold (in bytes).
func New(threshold int) *Buffer {
	return &Buffer{threshold: threshold}
}

// Append buffers one entry and returns the new occupancy along with
// shouldMerge=true once the buffered bytes pass the threshold. Appending to
// a full buffer is a contract breach; callers check Full first.
func (b *Buffer) Append(entry []byte) (count int, shouldMerge bool) {
	if b.Full() {
		panic("appendbuf: append to full buffer")
	}
	b.entries = append(b.entries, append([]byte(nil), entry...)) // Defensive copy
	b.size += len(entry)
	return len(b.entries), b.size >= b.threshold
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Size returns the buffered bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Full reports whether the occupancy counter can take another entry.
func (b *Buffer) Full() bool {
	return len(b.entries) >= MaxEntries
}

// Drain returns all buffered entries in append order and empties the
// buffer.
func (b *Buffer) Drain() [][]byte {
	entries := b.entries
	b.entries = nil
	b.size = 0
	return entries
}
