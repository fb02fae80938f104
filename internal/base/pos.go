package base

// Pos is the packed on-disk position of a saved page. The zero value means
// the page has never been written. Bit layout, low to high:
//
//	bit  0      removed marker
//	bit  1      leaf flag
//	bits 2-7    length code (power-of-two size class)
//	bits 8-39   offset within the chunk
//	bits 40-63  chunk id
//
// Chunk ids start at 1, so a token with the removed marker as its only set
// bit still reads as "not saved". The field widths are a storage-layer
// concern; the rest of the engine only extracts the chunk id and the saved
// predicate.
type Pos uint64

const (
	posRemovedBit = 1 << 0
	posLeafBit    = 1 << 1

	posLengthShift = 2
	posLengthBits  = 6
	posOffsetShift = 8
	posOffsetBits  = 32
	posChunkShift  = 40

	// MaxLengthCode is the largest encodable size class.
	MaxLengthCode = 1<<posLengthBits - 1

	// MaxChunkID is the largest encodable chunk id.
	MaxChunkID = 1<<(64-posChunkShift) - 1
)

// NewPos packs a chunk id, an offset within the chunk, a length code, and
// the leaf flag into a position token.
func NewPos(chunkID uint32, offset uint32, lengthCode uint8, leaf bool) Pos {
	p := Pos(chunkID)<<posChunkShift |
		Pos(offset)<<posOffsetShift |
		Pos(lengthCode&MaxLengthCode)<<posLengthShift
	if leaf {
		p |= posLeafBit
	}
	return p
}

// IsSaved reports whether the token refers to an actual on-disk location.
// The bare removed marker (a page dropped before it was ever written) does
// not count as saved.
func (p Pos) IsSaved() bool {
	return p&^posRemovedBit != 0
}

// IsRemoved reports whether the removed marker is set.
func (p Pos) IsRemoved() bool {
	return p&posRemovedBit != 0
}

// IsLeaf reports whether the token refers to a leaf page.
func (p Pos) IsLeaf() bool {
	return p&posLeafBit != 0
}

// ChunkID returns the id of the chunk holding the page, or 0 for an unsaved
// token.
func (p Pos) ChunkID() uint32 {
	return uint32(p >> posChunkShift)
}

// Offset returns the page offset within its chunk.
func (p Pos) Offset() uint32 {
	return uint32(p >> posOffsetShift)
}

// LengthCode returns the size class of the page.
func (p Pos) LengthCode() uint8 {
	return uint8(p>>posLengthShift) & MaxLengthCode
}

// AsRemoved returns the token with the removed marker set. Removal ledgers
// carry marked tokens so the storage layer can tell a reclaimed slot from a
// live one.
func (p Pos) AsRemoved() Pos {
	return p | posRemovedBit
}

// RemovedPos is the token a never-saved page carries once its removal has
// been claimed. It is not a valid location.
const RemovedPos Pos = posRemovedBit
