package rootchain

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// hashVersion is the freelru hash callback for version keys.
func hashVersion(v int64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return uint32(xxhash.Sum64(b[:]))
}

// RootAt returns the newest snapshot whose version is at or below version,
// walking the previous chain from the current head. Historical lookups are
// cached; the slice of the chain at or above the current version is still
// in motion, so only strictly older versions go in the cache.
//
// Returns ErrVersionNotFound once the chain has been pruned past version.
func (m *Map) RootAt(version int64) (*RootRef, error) {
	if m.versions != nil {
		if ref, ok := m.versions.Get(version); ok {
			return ref, nil
		}
	}
	cur := m.Current()
	for ref := cur; ref != nil; ref = ref.Previous() {
		if ref.Version <= version {
			if m.versions != nil && version < cur.Version {
				m.versions.Add(version, ref)
			}
			return ref, nil
		}
	}
	return nil, ErrVersionNotFound
}

// PruneVersionsOlderThan walks the previous chain from r and nulls the tail
// of every snapshot below oldest. Pure cleanup: it never changes a root,
// needs no CAS, and is safe against concurrent readers because it only ever
// nulls tail pointers. A reader already holding an old snapshot keeps it;
// pruning only stops anyone walking further back.
func (m *Map) PruneVersionsOlderThan(r *RootRef, oldest int64) {
	r.pruneOlderThan(oldest)
	if m.versions != nil {
		for _, v := range m.versions.Keys() {
			if v < oldest {
				m.versions.Remove(v)
			}
		}
	}
}

// OldestVersionToKeep returns the lowest version any active reader still
// needs, capped at the current version when no readers are registered.
func (m *Map) OldestVersionToKeep() int64 {
	oldest := m.readers.oldestVersion()
	if cur := m.Current().Version; oldest > cur {
		oldest = cur
	}
	return oldest
}

// Prune trims the version chain down to what active readers still need.
func (m *Map) Prune() {
	cur := m.Current()
	oldest := m.OldestVersionToKeep()
	m.log.Info("pruning version chain", "oldest", oldest, "version", cur.Version)
	m.PruneVersionsOlderThan(cur, oldest)
}
