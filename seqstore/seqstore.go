// Package seqstore defines the narrow contract this engine expects from the
// external read-sequence store. The store itself — random-access read
// metadata and sequence bytes — lives outside this module; seqstore only
// declares what the assembly graph construction pipeline needs from it.
package seqstore

// Store is an opaque handle to the read store, opened by filesystem path.
// Implementations are expected to memory-map or otherwise provide
// O(1)-ish random access; this package makes no assumption about how.
type Store interface {
	// NumReads returns the total number of reads in the store.
	NumReads() uint32

	// ReadLength returns the length in bases of read id, or 0 if the read
	// has been deleted.
	ReadLength(id uint32) uint32
}

// DumpLengthIndex returns the rows of the "id\tlength" index consumed by
// readinfo.Load, one per read from 1 to store.NumReads(). It does not
// format or write the TSV text itself.
func DumpLengthIndex(store Store) []IndexRow {
	n := store.NumReads()
	rows := make([]IndexRow, n)
	for id := uint32(1); id <= n; id++ {
		rows[id-1] = IndexRow{ID: id, Length: store.ReadLength(id)}
	}
	return rows
}

// IndexRow is one entry of the read-length index.
type IndexRow struct {
	ID     uint32
	Length uint32
}
