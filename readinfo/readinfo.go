// Package readinfo provides immutable, process-wide read metadata: the
// length (in bases) and deletion status of every read in the assembly.
//
// ReadInfo is loaded once from the external read store (see the seqstore
// package for the store's contract) and is read-only for the remainder of
// the run; its API and loader mirror an indexed-FASTA loader, substituting
// a read-id/length/deleted TSV index for FASTA's name/offset index.
package readinfo

import (
	"bufio"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// ReadInfo holds per-read length and deletion status, indexed by read id.
// Read ids are 1-based; id 0 is reserved to mean "no read" and is never a
// valid key into length/deleted.
type ReadInfo struct {
	length  []uint32 // length[0] is unused, always 0.
	deleted []bool
	numBase uint64
}

// Read is a single entry loaded from the read store: id is 1-based, length
// is in bases (0 means the read is deleted/ignored).
type Read struct {
	ID     uint32
	Length uint32
}

// New builds a ReadInfo from a sequence of Reads, which must be presented in
// increasing id order starting at 1 with no gaps. This is the shape produced
// by a seqstore.Store walked from id 1 to NumReads().
func New(reads []Read) (*ReadInfo, error) {
	ri := &ReadInfo{
		length:  make([]uint32, len(reads)+1),
		deleted: make([]bool, len(reads)+1),
	}
	for i, r := range reads {
		wantID := uint32(i + 1)
		if r.ID != wantID {
			return nil, errors.E("readinfo: reads must be presented in order with no gaps", "want", wantID, "got", r.ID)
		}
		ri.length[r.ID] = r.Length
		ri.deleted[r.ID] = r.Length == 0
		ri.numBase += uint64(r.Length)
	}
	return ri, nil
}

// indexRow is one line of the read-length index: "id\tlength", written by
// the same seqstore loader that produces the read store itself.
type indexRow struct {
	ID     uint64 `tsv:"id"`
	Length uint64 `tsv:"length"`
}

// Load reads a read-length index from r, ids in increasing order starting
// at 1. A length of 0 marks a read deleted or otherwise ignored.
func Load(r io.Reader) (*ReadInfo, error) {
	tr := tsv.NewReader(bufio.NewReader(r))
	tr.HasHeaderRow = true

	var reads []Read
	for {
		var row indexRow
		err := tr.Read(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(err, "readinfo: malformed read-length index")
		}
		reads = append(reads, Read{ID: uint32(row.ID), Length: uint32(row.Length)})
	}
	return New(reads)
}

// NumReads returns the number of reads known to this ReadInfo (the highest
// valid read id).
func (ri *ReadInfo) NumReads() uint32 { return uint32(len(ri.length) - 1) }

// NumBases returns the sum of lengths of all non-deleted reads, used by
// OverlapCache's memory-budget computation (minPer = 2*NumBases/genomeSize).
func (ri *ReadInfo) NumBases() uint64 { return ri.numBase }

// Length returns the length in bases of read id, or 0 if id is out of range
// or deleted.
func (ri *ReadInfo) Length(id uint32) uint32 {
	if id == 0 || int(id) >= len(ri.length) {
		return 0
	}
	return ri.length[id]
}

// IsDeleted reports whether read id has been deleted (or is out of range).
func (ri *ReadInfo) IsDeleted(id uint32) bool {
	if id == 0 || int(id) >= len(ri.deleted) {
		return true
	}
	return ri.deleted[id]
}

// OverlapLength computes the number of bases of read a covered by an
// overlap to read b, given the overlap's signed hangs: aHang/bHang encode
// how far each read's far endpoint extends past the other's.
func (ri *ReadInfo) OverlapLength(a, b uint32, aHang, bHang int32) int32 {
	alen := int32(ri.Length(a))
	blen := int32(ri.Length(b))

	// Length of A covered by this overlap: start at A's 5' end (or later,
	// if aHang > 0), end at A's 3' end (or earlier, if bHang < 0).
	lo := int32(0)
	if aHang > 0 {
		lo = aHang
	}
	hi := alen
	if bHang < 0 {
		hi = alen + bHang
	}
	length := hi - lo

	// Cross-check against B's implied span; overlap length is defined as
	// the shorter of the two reads' covered spans, consistent with the
	// original's overlap-length computation from hangs alone (no
	// alignment is available at this layer).
	bLo := int32(0)
	if aHang < 0 {
		bLo = -aHang
	}
	bHi := blen
	if bHang > 0 {
		bHi = blen - bHang
	}
	if bLen := bHi - bLo; bLen < length {
		length = bLen
	}
	return length
}
