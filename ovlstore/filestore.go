package ovlstore

import (
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"
)

const recordSize = 24 // AIID, BIID, AHang, BHang, Evalue u32 each, Flipped + padding

// FileStore is a minimal in-memory Store backed by a flat file of
// fixed-size little-endian records, pre-sorted by AIID ascending.
type FileStore struct {
	records []Overlap
	offsets []uint32 // offsets[id]..offsets[id+1] bounds read id's records
}

// Load reads every record from r into memory and builds the per-read
// offset index used by NumOverlapsPerRead/LoadOverlapsForRead.
func Load(r io.Reader) (*FileStore, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.E(err, "ovlstore: reading overlap store")
	}
	if len(data)%recordSize != 0 {
		return nil, errors.E("ovlstore: overlap store size is not a multiple of the record size", "size", len(data))
	}
	n := len(data) / recordSize
	records := make([]Overlap, n)
	var maxID uint32
	for i := 0; i < n; i++ {
		b := data[i*recordSize : (i+1)*recordSize]
		o := Overlap{
			AIID:    binary.LittleEndian.Uint32(b[0:4]),
			BIID:    binary.LittleEndian.Uint32(b[4:8]),
			AHang:   int32(binary.LittleEndian.Uint32(b[8:12])),
			BHang:   int32(binary.LittleEndian.Uint32(b[12:16])),
			Evalue:  binary.LittleEndian.Uint32(b[16:20]),
			Flipped: b[20] != 0,
		}
		records[i] = o
		if o.AIID > maxID {
			maxID = o.AIID
		}
		if i > 0 && o.AIID < records[i-1].AIID {
			return nil, errors.E("ovlstore: overlap store is not sorted by AIID", "at", i)
		}
	}

	offsets := make([]uint32, maxID+2)
	for _, o := range records {
		offsets[o.AIID+1]++
	}
	for id := uint32(1); id < uint32(len(offsets)); id++ {
		offsets[id] += offsets[id-1]
	}
	return &FileStore{records: records, offsets: offsets}, nil
}

// NumOverlapsPerRead implements Store.
func (s *FileStore) NumOverlapsPerRead() []uint32 {
	counts := make([]uint32, len(s.offsets)-2)
	for id := range counts {
		counts[id] = s.offsets[id+2] - s.offsets[id+1]
	}
	return counts
}

// NumOverlapsInRange implements Store.
func (s *FileStore) NumOverlapsInRange(lo, hi uint32) uint64 {
	if lo == 0 || hi+1 >= uint32(len(s.offsets)) {
		return 0
	}
	return uint64(s.offsets[hi+1] - s.offsets[lo])
}

// LoadOverlapsForRead implements Store.
func (s *FileStore) LoadOverlapsForRead(id uint32, buf []Overlap, bufMax int) (int, error) {
	if id == 0 || int(id)+1 >= len(s.offsets) {
		return 0, nil
	}
	recs := s.records[s.offsets[id]:s.offsets[id+1]]
	n := len(recs)
	if n > bufMax {
		n = bufMax
	}
	copy(buf, recs[:n])
	return n, nil
}
