// Package tigstore computes each placed read's (parentReadId, aHang,
// bHang) and writes the final tig set to the output sink. Its writer
// follows a fixed little-endian record marshalled by hand into a scratch
// buffer, framed by recordio so the file carries a header and trailer
// alongside the raw records, with klauspost/compress's zstd transformer
// compressing the stream.
package tigstore

import (
	"encoding/binary"
	"io"

	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

const trailerVersion = 1

// PlacedRead is one read's final output record.
type PlacedRead struct {
	ID     uint32
	Bgn    int32
	End    int32
	Parent uint32
	AHang  int32
	BHang  int32
}

// Tig is one tig's final output record.
type Tig struct {
	ID    uint32
	Flags uint32
	Reads []PlacedRead
}

// Flag bits packed into a tig's Flags word.
const (
	FlagUnassembled uint32 = 1 << 0
	FlagBubble      uint32 = 1 << 1
	FlagRepeat      uint32 = 1 << 2
	FlagCircular    uint32 = 1 << 3
)

func flagsOf(f tig.Flags) uint32 {
	var v uint32
	if f.Unassembled {
		v |= FlagUnassembled
	}
	if f.Bubble {
		v |= FlagBubble
	}
	if f.Repeat {
		v |= FlagRepeat
	}
	if f.Circular {
		v |= FlagCircular
	}
	return v
}

// SetParentAndHang computes, for every read in u, the (parentReadId,
// aHang, bHang) triple using the overlap that best matches the basis of
// its placement: among its overlaps to already-placed neighbors in the
// same tig, the one whose implied position is closest to its actual
// placement. The tig's first (lowest-coordinate) read has no
// parent and is recorded with parent 0.
func SetParentAndHang(ri *readinfo.ReadInfo, cache *overlapcache.Cache, u *tig.Unitig) []PlacedRead {
	reads := append([]tig.Read(nil), u.Reads()...)
	sortByMin(reads)

	inTig := make(map[uint32]tig.Read, len(reads))
	placedOrder := make(map[uint32]int, len(reads))
	for i, r := range reads {
		inTig[r.ID] = r
		placedOrder[r.ID] = i
	}

	out := make([]PlacedRead, len(reads))
	for i, r := range reads {
		out[i] = PlacedRead{ID: r.ID, Bgn: r.Bgn, End: r.End}
		if i == 0 {
			continue
		}
		var bestParent uint32
		var bestAHang, bestBHang int32
		bestDist := int32(-1)
		for _, o := range cache.OverlapsFor(r.ID) {
			other, ok := inTig[o.BIID]
			if !ok || placedOrder[o.BIID] >= i {
				continue
			}
			predictedBgn, predictedEnd := projectedPosition(ri, other, o)
			dist := absInt32(predictedBgn-r.Bgn) + absInt32(predictedEnd-r.End)
			if bestDist < 0 || dist < bestDist {
				bestDist = dist
				bestParent = other.ID
				bestAHang, bestBHang = o.AHang, o.BHang
			}
		}
		out[i].Parent = bestParent
		out[i].AHang = bestAHang
		out[i].BHang = bestBHang
	}
	return out
}

// projectedPosition projects the read that owns o through parent's
// placement. o is that read's own record (o.BIID is parent), so the
// projection uses the reverse-direction hangs, as placement does.
func projectedPosition(ri *readinfo.ReadInfo, parent tig.Read, o overlapcache.Overlap) (int32, int32) {
	aHang, bHang := -o.AHang, -o.BHang
	if o.Flipped {
		aHang, bHang = o.BHang, o.AHang
	}
	return tig.PlaceFragWithBestEdge(ri, parent, bestoverlapgraph.End3, bestoverlapgraph.BestEdge{AHang: aHang, BHang: bHang, Flipped: o.Flipped})
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func sortByMin(reads []tig.Read) {
	for i := 1; i < len(reads); i++ {
		for j := i; j > 0 && reads[j].Min() < reads[j-1].Min(); j-- {
			reads[j], reads[j-1] = reads[j-1], reads[j]
		}
	}
}

// Write serializes every tig in tv to w as a recordio stream, little
// endian, via SetParentAndHang for each tig's placed-read records.
func Write(ri *readinfo.ReadInfo, cache *overlapcache.Cache, tv *tig.TigVector, w io.Writer) error {
	recordiozstd.Init()
	rio := recordio.NewWriter(w, recordio.WriterOpts{
		Marshal:      marshalTig,
		Transformers: []string{recordiozstd.Name},
	})
	rio.AddHeader(recordio.KeyTrailer, true)

	ids := tv.All()
	for _, id := range ids {
		u, ok := tv.Get(id)
		if !ok {
			continue
		}
		t := Tig{ID: id, Flags: flagsOf(u.Flags), Reads: SetParentAndHang(ri, cache, u)}
		rio.Append(&t)
	}
	rio.SetTrailer(tigStoreTrailer(len(ids)))
	return rio.Finish()
}

func tigStoreTrailer(numTigs int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(trailerVersion)<<32|uint64(uint32(numTigs)))
	return b
}

// marshalTig packs one Tig record: tigId, flags, length, numReads, then
// numReads x (id,bgn,end,parent,aHang,bHang).
func marshalTig(scratch []byte, v interface{}) ([]byte, error) {
	t := v.(*Tig)
	size := 16 + len(t.Reads)*24
	buf := scratch
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]

	length := int32(0)
	for _, r := range t.Reads {
		if e := r.End; e > length {
			length = e
		}
		if b := r.Bgn; b > length {
			length = b
		}
	}

	binary.LittleEndian.PutUint32(buf[0:4], t.ID)
	binary.LittleEndian.PutUint32(buf[4:8], t.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(length))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(t.Reads)))
	off := 16
	for _, r := range t.Reads {
		binary.LittleEndian.PutUint32(buf[off:off+4], r.ID)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(r.Bgn))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(r.End))
		binary.LittleEndian.PutUint32(buf[off+12:off+16], r.Parent)
		binary.LittleEndian.PutUint32(buf[off+16:off+20], uint32(r.AHang))
		binary.LittleEndian.PutUint32(buf[off+20:off+24], uint32(r.BHang))
		off += 24
	}
	return buf, nil
}
