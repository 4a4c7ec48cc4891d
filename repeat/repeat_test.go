package repeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
	"github.com/grailbio/bogart/tigintervals"
)

type fakeStore struct {
	byRead map[uint32][]ovlstore.Overlap
}

func (s *fakeStore) NumOverlapsPerRead() []uint32 {
	var max uint32
	for id := range s.byRead {
		if id > max {
			max = id
		}
	}
	counts := make([]uint32, max)
	for id, ovs := range s.byRead {
		counts[id-1] = uint32(len(ovs))
	}
	return counts
}
func (s *fakeStore) NumOverlapsInRange(lo, hi uint32) uint64 { return 0 }
func (s *fakeStore) LoadOverlapsForRead(id uint32, buf []ovlstore.Overlap, bufMax int) (int, error) {
	ovs := s.byRead[id]
	n := len(ovs)
	if n > bufMax {
		n = bufMax
	}
	copy(buf, ovs[:n])
	return n, nil
}

func TestSplitSkipsTooSmallTigs(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	tv := tig.NewTigVector(ri, cache)
	u := tv.CreateTig()
	tv.AddRead(u.ID(), tig.Read{ID: 1, Bgn: 0, End: 1000}, true)
	tv.AddRead(u.ID(), tig.Read{ID: 2, Bgn: 1000, End: 2000}, true)

	Split(ri, cache, tv, DefaultOpts()) // MinReads=15, this 2-read tig is ineligible

	_, ok := tv.Get(u.ID())
	require.True(t, ok, "tig %d should be untouched (below MinReads)", u.ID())
}

func TestComputeEjectsFlagsFullyInteriorRead(t *testing.T) {
	u := &tig.Unitig{}
	u.AddRead(tig.Read{ID: 1, Bgn: 100, End: 200}, false)
	regions := []tigintervals.Region{{Begin: 0, End: 1000, Depth: 10}}
	ejects := computeEjects(regions, u, Opts{MinOverlap: 1000})
	assert.True(t, ejects[1], "expected read 1 to be ejected (fully inside region, anchored < minOverlap/2)")
}
