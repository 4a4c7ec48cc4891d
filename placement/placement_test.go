package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
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

func TestPlaceReadUsingOverlapsSingleCluster(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		2: {{AIID: 2, BIID: 1, AHang: 500, BHang: 500, Evalue: 10}},
	}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	tv := tig.NewTigVector(ri, cache)
	target := tv.CreateTig()
	require.NoError(t, tv.AddRead(target.ID(), tig.Read{ID: 1, Bgn: 0, End: 1000}, true))

	placements := PlaceReadUsingOverlaps(ri, cache, tv, target.ID(), 2, Opts{Mode: All, ClusterWindow: 50})
	require.Len(t, placements, 1)
	assert.Greater(t, placements[0].FCoverage, 0.0)
}
