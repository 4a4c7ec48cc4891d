package populate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/chunkgraph"
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

func TestBuildExtendsSeedIntoTwoReadTig(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 500, BHang: 500, Evalue: 10}},
	}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	bog := bestoverlapgraph.Build(ri, cache, bestoverlapgraph.Opts{MaxErate: 1000, Percentile: 0.9})
	cg := chunkgraph.Build(ri, bog)
	tv := tig.NewTigVector(ri, cache)

	Build(ri, bog, cg, tv, Opts{PoolSingletons: true})

	tigID := tv.TigOf(1)
	require.NotZero(t, tigID, "read 1 was not placed in any tig")
	assert.Equal(t, tigID, tv.TigOf(2), "read 2 should land in the same tig as read 1")

	u, ok := tv.Get(tigID)
	require.True(t, ok)
	assert.EqualValues(t, 2, u.NumReads())
}

func TestPlaceContainedReadsPlacesReadIntoContainerTig(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 400}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 200, BHang: -400, Evalue: 10}},
		2: {{AIID: 2, BIID: 1, AHang: -200, BHang: 400, Evalue: 10}},
	}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 1400, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	bog := bestoverlapgraph.Build(ri, cache, bestoverlapgraph.Opts{MaxErate: 1000, Percentile: 0.9})
	require.True(t, bog.IsContained(2), "read 2 should be flagged contained in read 1")
	require.False(t, bog.IsContained(1), "read 1 is the container, not contained")

	cg := chunkgraph.Build(ri, bog)
	tv := tig.NewTigVector(ri, cache)
	Build(ri, bog, cg, tv, Opts{PoolSingletons: false})
	require.Zero(t, tv.TigOf(2), "contained read should not be placed by the ordinary seed/extend pass")

	n := PlaceContainedReads(ri, bog, tv)
	assert.Equal(t, 1, n)

	tigID := tv.TigOf(1)
	require.NotZero(t, tigID)
	assert.Equal(t, tigID, tv.TigOf(2), "contained read should land in its container's tig")

	u, ok := tv.Get(tigID)
	require.True(t, ok)
	assert.EqualValues(t, 2, u.NumReads())
}
