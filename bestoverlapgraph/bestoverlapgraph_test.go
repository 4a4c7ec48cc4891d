package bestoverlapgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
)

// fakeStore is a minimal in-memory ovlstore.Store for tests.
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

func (s *fakeStore) NumOverlapsInRange(lo, hi uint32) uint64 {
	var n uint64
	for id, ovs := range s.byRead {
		if id >= lo && id <= hi {
			n += uint64(len(ovs))
		}
	}
	return n
}

func (s *fakeStore) LoadOverlapsForRead(id uint32, buf []ovlstore.Overlap, bufMax int) (int, error) {
	ovs := s.byRead[id]
	n := len(ovs)
	if n > bufMax {
		n = bufMax
	}
	copy(buf, ovs[:n])
	return n, nil
}

func TestDovetailEnd(t *testing.T) {
	assert.Equal(t, End5, dovetailEnd(-10, 5), "negative aHang should be End5")
	assert.Equal(t, End3, dovetailEnd(10, 5), "positive aHang/bHang should be End3")
}

func TestChooseCutoffForceErateShortCircuits(t *testing.T) {
	opts := Opts{ForceErate: 250, MaxErate: 1000}
	assert.EqualValues(t, 250, chooseCutoff([]float64{10, 20, 30}, opts))
}

func TestChooseCutoffFallsBackToPercentileWhenMedianZero(t *testing.T) {
	opts := Opts{Percentile: 1.0, MaxErate: 1000}
	assert.EqualValues(t, 100, chooseCutoff([]float64{0, 0, 0, 100}, opts),
		"the 100th percentile of a zero-median set")
}

func TestClampErate(t *testing.T) {
	opts := Opts{GraphErate: 50, MaxErate: 1000}
	assert.EqualValues(t, 50, clampErate(80, opts), "graphErate ceiling")
}

func TestChimerGapPolicy(t *testing.T) {
	p := ChimerGapPolicy{}
	assert.False(t, p.Classify(1, 0, 100, 1000), "gap touching read start should not be chimeric")
	assert.True(t, p.Classify(1, 100, 200, 1000), "interior gap should be chimeric")
}

func TestBuildBestEdgeAndContainer(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}, {ID: 3, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 500, BHang: 500, Evalue: 10}},
	}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 3000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	g := Build(ri, cache, Opts{MaxErate: 1000, Percentile: 0.9})
	edge, ok := g.BestEdgeAt(1, End3)
	require.True(t, ok)
	assert.EqualValues(t, 2, edge.BIID)
}

func TestBuildFlagsOnlyTheContainedReadNotTheContainer(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 400}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 200, BHang: -400, Evalue: 10}},
		2: {{AIID: 2, BIID: 1, AHang: -200, BHang: 400, Evalue: 10}},
	}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 1400, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	g := Build(ri, cache, Opts{MaxErate: 1000, Percentile: 0.9})

	assert.False(t, g.IsContained(1), "the longer, containing read must not be flagged contained")
	assert.True(t, g.IsContained(2), "the shorter, contained read must be flagged contained")

	c, ok := g.BestContainerOf(2)
	require.True(t, ok)
	assert.EqualValues(t, 1, c.BIID)
}

func TestIsSpurEndFlagsOneDeadEndEvenWithAGoodOtherEnd(t *testing.T) {
	// A straight 3-read chain: 1 -> 2 -> 3. Read 2 (the middle) has a real
	// best edge on both ends, so it is never a spur candidate. Read 1 has
	// a real edge out its End3 into read 2, but its End5 touches nothing
	// at all: under the old both-ends-null rule this would not have been
	// a spur, but a true one-sided dead end must be.
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}, {ID: 3, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 500, BHang: 500, Evalue: 10}},
		2: {
			{AIID: 2, BIID: 1, AHang: -500, BHang: -500, Evalue: 10},
			{AIID: 2, BIID: 3, AHang: 500, BHang: 500, Evalue: 10},
		},
		3: {{AIID: 3, BIID: 2, AHang: -500, BHang: -500, Evalue: 10}},
	}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	g := Build(ri, cache, Opts{MaxErate: 1000, Percentile: 0.9, EnableSpur: true, SpurDepth: 1})

	assert.True(t, g.IsSpur(1), "read 1's untouched End5 should make it a spur despite its good End3")
	assert.False(t, g.IsSpur(2), "read 2 has a real best edge on both ends, so it is never a spur")
}
