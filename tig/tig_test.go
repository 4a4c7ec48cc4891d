package tig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
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

func TestUnitigAddRemoveSort(t *testing.T) {
	u := &Unitig{id: 1}
	u.AddRead(Read{ID: 2, Bgn: 500, End: 1500}, true)
	u.AddRead(Read{ID: 1, Bgn: 0, End: 1000}, true)
	u.Sort()

	first, ok := u.FirstRead()
	require.True(t, ok)
	assert.EqualValues(t, 1, first.ID)

	last, ok := u.LastRead()
	require.True(t, ok)
	assert.EqualValues(t, 2, last.ID)

	assert.EqualValues(t, 1500, u.GetLength())

	u.RemoveRead(1)
	assert.EqualValues(t, 1, u.NumReads())
}

func TestPlaceFragWithBestEdgeForward(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)
	parent := Read{ID: 1, Bgn: 0, End: 1000}
	edge := bestoverlapgraph.BestEdge{BIID: 2, AHang: 500, BHang: 500, Evalue: 10}
	bgn, end := PlaceFragWithBestEdge(ri, parent, bestoverlapgraph.End3, edge)
	assert.EqualValues(t, 500, bgn)
	assert.EqualValues(t, 1500, end)
}

func TestTigVectorAddRemoveKeepsTablesConsistent(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	tv := NewTigVector(ri, cache)
	u := tv.CreateTig()
	require.NoError(t, tv.AddRead(u.ID(), Read{ID: 1, Bgn: 0, End: 1000}, true))
	assert.Equal(t, u.ID(), tv.TigOf(1))

	tv.RemoveRead(1)
	assert.Zero(t, tv.TigOf(1))
}

func TestOverlapConsistentWithTigEmptyIsOne(t *testing.T) {
	u := &Unitig{id: 1}
	assert.Equal(t, 1.0, u.OverlapConsistentWithTig(3, 0, 100, 0.1), "empty error profile should report full consistency")
}
