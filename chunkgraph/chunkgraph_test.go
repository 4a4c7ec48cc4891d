package chunkgraph

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

func TestNextReadByChunkLengthDecreasingOrder(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 100}, {ID: 2, Length: 500}, {ID: 3, Length: 50}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 1000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	bog := bestoverlapgraph.Build(ri, cache, bestoverlapgraph.Opts{MaxErate: 1000, Percentile: 0.9})

	g := Build(ri, bog)

	first, ok := g.NextReadByChunkLength()
	require.True(t, ok)
	assert.EqualValues(t, 2, first, "longest read should yield first")

	second, ok := g.NextReadByChunkLength()
	require.True(t, ok)
	assert.EqualValues(t, 1, second)

	third, ok := g.NextReadByChunkLength()
	require.True(t, ok)
	assert.EqualValues(t, 3, third, "shortest read should yield last")

	_, ok = g.NextReadByChunkLength()
	assert.False(t, ok, "expected no more reads after all three yielded")
}
