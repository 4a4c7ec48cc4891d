package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

type fakeStore struct{ byRead map[uint32][]ovlstore.Overlap }

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

func TestPromoteToSingleton(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 500}, {ID: 2, Length: 600}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 1000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	tv := tig.NewTigVector(ri, cache)

	PromoteToSingleton(ri, tv)

	require.NotZero(t, tv.TigOf(1))
	require.NotZero(t, tv.TigOf(2))
	u, ok := tv.Get(tv.TigOf(1))
	require.True(t, ok)
	assert.EqualValues(t, 500, u.GetLength())
}

func TestClassifyTigsAsUnassembledFewReads(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 500}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{}}
	cache, err := overlapcache.Build(ri, store, overlapcache.Opts{MemLimitBytes: 1 << 20, GenomeSize: 1000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	tv := tig.NewTigVector(ri, cache)
	u := tv.CreateTig()
	tv.AddRead(u.ID(), tig.Read{ID: 1, Bgn: 0, End: 500}, true)

	ClassifyTigsAsUnassembled(tv, UnassembledOpts{FewReadsNumber: 2, TooShortLength: 0, SpanFraction: 0, LowcovFraction: 1, LowcovDepth: 1})

	assert.True(t, u.Flags.Unassembled, "single-read tig with FewReadsNumber=2 should be unassembled")
}
