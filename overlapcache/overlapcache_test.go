package overlapcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
)

// fakeStore is a small in-memory ovlstore.Store for tests.
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

func TestBuildSymmetrizes(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)

	// Only read 1 reports the overlap; Build must synthesize read 2's twin.
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 500, BHang: 500, Evalue: 100}},
	}}

	c, err := Build(ri, store, Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)

	ov1 := c.OverlapsFor(1)
	require.Len(t, ov1, 1)
	assert.EqualValues(t, 2, ov1[0].BIID)

	ov2 := c.OverlapsFor(2)
	require.Len(t, ov2, 1, "want synthesized twin pointing at 1")
	assert.EqualValues(t, 1, ov2[0].BIID)
	assert.EqualValues(t, -500, ov2[0].AHang)
	assert.EqualValues(t, -500, ov2[0].BHang)
}

func TestBuildDropsLowQuality(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}, {ID: 3, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {
			{AIID: 1, BIID: 2, AHang: 500, BHang: 500, Evalue: 100},
			{AIID: 1, BIID: 3, AHang: 10, BHang: 10, Evalue: 5000}, // over maxEvalue
		},
	}}
	c, err := Build(ri, store, Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1})
	require.NoError(t, err)
	got := c.OverlapsFor(1)
	require.Len(t, got, 1, "want only the B=2 overlap")
	assert.EqualValues(t, 2, got[0].BIID)
}

func TestComputeBudgetFailsBelowMinPer(t *testing.T) {
	counts := []uint32{100, 100}
	_, err := computeBudget(counts, 2, 1000, 1) // 1 byte budget, way below minPer
	assert.Error(t, err)
}

func TestBuildWritesNonSymmetricDiagnosticLogs(t *testing.T) {
	ri, err := readinfo.New([]readinfo.Read{{ID: 1, Length: 1000}, {ID: 2, Length: 1000}})
	require.NoError(t, err)
	store := &fakeStore{byRead: map[uint32][]ovlstore.Overlap{
		1: {{AIID: 1, BIID: 2, AHang: 500, BHang: 500, Evalue: 100}},
	}}
	prefix := filepath.Join(t.TempDir(), "run")

	c, err := Build(ri, store, Opts{MemLimitBytes: 1 << 20, GenomeSize: 2000, MaxEvalue: 1000, MinOverlap: 1, DiagPrefix: prefix})
	require.NoError(t, err)

	assert.EqualValues(t, 1, c.Diagnostics().NumTwinsAdded)
	assert.EqualValues(t, 2, c.Diagnostics().NumReads)

	for _, suffix := range []string{".non-symmetric-overlaps", ".non-symmetric-error-rates", ".non-symmetric-weak-dropped", ".non-symmetric-added"} {
		_, err := os.Stat(prefix + suffix)
		assert.NoError(t, err, "expected %s to exist", suffix)
	}
}
