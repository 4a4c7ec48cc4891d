package readinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	data := "id\tlength\n1\t1000\n2\t0\n3\t500\n"
	ri, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	assert.EqualValues(t, 3, ri.NumReads())
	assert.EqualValues(t, 1000, ri.Length(1))
	assert.EqualValues(t, 500, ri.Length(3))
	assert.True(t, ri.IsDeleted(2))
	assert.False(t, ri.IsDeleted(1))
	assert.False(t, ri.IsDeleted(3))
	assert.EqualValues(t, 1500, ri.NumBases())
	assert.EqualValues(t, 0, ri.Length(0))
	assert.True(t, ri.IsDeleted(0))
}

func TestOverlapLength(t *testing.T) {
	reads := []Read{{1, 1000}, {2, 1000}}
	ri, err := New(reads)
	require.NoError(t, err)

	// Dovetail: A's 3' hangs. a_hang=500 (A extends 500bp past B's start),
	// b_hang=500 (B extends 500bp past A's end). Overlap spans [500,1000) of
	// A, length 500.
	assert.EqualValues(t, 500, ri.OverlapLength(1, 2, 500, 500))
	// A contains B entirely: a_hang=100 >=0, b_hang=-100 <=0.
	assert.EqualValues(t, 800, ri.OverlapLength(1, 2, 100, -100))
}

func TestNewRejectsGaps(t *testing.T) {
	_, err := New([]Read{{1, 10}, {3, 10}})
	assert.Error(t, err)
}
