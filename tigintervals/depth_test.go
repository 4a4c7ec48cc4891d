package tigintervals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseByDepth(t *testing.T) {
	begins := []TigPos{0, 5, 5, 20}
	ends := []TigPos{10, 15, 8, 25}
	regions := CollapseByDepth(begins, ends)
	want := []Region{
		{0, 5, 1},
		{5, 8, 3},
		{8, 10, 2},
		{10, 15, 1},
		{20, 25, 1},
	}
	require.Len(t, regions, len(want))
	assert.Equal(t, want, regions)
}

func TestFilterByMinDepth(t *testing.T) {
	regions := []Region{{0, 5, 1}, {5, 10, 7}, {10, 15, 3}}
	filtered := FilterByMinDepth(regions, 6)
	require.Len(t, filtered, 1, "want only the depth-7 region")
	assert.EqualValues(t, 7, filtered[0].Depth)
}
