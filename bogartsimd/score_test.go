package bogartsimd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinScoreIndex(t *testing.T) {
	scores := []uint64{5, 2, 9, 2, 7}
	idx, val := MinScoreIndex(scores)
	assert.EqualValues(t, 1, idx)
	assert.EqualValues(t, 2, val)
}

func TestCountAtOrBelow(t *testing.T) {
	scores := []uint64{5, 2, 9, 2, 7}
	assert.EqualValues(t, 3, CountAtOrBelow(scores, 5))
}
