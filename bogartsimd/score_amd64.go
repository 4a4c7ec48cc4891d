// +build amd64,!appengine

package bogartsimd

// MinScoreIndex returns the index of the minimum value in scores, and the
// value itself. It panics if scores is empty.
//
// This is the amd64 build-tagged variant. It is a plain scalar Go loop,
// the same as the generic variant; there is no hand-written vector
// assembly.
func MinScoreIndex(scores []uint64) (int, uint64) {
	best := scores[0]
	bestIdx := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] < best {
			best = scores[i]
			bestIdx = i
		}
	}
	return bestIdx, best
}

// CountAtOrBelow returns the number of elements of scores that are <= threshold.
func CountAtOrBelow(scores []uint64, threshold uint64) int {
	n := 0
	for _, s := range scores {
		if s <= threshold {
			n++
		}
	}
	return n
}
