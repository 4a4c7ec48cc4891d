// Package chunkgraph scores every read by the length reachable by greedily
// following best dovetail edges, and yields reads as unitig seeds in
// decreasing score order. Its traversal loop follows a candidate-walk
// shape: follow a chain of best neighbors, stopping at a cycle or a dead
// end, accumulating a length rather than a breakpoint set.
package chunkgraph

import (
	"sort"

	"github.com/grailbio/bogart/bestoverlapgraph"
)

// lengther is the subset of readinfo.ReadInfo chunkgraph needs.
type lengther interface {
	Length(id uint32) uint32
	NumReads() uint32
	IsDeleted(id uint32) bool
}

// Graph holds the per-read chunk length score and the pop-by-max-score
// iteration state.
type Graph struct {
	score     []uint64
	available []bool
	order     []uint32 // reads sorted by decreasing score, next to yield is order[pos]
	pos       int
}

// Build computes every read's chunk length by walking bog's best dovetail
// edges outward from each end, and prepares the decreasing-score
// iteration order.
func Build(ri lengther, bog *bestoverlapgraph.Graph) *Graph {
	n := ri.NumReads()
	g := &Graph{
		score:     make([]uint64, n+1),
		available: make([]bool, n+1),
	}
	for id := uint32(1); id <= n; id++ {
		if ri.IsDeleted(id) || bog.IsContained(id) {
			continue
		}
		g.available[id] = true
		g.score[id] = chunkLength(ri, bog, id)
	}

	g.order = make([]uint32, 0, n)
	for id := uint32(1); id <= n; id++ {
		if g.available[id] {
			g.order = append(g.order, id)
		}
	}
	order, score := g.order, g.score
	sort.Slice(order, func(i, j int) bool { return score[order[i]] > score[order[j]] })
	return g
}

// chunkLength walks outward from id in both directions, following each
// end's best dovetail edge, accumulating read length until a cycle, an
// already-visited read, or a dead end (no best edge) is hit. A traversal
// that returns to its own starting read short-circuits immediately
// rather than looping forever.
func chunkLength(ri lengther, bog *bestoverlapgraph.Graph, start uint32) uint64 {
	total := uint64(ri.Length(start))
	total += walk(ri, bog, start, bestoverlapgraph.End3, map[uint32]bool{start: true})
	total += walk(ri, bog, start, bestoverlapgraph.End5, map[uint32]bool{start: true})
	return total
}

// walk follows best edges from read cur's end, accumulating the length of
// each newly visited read, stopping at a cycle or a missing best edge.
func walk(ri lengther, bog *bestoverlapgraph.Graph, cur uint32, end bestoverlapgraph.End, visited map[uint32]bool) uint64 {
	var total uint64
	for {
		edge, ok := bog.BestEdgeAt(cur, end)
		if !ok {
			return total
		}
		next := edge.BIID
		if visited[next] {
			// Cycle: the traversal may never terminate at its starting
			// read, so stop here instead of looping.
			return total
		}
		visited[next] = true
		total += uint64(ri.Length(next))
		cur = next
		end = oppositeEnd(end, edge.Flipped)
	}
}

// oppositeEnd computes which end of the next read continues the walk,
// given the end of the current read the edge left from: an unflipped edge
// lands on the next read's opposite end, so the walk continues from the
// same end it left; a flipped edge lands on the same end, so the walk
// continues from the opposite one.
func oppositeEnd(enteredFrom bestoverlapgraph.End, flipped bool) bestoverlapgraph.End {
	same := enteredFrom
	if !flipped {
		return same
	}
	if same == bestoverlapgraph.End3 {
		return bestoverlapgraph.End5
	}
	return bestoverlapgraph.End3
}

// NextReadByChunkLength returns the next available read in decreasing
// chunk-length order, marking it unavailable for subsequent calls. The
// second return value is false once every read has been yielded.
func (g *Graph) NextReadByChunkLength() (uint32, bool) {
	for g.pos < len(g.order) {
		id := g.order[g.pos]
		g.pos++
		if g.available[id] {
			g.available[id] = false
			return id, true
		}
	}
	return 0, false
}

// Remove marks id unavailable without yielding it, used when another pass
// (e.g. populate) consumes a read outside the normal iteration order.
func (g *Graph) Remove(id uint32) {
	if int(id) < len(g.available) {
		g.available[id] = false
	}
}

// ScoreOf returns read id's computed chunk length.
func (g *Graph) ScoreOf(id uint32) uint64 { return g.score[id] }
