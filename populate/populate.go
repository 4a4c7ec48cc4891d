// Package populate builds the initial set of unitigs by greedily seeding
// and extending from the chunk graph's highest-scoring reads.
// The seed-then-extend loop follows a shard-walk pattern: pull the next
// unit of work from a queue (chunkgraph's NextReadByChunkLength plays the
// role of the shard iterator), extend it as far as it goes, and move on.
package populate

import (
	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/chunkgraph"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// Opts configures Build.
type Opts struct {
	// PoolSingletons, when true, collects singleton tigs (a seed that
	// could not extend in either direction) into a separate pool rather
	// than emitting each as its own trivial tig.
	PoolSingletons bool
}

// Result summarizes Build's output: the populated TigVector, plus the
// pooled singleton read ids when Opts.PoolSingletons is set.
type Result struct {
	Singletons []uint32
}

// Build consumes chunkgraph's seed order, creating and extending one tig
// per seed until every available read has been placed or pooled.
func Build(ri *readinfo.ReadInfo, bog *bestoverlapgraph.Graph, cg *chunkgraph.Graph, tv *tig.TigVector, opts Opts) Result {
	var res Result
	for {
		seed, ok := cg.NextReadByChunkLength()
		if !ok {
			break
		}
		if tv.TigOf(seed) != 0 {
			continue // already placed by a previous seed's extension
		}
		u := tv.CreateTig()
		_ = tv.AddRead(u.ID(), tig.Read{ID: seed, Bgn: 0, End: int32(ri.Length(seed))}, true)

		n := extend(ri, bog, tv, u, seed, bestoverlapgraph.End3)
		n += extend(ri, bog, tv, u, seed, bestoverlapgraph.End5)

		u.Sort()
		if n == 0 && opts.PoolSingletons {
			tv.DeleteTig(u.ID())
			res.Singletons = append(res.Singletons, seed)
		}
	}
	return res
}

// extend walks outward from seed's end, placing each successive read via
// its best edge until the edge is null, the target is already placed, or
// the target is flagged spur/contained/bubble. It returns the
// number of reads added.
func extend(ri *readinfo.ReadInfo, bog *bestoverlapgraph.Graph, tv *tig.TigVector, u *tig.Unitig, start uint32, end bestoverlapgraph.End) int {
	added := 0
	cur := start
	curEnd := end
	for {
		edge, ok := bog.BestEdgeAt(cur, curEnd)
		if !ok {
			return added
		}
		next := edge.BIID
		if tv.TigOf(next) != 0 {
			return added
		}
		if bog.IsSpur(next) || bog.IsContained(next) || bog.IsBubble(next) {
			return added
		}

		parent, ok := findRead(u, cur)
		if !ok {
			return added
		}
		bgn, endCoord := tig.PlaceFragWithBestEdge(ri, parent, curEnd, edge)
		if err := tv.AddRead(u.ID(), tig.Read{ID: next, Bgn: bgn, End: endCoord}, true); err != nil {
			return added
		}
		added++

		cur = next
		curEnd = nextEnd(curEnd, edge.Flipped)
	}
}

func findRead(u *tig.Unitig, id uint32) (tig.Read, bool) {
	for _, r := range u.Reads() {
		if r.ID == id {
			return r, true
		}
	}
	return tig.Read{}, false
}

// nextEnd computes which end of the newly placed read continues the
// extension, mirroring chunkgraph's traversal direction logic: the same
// end after an unflipped edge, the opposite end after a flipped one.
func nextEnd(enteredFrom bestoverlapgraph.End, flipped bool) bestoverlapgraph.End {
	if !flipped {
		return enteredFrom
	}
	if enteredFrom == bestoverlapgraph.End3 {
		return bestoverlapgraph.End5
	}
	return bestoverlapgraph.End3
}
