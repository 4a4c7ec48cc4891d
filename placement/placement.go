// Package placement implements PlaceReadUsingOverlaps: given a
// read and the overlaps it has into one or more target tigs, cluster
// those overlaps by implied position and summarize each cluster into a
// placement candidate. This is consumed by the orphan merger (C8) and the
// repeat splitter (C9) to test whether a read belongs somewhere other
// than its current tig.
package placement

import (
	"sort"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
	"github.com/grailbio/bogart/tigintervals"
)

// Mode selects which clusters PlaceReadUsingOverlaps returns.
type Mode int

const (
	// All returns every cluster found, regardless of quality.
	All Mode = iota
	// NoExtend drops clusters whose implied placement hangs outside the
	// target tig's current bounds.
	NoExtend
	// FullMatch additionally requires fCoverage to meet a threshold.
	FullMatch
)

// Placement is one clustered candidate placement of a read into a target
// tig.
type Placement struct {
	Tig               uint32
	Bgn, End          int32
	Erate             float64
	FCoverage         float64
	Verified          tigintervals.Region
	NForward, NReverse int
}

// Opts configures PlaceReadUsingOverlaps.
type Opts struct {
	Mode             Mode
	ClusterWindow    int32   // implied positions within this distance merge into one cluster
	FullMatchMinFCov float64 // used only when Mode == FullMatch
	MaxErate         float64 // overlaps above this are not considered at all (e.g. BOG's reportErrorLimit)
}

// candidateOverlap is one overlap contributing to a cluster, carrying its
// implied placement of the read being placed.
type candidateOverlap struct {
	targetRead tig.Read
	bgn, end   int32
	evalue     uint32
	length     int32
	flipped    bool
}

// PlaceReadUsingOverlaps clusters read's overlaps into target tig's reads
// by implied position, and returns one Placement per surviving cluster.
func PlaceReadUsingOverlaps(ri *readinfo.ReadInfo, cache *overlapcache.Cache, tv *tig.TigVector, targetTig uint32, read uint32, opts Opts) []Placement {
	target, ok := tv.Get(targetTig)
	if !ok {
		return nil
	}
	inTarget := make(map[uint32]tig.Read, target.NumReads())
	for _, r := range target.Reads() {
		inTarget[r.ID] = r
	}

	var cands []candidateOverlap
	for _, o := range cache.OverlapsFor(read) {
		tr, ok := inTarget[o.BIID]
		if !ok {
			continue
		}
		if opts.MaxErate > 0 && float64(o.Evalue) > opts.MaxErate {
			continue
		}
		length := ri.OverlapLength(read, o.BIID, o.AHang, o.BHang)
		// o is read's-side record (read -> target read); project through
		// the target's placement requires the reverse-direction hangs.
		rAHang, rBHang := reverseHangs(o.AHang, o.BHang, o.Flipped)
		edge := bestoverlapgraph.BestEdge{BIID: read, AHang: rAHang, BHang: rBHang, Evalue: o.Evalue, Flipped: o.Flipped, Length: length}
		bgn, end := tig.PlaceFragWithBestEdge(ri, tr, bestoverlapgraph.End3, edge)
		cands = append(cands, candidateOverlap{tr, bgn, end, o.Evalue, length, o.Flipped})
	}
	if len(cands) == 0 {
		return nil
	}

	clusters := clusterByPosition(cands, opts.ClusterWindow)

	readLen := int32(ri.Length(read))
	var out []Placement
	for _, cl := range clusters {
		p := summarize(cl, readLen)
		p.Tig = targetTig

		switch opts.Mode {
		case NoExtend:
			if p.Bgn < 0 || p.End > target.GetLength() {
				continue
			}
		case FullMatch:
			if p.FCoverage < opts.FullMatchMinFCov {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// reverseHangs computes the opposite-direction hangs for an overlap,
// mirroring overlapcache's twin-construction rule: an unflipped overlap's
// hangs simply negate in place; a flipped overlap's hangs swap roles
// without negation.
func reverseHangs(aHang, bHang int32, flipped bool) (int32, int32) {
	if !flipped {
		return -aHang, -bHang
	}
	return bHang, aHang
}

// clusterByPosition groups candidates whose implied bgn falls within
// window of each other, sorted left to right.
func clusterByPosition(cands []candidateOverlap, window int32) [][]candidateOverlap {
	if window <= 0 {
		window = 50
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].bgn < cands[j].bgn })
	var clusters [][]candidateOverlap
	var cur []candidateOverlap
	for _, c := range cands {
		if len(cur) > 0 && c.bgn-cur[len(cur)-1].bgn > window {
			clusters = append(clusters, cur)
			cur = nil
		}
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		clusters = append(clusters, cur)
	}
	return clusters
}

// summarize reduces one cluster of candidate overlaps into a Placement,
// computing the length-weighted average position, erate, fCoverage, and
// orientation votes.
func summarize(cl []candidateOverlap, readLen int32) Placement {
	var weightedBgn, weightedEnd, totalWeight float64
	var errSum, alignedSum float64
	var nForward, nReverse int

	begins := make([]tigintervals.TigPos, 0, len(cl))
	ends := make([]tigintervals.TigPos, 0, len(cl))

	for _, c := range cl {
		w := float64(c.length)
		weightedBgn += float64(c.bgn) * w
		weightedEnd += float64(c.end) * w
		totalWeight += w
		errSum += float64(c.evalue) * float64(c.length)
		alignedSum += float64(c.length)
		if c.flipped {
			nReverse++
		} else {
			nForward++
		}
		lo, hi := c.bgn, c.end
		if lo > hi {
			lo, hi = hi, lo
		}
		begins = append(begins, tigintervals.TigPos(lo))
		ends = append(ends, tigintervals.TigPos(hi))
	}

	var p Placement
	if totalWeight > 0 {
		p.Bgn = int32(weightedBgn / totalWeight)
		p.End = int32(weightedEnd / totalWeight)
	}
	if alignedSum > 0 {
		p.Erate = errSum / alignedSum
	}
	if readLen > 0 {
		regions := tigintervals.CollapseByDepth(begins, ends)
		var covered int32
		for _, r := range regions {
			covered += int32(r.End - r.Begin)
		}
		if covered > readLen {
			covered = readLen
		}
		p.FCoverage = float64(covered) / float64(readLen)
		if len(regions) > 0 {
			p.Verified = regions[0]
			for _, r := range regions[1:] {
				if r.Begin < p.Verified.Begin {
					p.Verified.Begin = r.Begin
				}
				if r.End > p.Verified.End {
					p.Verified.End = r.End
				}
			}
		}
	}
	p.NForward = nForward
	p.NReverse = nReverse
	return p
}
