// Package repeat implements junction detection and splitting:
// for each sufficiently large tig, place every outside read that overlaps
// into it, collapse the accepted placements into candidate repeat
// regions, gather junction evidence, and split the tig around the
// junctions that accumulate enough independent support. Region scoring
// reuses tigintervals' sweep-line depth collapse to turn per-read spans
// into depth-labelled intervals.
package repeat

import (
	"math"
	"sort"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/placement"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
	"github.com/grailbio/bogart/tigintervals"
)

// Defaults taken from the original bogart repeat splitter.
const (
	SpuriousCoverageThreshold = 6
	IntersectNeededToBreak    = 15
	RegionEndWeight           = 15
)

// Opts configures Split.
type Opts struct {
	MinReads        int // size >= 15 reads to be eligible
	MinLength       int32 // length >= 300bp to be eligible
	MinOverlap      int32 // used for the anchor-snap and ejection checks (minOverlap/2)
	ShatterRepeats  bool
}

// DefaultOpts returns the default eligibility thresholds and constants.
func DefaultOpts() Opts {
	return Opts{MinReads: 15, MinLength: 300, MinOverlap: 40}
}

// junctionEvidence is one piece of support for a break at (read, end).
type junctionEvidence struct {
	read   uint32
	end    bool // true = 3' end
	weight int
}

// regionPlan is the per-tig computation done in the parallel phase,
// applied later under the TigVector lock.
type regionPlan struct {
	tigID     uint32
	regions   []tigintervals.Region
	junctions []junctionEvidence
	ejects    map[uint32]bool
}

// Split runs the repeat/junction detector and splitter over every
// eligible tig in tv.
func Split(ri *readinfo.ReadInfo, cache *overlapcache.Cache, tv *tig.TigVector, opts Opts) {
	ids := tv.All()
	plans := make([]*regionPlan, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, 16)
	for i, id := range ids {
		u, ok := tv.Get(id)
		if !ok || u.NumReads() < opts.MinReads || u.GetLength() < opts.MinLength {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id uint32, u *tig.Unitig) {
			defer wg.Done()
			defer func() { <-sem }()
			plans[i] = computeRegions(ri, cache, tv, id, u, opts)
		}(i, id, u)
	}
	wg.Wait()

	for i, p := range plans {
		if p == nil {
			continue
		}
		applySplit(tv, ids[i], p, opts)
	}
}

// computeRegions finds, scores, and collapses the candidate repeat
// regions for a single tig.
func computeRegions(ri *readinfo.ReadInfo, cache *overlapcache.Cache, tv *tig.TigVector, tigID uint32, u *tig.Unitig, opts Opts) *regionPlan {
	inTig := make(map[uint32]tig.Read, u.NumReads())
	for _, r := range u.Reads() {
		inTig[r.ID] = r
	}

	// Step 2: tig error baseline from self-placements.
	var errSum, errSumSq float64
	var errCount int
	for _, r := range u.Reads() {
		for _, o := range cache.OverlapsFor(r.ID) {
			if _, ok := inTig[o.BIID]; !ok {
				continue
			}
			errSum += float64(o.Evalue)
			errSumSq += float64(o.Evalue) * float64(o.Evalue)
			errCount++
		}
	}
	mean, sigma := 0.0, 0.0
	if errCount > 0 {
		mean = errSum / float64(errCount)
		variance := errSumSq/float64(errCount) - mean*mean
		if variance > 0 {
			sigma = math.Sqrt(variance)
		}
	}
	threshold := mean + 3*sigma

	// Step 1: collect outside reads with an overlap into T.
	outside := make(map[uint32]bool)
	for _, r := range u.Reads() {
		for _, o := range cache.OverlapsFor(r.ID) {
			if _, ok := inTig[o.BIID]; ok {
				continue
			}
			if tv.TigOf(o.BIID) != 0 && tv.TigOf(o.BIID) != tigID {
				outside[o.BIID] = true
			}
		}
	}

	// Step 3+4: place each outside read, accept by error threshold, union
	// verified intervals, and record junction evidence.
	var begins, ends []tigintervals.TigPos
	var junctions []junctionEvidence
	for readID := range outside {
		ps := placement.PlaceReadUsingOverlaps(ri, cache, tv, tigID, readID, placement.Opts{Mode: placement.All, MaxErate: threshold})
		for _, p := range ps {
			if p.Erate > threshold {
				continue
			}
			begins = append(begins, tigintervals.TigPos(p.Verified.Begin))
			ends = append(ends, tigintervals.TigPos(p.Verified.End))
			if p.FCoverage < 1 {
				junctions = append(junctions, junctionEvidenceFor(readID, p))
			}
		}
	}

	// Step 5: collapse and filter regions.
	regions := tigintervals.CollapseByDepth(begins, ends)
	regions = tigintervals.FilterByMinDepth(regions, SpuriousCoverageThreshold)
	regions = snapToAnchors(regions, u, opts.MinOverlap)
	regions = dropSingleSpanned(regions, u)

	return &regionPlan{tigID: tigID, regions: regions, junctions: junctions, ejects: computeEjects(regions, u, opts)}
}

// junctionEvidenceFor derives which end of the read's partial coverage is
// unsupported, the signature of a junction.
func junctionEvidenceFor(readID uint32, p placement.Placement) junctionEvidence {
	return junctionEvidence{read: readID, end: p.NForward >= p.NReverse, weight: 1}
}

// snapToAnchors moves each region's boundaries to the nearest read
// endpoint that keeps the region anchored by at least minOverlap/2 on
// both sides.
func snapToAnchors(regions []tigintervals.Region, u *tig.Unitig, minOverlap int32) []tigintervals.Region {
	anchor := minOverlap / 2
	out := regions[:0]
	for _, r := range regions {
		lo, hi := r.Begin, r.End
		for _, rd := range u.Reads() {
			if tigintervals.TigPos(rd.Min()) < lo && lo-tigintervals.TigPos(rd.Min()) <= tigintervals.TigPos(anchor) {
				lo = tigintervals.TigPos(rd.Min())
			}
			if tigintervals.TigPos(rd.Max()) > hi && tigintervals.TigPos(rd.Max())-hi <= tigintervals.TigPos(anchor) {
				hi = tigintervals.TigPos(rd.Max())
			}
		}
		if hi > lo {
			out = append(out, tigintervals.Region{Begin: lo, End: hi, Depth: r.Depth})
		}
	}
	return out
}

// dropSingleSpanned discards regions fully contained within a single
// read's own span.
func dropSingleSpanned(regions []tigintervals.Region, u *tig.Unitig) []tigintervals.Region {
	out := regions[:0]
	for _, r := range regions {
		spanned := false
		for _, rd := range u.Reads() {
			if tigintervals.TigPos(rd.Min()) <= r.Begin && tigintervals.TigPos(rd.Max()) >= r.End {
				spanned = true
				break
			}
		}
		if !spanned {
			out = append(out, r)
		}
	}
	return out
}

// computeEjects marks reads that are fully inside a repeat interval and
// anchored by less than minOverlap/2 on both sides.
func computeEjects(regions []tigintervals.Region, u *tig.Unitig, opts Opts) map[uint32]bool {
	anchor := tigintervals.TigPos(opts.MinOverlap / 2)
	ejects := make(map[uint32]bool)
	for _, r := range u.Reads() {
		for _, region := range regions {
			lo, hi := tigintervals.TigPos(r.Min()), tigintervals.TigPos(r.Max())
			if lo >= region.Begin && hi <= region.End {
				if lo-region.Begin < anchor || region.End-hi < anchor {
					ejects[r.ID] = true
				}
			}
		}
	}
	return ejects
}

// applySplit runs serially, one tig at a time, and each TigVector call it
// makes takes the TigVector lock itself: count junction evidence, split
// around confirmed junctions, tag repeat tigs, and eject anchor-starved
// reads.
func applySplit(tv *tig.TigVector, tigID uint32, p *regionPlan, opts Opts) {
	u, ok := tv.Get(tigID)
	if !ok {
		return
	}

	votes := make(map[uint32]int)
	for _, j := range p.junctions {
		votes[j.read] += j.weight
	}
	var junctionReads []uint32
	for read, weight := range votes {
		w := weight
		if isRegionEndpoint(read, u, p.regions) {
			w += RegionEndWeight
		}
		if w >= IntersectNeededToBreak {
			junctionReads = append(junctionReads, read)
		}
	}
	sort.Slice(junctionReads, func(i, j int) bool { return junctionReads[i] < junctionReads[j] })

	if len(junctionReads) > 0 {
		splitAt(tv, u, junctionReads, opts)
	}

	for readID := range p.ejects {
		tv.RemoveRead(readID)
		log.Debug.Printf("repeat: ejected read %d from tig %d", readID, tigID)
	}
}

func isRegionEndpoint(read uint32, u *tig.Unitig, regions []tigintervals.Region) bool {
	for _, r := range u.Reads() {
		if r.ID != read {
			continue
		}
		for _, region := range regions {
			if tigintervals.TigPos(r.Min()) == region.Begin || tigintervals.TigPos(r.Max()) == region.End {
				return true
			}
		}
	}
	return false
}

// splitAt partitions u's reads around the sorted junction reads into new
// tigs, flagging a new tig isRepeat if it holds more
// junction-region reads than unique reads, and shattering into singletons
// if ShatterRepeats is set.
func splitAt(tv *tig.TigVector, u *tig.Unitig, junctionReads []uint32, opts Opts) {
	cutSet := make(map[uint32]bool, len(junctionReads))
	for _, r := range junctionReads {
		cutSet[r] = true
	}

	reads := append([]tig.Read(nil), u.Reads()...)
	sort.Slice(reads, func(i, j int) bool { return reads[i].Min() < reads[j].Min() })

	var groups [][]tig.Read
	var cur []tig.Read
	for _, r := range reads {
		cur = append(cur, r)
		if cutSet[r.ID] {
			groups = append(groups, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) <= 1 {
		return
	}

	tv.DeleteTig(u.ID())
	for _, g := range groups {
		repeatCount, uniqueCount := 0, 0
		for _, r := range g {
			if cutSet[r.ID] {
				repeatCount++
			} else {
				uniqueCount++
			}
		}
		isRepeat := repeatCount > uniqueCount

		if isRepeat && opts.ShatterRepeats {
			for _, r := range g {
				nt := tv.CreateTig()
				tv.AddRead(nt.ID(), tig.Read{ID: r.ID, Bgn: 0, End: r.Max() - r.Min()}, false)
			}
			continue
		}

		nt := tv.CreateTig()
		for _, r := range g {
			tv.AddRead(nt.ID(), r, false)
		}
		nt.Flags.Repeat = isRepeat
		nt.Sort()
	}
}
