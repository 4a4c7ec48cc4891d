// Package bestoverlapgraph computes, for every read, the best dovetail
// edge at each end and the best containing overlap, applying
// the error-rate cutoff and the lopsided/spur/coverageGap quality filters.
// No highError filter is applied: Opts.DeviationSD and
// Opts.EnableHighError are accepted but not read. Its shape follows a per-read best-candidate scan: a
// single pass builds per-read winners, then a separate pass derives the
// population-level cutoff and filter flags.
package bestoverlapgraph

import (
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/readinfo"
)

// End identifies one end of a read.
type End int

const (
	End5 End = iota
	End3
)

// BestEdge is the best-scoring dovetail overlap at one end of a read.
type BestEdge struct {
	BIID    uint32
	AHang   int32
	BHang   int32
	Evalue  uint32
	Flipped bool
	Length  int32
}

// BestContainer is the lowest-error overlap in which some other read fully
// contains this one.
type BestContainer struct {
	BIID    uint32
	AHang   int32
	BHang   int32
	Evalue  uint32
	Flipped bool
	Length  int32
}

// CoverageGapPolicy decides what a read's interior coverage gap means.
// The four cases (none/uncovered/chimer/deadend) are represented here as
// an interface rather than four near-duplicate code paths, so
// BestOverlapGraph.Build stays a single
// straight-line pass regardless of which policy is configured.
type CoverageGapPolicy interface {
	// Classify is called once per uncovered gap in a read's overlap
	// coverage, including a gap at either end of the read; it reports
	// whether the read should be tagged chimeric.
	Classify(read uint32, gapBegin, gapEnd int32, readLen int32) (chimeric bool)
}

// NoCoverageGapPolicy disables coverage-gap detection entirely: no read is
// ever flagged.
type NoCoverageGapPolicy struct{}

func (NoCoverageGapPolicy) Classify(uint32, int32, int32, int32) bool { return false }

// UncoveredGapPolicy flags any gap as chimeric, regardless of its position
// (interior or at an end) or size.
type UncoveredGapPolicy struct{}

func (UncoveredGapPolicy) Classify(uint32, int32, int32, int32) bool { return true }

// ChimerGapPolicy flags a gap as chimeric only when it sits strictly in the
// read's interior (not touching either end), which is the classic
// chimeric-read signature: two unrelated fragments joined with no
// supporting overlap at the junction.
type ChimerGapPolicy struct{}

func (ChimerGapPolicy) Classify(_ uint32, gapBegin, gapEnd, readLen int32) bool {
	return gapBegin > 0 && gapEnd < readLen
}

// DeadEndGapPolicy flags a gap only when it touches one of the read's ends,
// marking a read whose overlap support simply runs out rather than one
// stitched from two sources.
type DeadEndGapPolicy struct{}

func (DeadEndGapPolicy) Classify(_ uint32, gapBegin, gapEnd, readLen int32) bool {
	return gapBegin == 0 || gapEnd == readLen
}

// LopsidedAction controls what happens to a read whose best-5' and
// best-3' edge lengths differ by more than lopsidedDiff percent.
type LopsidedAction int

const (
	// LopsidedKeep leaves the read's edges untouched; it is just tagged.
	LopsidedKeep LopsidedAction = iota
	// LopsidedNoSeed retains the edges and tags the read; seeding does not
	// consult the tag, so the read remains eligible as a seed.
	LopsidedNoSeed
	// LopsidedNoBest suppresses the read's best edges entirely.
	LopsidedNoBest
)

// Opts configures Build.
type Opts struct {
	GraphErate   float64 // user-supplied ceiling on the seeding error rate
	MaxErate     float64 // absolute ceiling, never exceeded regardless of percentile
	Percentile   float64 // fallback percentile used when the median is zero (default 0.90)
	ForceErate   float64 // if > 0, short-circuits percentile computation entirely
	DeviationSD  float64 // highError deviation in sigmas; not read by Build
	EnableHighError bool // not read by Build: no highError filter is applied
	LopsidedDiffPct float64 // lopsided: percent length difference that triggers the filter
	LopsidedAction  LopsidedAction
	EnableLopsided  bool
	SpurDepth    int
	EnableSpur   bool
	CoverageGap  CoverageGapPolicy // nil is equivalent to NoCoverageGapPolicy
}

// Graph is the best-overlap graph: one record per read holding its best
// edges, best container, and the mutable classification flags later
// passes (orphan merging, repeat splitting) set.
type Graph struct {
	ri     *readinfo.ReadInfo
	cache  *overlapcache.Cache
	opts   Opts
	cutoff uint32 // chosen evalue cutoff for seeding, after percentile/clamp

	bestEdge      [][2]*BestEdge
	bestContainer []*BestContainer
	incoming      [][2]uint32 // count of best edges landing on (read,end), post-cutoff

	contained  []bool
	spur       []bool
	bubble     []bool
	orphan     []bool
	backbone   []bool
	lopsided   []bool
	chimeric   []bool
}

// Build computes the best-overlap graph for every read in ri, consulting
// cache for each read's candidate overlaps.
func Build(ri *readinfo.ReadInfo, cache *overlapcache.Cache, opts Opts) *Graph {
	if opts.CoverageGap == nil {
		opts.CoverageGap = NoCoverageGapPolicy{}
	}
	n := ri.NumReads()
	g := &Graph{
		ri:            ri,
		cache:         cache,
		opts:          opts,
		bestEdge:      make([][2]*BestEdge, n+1),
		bestContainer: make([]*BestContainer, n+1),
		incoming:      make([][2]uint32, n+1),
		contained:     make([]bool, n+1),
		spur:          make([]bool, n+1),
		bubble:        make([]bool, n+1),
		orphan:        make([]bool, n+1),
		backbone:      make([]bool, n+1),
		lopsided:      make([]bool, n+1),
		chimeric:      make([]bool, n+1),
	}

	var bestErates []float64
	for id := uint32(1); id <= n; id++ {
		if ri.IsDeleted(id) {
			continue
		}
		g.scanRead(id)
		for _, e := range g.bestEdge[id] {
			if e != nil {
				bestErates = append(bestErates, float64(e.Evalue))
			}
		}
	}

	g.cutoff = chooseCutoff(bestErates, opts)
	log.Debug.Printf("bestoverlapgraph: cutoff evalue=%d (percentile=%.2f forceErate=%.4f)", g.cutoff, opts.Percentile, opts.ForceErate)

	// Drop edges over cutoff for every read first, then derive the
	// incoming-edge index from what survives: the spur check below needs
	// to see the final, post-cutoff edge set for every read, not just the
	// one it's currently examining.
	for id := uint32(1); id <= n; id++ {
		g.applyCutoff(id)
	}
	for id := uint32(1); id <= n; id++ {
		for _, e := range g.bestEdge[id] {
			if e != nil {
				g.incoming[e.BIID][targetEnd(endOf(g, id, e), e.Flipped)]++
			}
		}
	}
	for id := uint32(1); id <= n; id++ {
		g.applyFilters(id)
	}
	return g
}

// endOf reports which of id's two best-edge slots holds e.
func endOf(g *Graph, id uint32, e *BestEdge) End {
	if g.bestEdge[id][End5] == e {
		return End5
	}
	return End3
}

// otherEnd returns the end opposite e.
func otherEnd(e End) End {
	if e == End5 {
		return End3
	}
	return End5
}

// targetEnd computes which end of B a dovetail edge touches, given the end
// of A it left from and whether the overlap is flipped: an unflipped edge
// lands on B's opposite end; a flipped one lands on the same end.
func targetEnd(fromEnd End, flipped bool) End {
	if flipped {
		return fromEnd
	}
	return otherEnd(fromEnd)
}

// scanRead partitions id's overlaps into container candidates and
// per-end dovetail candidates, keeping the best of each.
func (g *Graph) scanRead(id uint32) {
	alen := int32(g.ri.Length(id))
	var bestC *BestContainer
	var be [2]*BestEdge

	for _, o := range g.cache.OverlapsFor(id) {
		length := g.ri.OverlapLength(id, o.BIID, o.AHang, o.BHang)
		// B contains A when A's hang points inward on both ends (A is the
		// shorter read entirely spanned by B): aHang <= 0 && bHang >= 0.
		if o.AHang <= 0 && o.BHang >= 0 {
			cand := &BestContainer{o.BIID, o.AHang, o.BHang, o.Evalue, o.Flipped, length}
			if bestC == nil || betterContainer(cand, bestC) {
				bestC = cand
			}
			continue
		}
		// A contains B when A's hang points outward on both ends: aHang >=
		// 0 && bHang <= 0. This is also not a dovetail overlap for A (A is
		// not extended by B at either end), so it contributes to neither
		// bestEdge nor bestContainer from A's side; B records it as its
		// own containment when B scans its own overlap list.
		if o.AHang >= 0 && o.BHang <= 0 {
			continue
		}
		end := dovetailEnd(o.AHang, o.BHang)
		cand := &BestEdge{o.BIID, o.AHang, o.BHang, o.Evalue, o.Flipped, length}
		if be[end] == nil || betterEdge(cand, be[end]) {
			be[end] = cand
		}
	}
	if bestC != nil {
		g.contained[id] = true
	}
	g.bestContainer[id] = bestC
	g.bestEdge[id] = be

	g.detectCoverageGap(id, alen)
}

// dovetailEnd classifies which end of A a dovetail overlap touches: a
// negative aHang means B extends past A's 5' end; a positive bHang means B
// extends past A's 3' end. Exactly one of the two should hold for a true
// dovetail; ties default to the 3' end.
func dovetailEnd(aHang, bHang int32) End {
	if aHang < 0 {
		return End5
	}
	return End3
}

// betterEdge reports whether candidate beats incumbent: best score wins,
// i.e. longer overlap, then lower error, matching the overlapcache
// selection score.
func betterEdge(candidate, incumbent *BestEdge) bool {
	if candidate.Length != incumbent.Length {
		return candidate.Length > incumbent.Length
	}
	return candidate.Evalue < incumbent.Evalue
}

// betterContainer reports whether candidate beats incumbent as A's best
// container: lowest error wins; ties prefer longer, then unflipped.
func betterContainer(candidate, incumbent *BestContainer) bool {
	if candidate.Evalue != incumbent.Evalue {
		return candidate.Evalue < incumbent.Evalue
	}
	if candidate.Length != incumbent.Length {
		return candidate.Length > incumbent.Length
	}
	return !candidate.Flipped && incumbent.Flipped
}

// detectCoverageGap looks for an interior span of id with no overlap
// coverage at all, and applies the configured CoverageGapPolicy if one is
// found.
func (g *Graph) detectCoverageGap(id uint32, alen int32) {
	ovs := g.cache.OverlapsFor(id)
	if len(ovs) == 0 || alen == 0 {
		return
	}
	type span struct{ lo, hi int32 }
	spans := make([]span, 0, len(ovs))
	for _, o := range ovs {
		lo := int32(0)
		if o.AHang > 0 {
			lo = o.AHang
		}
		hi := alen
		if o.BHang < 0 {
			hi = alen + o.BHang
		}
		if hi > lo {
			spans = append(spans, span{lo, hi})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	covered := int32(0)
	for _, s := range spans {
		if s.lo > covered {
			if g.opts.CoverageGap.Classify(id, covered, s.lo, alen) {
				g.chimeric[id] = true
			}
			covered = s.hi
			continue
		}
		if s.hi > covered {
			covered = s.hi
		}
	}
	if covered < alen {
		if g.opts.CoverageGap.Classify(id, covered, alen, alen) {
			g.chimeric[id] = true
		}
	}
}

// chooseCutoff picks the error-rate cutoff: a forced erate short-circuits
// percentile computation entirely; otherwise
// the median of bestErates is used, falling back to the configured
// percentile when the median is zero, then clamped by graphErate and
// maxErate.
func chooseCutoff(bestErates []float64, opts Opts) uint32 {
	if opts.ForceErate > 0 {
		return clampErate(opts.ForceErate, opts)
	}
	if len(bestErates) == 0 {
		return clampErate(opts.MaxErate, opts)
	}
	sorted := append([]float64(nil), bestErates...)
	sort.Float64s(sorted)

	median := percentileOf(sorted, 0.5)
	chosen := median
	if median == 0 {
		chosen = percentileOf(sorted, opts.Percentile)
	}
	return clampErate(chosen, opts)
}

func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clampErate(erate float64, opts Opts) uint32 {
	if opts.GraphErate > 0 && erate > opts.GraphErate {
		erate = opts.GraphErate
	}
	if opts.MaxErate > 0 && erate > opts.MaxErate {
		erate = opts.MaxErate
	}
	if erate < 0 {
		erate = 0
	}
	return uint32(erate)
}

// applyCutoff drops id's best edges if they exceed the chosen cutoff.
func (g *Graph) applyCutoff(id uint32) {
	be := g.bestEdge[id]
	for i, e := range be {
		if e != nil && e.Evalue > g.cutoff {
			g.bestEdge[id][i] = nil
		}
	}
}

// applyFilters applies the lopsided and spur filters once every read's best
// edges have survived (or not survived) the cutoff, and the incoming-edge
// index built from that final edge set is available.
func (g *Graph) applyFilters(id uint32) {
	if g.opts.EnableLopsided {
		g.applyLopsided(id)
	}
	if g.opts.EnableSpur {
		g.spur[id] = g.isSpurEnd(id, End5, g.opts.SpurDepth) || g.isSpurEnd(id, End3, g.opts.SpurDepth)
	}
}

// isSpurEnd reports whether id's end has no best edge of its own and no best
// edge from another read lands on it within depth hops walking out along the
// dovetail chain from the opposite end. depth <= 0 only checks id's own end.
func (g *Graph) isSpurEnd(id uint32, end End, depth int) bool {
	if g.bestEdge[id][end] != nil {
		return false
	}
	if g.incoming[id][end] > 0 {
		return false
	}
	cur, curEnd := id, otherEnd(end)
	for hop := 0; hop < depth; hop++ {
		edge := g.bestEdge[cur][curEnd]
		if edge == nil {
			break
		}
		next := edge.BIID
		nextEnd := targetEnd(curEnd, edge.Flipped)
		if g.incoming[next][nextEnd] > 1 {
			// more than just the edge we followed lands here: the chain
			// rejoins the rest of the graph before depth is exhausted.
			return false
		}
		cur, curEnd = next, otherEnd(nextEnd)
	}
	return true
}

// applyLopsided tags or edits id's edges when its two best edges have a
// drastically lopsided length ratio.
func (g *Graph) applyLopsided(id uint32) {
	e5, e3 := g.bestEdge[id][End5], g.bestEdge[id][End3]
	if e5 == nil || e3 == nil {
		return
	}
	longer, shorter := float64(e5.Length), float64(e3.Length)
	if longer < shorter {
		longer, shorter = shorter, longer
	}
	if longer == 0 {
		return
	}
	diffPct := (longer - shorter) / longer * 100
	if diffPct <= g.opts.LopsidedDiffPct {
		return
	}
	g.lopsided[id] = true
	switch g.opts.LopsidedAction {
	case LopsidedNoBest:
		g.bestEdge[id][End5] = nil
		g.bestEdge[id][End3] = nil
	case LopsidedNoSeed:
		// Edges are retained; only the lopsided tag (IsLopsided) is set,
		// and neither chunkgraph nor populate reads it.
	}
}

// BestEdgeAt returns read id's best overlap at end, if any.
func (g *Graph) BestEdgeAt(id uint32, end End) (BestEdge, bool) {
	e := g.bestEdge[id][end]
	if e == nil {
		return BestEdge{}, false
	}
	return *e, true
}

// BestContainerOf returns read id's best container overlap, if any.
func (g *Graph) BestContainerOf(id uint32) (BestContainer, bool) {
	c := g.bestContainer[id]
	if c == nil {
		return BestContainer{}, false
	}
	return *c, true
}

func (g *Graph) IsContained(id uint32) bool { return g.contained[id] }
func (g *Graph) IsSpur(id uint32) bool      { return g.spur[id] }
func (g *Graph) IsLopsided(id uint32) bool  { return g.lopsided[id] }
func (g *Graph) IsChimeric(id uint32) bool  { return g.chimeric[id] }

func (g *Graph) IsBubble(id uint32) bool    { return g.bubble[id] }
func (g *Graph) SetBubble(id uint32, v bool) { g.bubble[id] = v }

func (g *Graph) IsOrphan(id uint32) bool     { return g.orphan[id] }
func (g *Graph) SetOrphan(id uint32, v bool) { g.orphan[id] = v }

func (g *Graph) IsBackbone(id uint32) bool     { return g.backbone[id] }
func (g *Graph) SetBackbone(id uint32, v bool) { g.backbone[id] = v }

// Cutoff returns the chosen seeding error-rate cutoff, in the same scaled
// units as overlapcache.Overlap.Evalue.
func (g *Graph) Cutoff() uint32 { return g.cutoff }
