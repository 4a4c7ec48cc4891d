// Package cleanup implements the final classification and repair passes
// that run after orphan merging and repeat splitting:
// splitting tigs at coverage gaps, promoting stray reads to singletons,
// classifying weak tigs as unassembled, and detecting circular contigs.
package cleanup

import (
	"sort"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// SplitDiscontinuous walks every tig in coordinate order and splits it
// wherever consecutive reads do not overlap by at least minOverlap bases
//.
func SplitDiscontinuous(tv *tig.TigVector, minOverlap int32) {
	for _, id := range tv.All() {
		u, ok := tv.Get(id)
		if !ok {
			continue
		}
		u.Sort()
		reads := u.Reads()
		if len(reads) < 2 {
			continue
		}

		var groups [][]tig.Read
		cur := []tig.Read{reads[0]}
		for i := 1; i < len(reads); i++ {
			prevMax := cur[len(cur)-1].Max()
			gapFreeOverlap := prevMax - reads[i].Min()
			if gapFreeOverlap < minOverlap {
				groups = append(groups, cur)
				cur = nil
			}
			cur = append(cur, reads[i])
		}
		groups = append(groups, cur)
		if len(groups) <= 1 {
			continue
		}

		tv.DeleteTig(id)
		for _, g := range groups {
			nt := tv.CreateTig()
			for _, r := range g {
				tv.AddRead(nt.ID(), r, false)
			}
			nt.Sort()
		}
	}
}

// PromoteToSingleton creates a one-read tig for every read not currently
// placed in any tig.
func PromoteToSingleton(ri *readinfo.ReadInfo, tv *tig.TigVector) {
	n := ri.NumReads()
	for id := uint32(1); id <= n; id++ {
		if ri.IsDeleted(id) || tv.TigOf(id) != 0 {
			continue
		}
		nt := tv.CreateTig()
		tv.AddRead(nt.ID(), tig.Read{ID: id, Bgn: 0, End: int32(ri.Length(id))}, false)
	}
}

// UnassembledOpts configures ClassifyTigsAsUnassembled.
type UnassembledOpts struct {
	FewReadsNumber int
	TooShortLength int32
	SpanFraction   float64
	LowcovFraction float64
	LowcovDepth    int
}

// ClassifyTigsAsUnassembled marks every tig whose read count, length, span,
// or low-coverage fraction fails the configured thresholds.
func ClassifyTigsAsUnassembled(tv *tig.TigVector, opts UnassembledOpts) {
	for _, id := range tv.All() {
		u, ok := tv.Get(id)
		if !ok {
			continue
		}
		if u.NumReads() < opts.FewReadsNumber {
			u.Flags.Unassembled = true
			continue
		}
		if u.GetLength() < opts.TooShortLength {
			u.Flags.Unassembled = true
			continue
		}
		if spanned(u) < opts.SpanFraction {
			u.Flags.Unassembled = true
			continue
		}
		if lowCoverageFraction(u, opts.LowcovDepth) > opts.LowcovFraction {
			u.Flags.Unassembled = true
		}
	}
}

// spanned returns the fraction of the tig's length actually touched by
// some read (normally 1.0 unless splitDiscontinuous has not yet run).
func spanned(u *tig.Unitig) float64 {
	length := u.GetLength()
	if length == 0 {
		return 1
	}
	reads := append([]tig.Read(nil), u.Reads()...)
	sort.Slice(reads, func(i, j int) bool { return reads[i].Min() < reads[j].Min() })
	var covered int32
	var frontier int32
	for _, r := range reads {
		lo, hi := r.Min(), r.Max()
		if lo > frontier {
			frontier = lo
		}
		if hi > frontier {
			covered += hi - frontier
			frontier = hi
		}
	}
	return float64(covered) / float64(length)
}

// lowCoverageFraction returns the fraction of the tig's length covered by
// fewer than depth reads.
func lowCoverageFraction(u *tig.Unitig, depth int) float64 {
	length := u.GetLength()
	if length == 0 {
		return 0
	}
	type event struct {
		pos   int32
		delta int
	}
	var events []event
	for _, r := range u.Reads() {
		events = append(events, event{r.Min(), 1}, event{r.Max(), -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		return events[i].delta < events[j].delta
	})

	var low int32
	cov := 0
	prev := int32(0)
	for _, e := range events {
		if cov < depth && e.pos > prev {
			low += e.pos - prev
		}
		cov += e.delta
		prev = e.pos
	}
	return float64(low) / float64(length)
}

// FindCircularContigs tags a tig as circular if the best edge off its
// extending end points back to its own first read with consistent
// orientation. The edge's overlap length is not compared with the tig's
// own first-to-last overlap.
func FindCircularContigs(tv *tig.TigVector, bog *bestoverlapgraph.Graph) {
	for _, id := range tv.All() {
		u, ok := tv.Get(id)
		if !ok || u.NumReads() < 2 {
			continue
		}
		first, _ := u.FirstRead()
		last, _ := u.LastRead()

		end := bestoverlapgraph.End3
		if !last.Forward() {
			end = bestoverlapgraph.End5
		}
		edge, ok := bog.BestEdgeAt(last.ID, end)
		if !ok || edge.BIID != first.ID {
			continue
		}
		consistentOrientation := edge.Flipped == (first.Forward() != last.Forward())
		if consistentOrientation {
			u.Flags.Circular = true
		}
	}
}
