// Package orphan implements the orphan/bubble merger: for
// every small tig, search for a better home among the other tigs, and
// either merge it wholesale, scatter its reads individually, flag it as a
// bubble, or leave it alone. The parallel-search-then-serialized-mutation
// shape follows a sharded-scan pattern: many goroutines compute candidate
// merges concurrently; only the final application of a decision touches
// shared state, under one lock.
package orphan

import (
	"sort"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/placement"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// Opts configures Merge.
type Opts struct {
	ReportErrorLimit   float64 // erate cap used for candidate-target placement
	MinFCoverage       float64 // required fCoverage for terminal placements
	MinTargetCoverage  float64 // fraction of T's reads that must overlap T' to be a candidate target
	LengthRatioLo       float64 // lower bound of the acceptable T/T' length ratio
	LengthRatioHi       float64 // upper bound of the acceptable T/T' length ratio
}

// DefaultOpts returns the default length-ratio bracket.
func DefaultOpts() Opts {
	return Opts{LengthRatioLo: 0.33, LengthRatioHi: 3.0, MinTargetCoverage: 0.99}
}

// decision is the outcome of validating one (T, T') candidate pair.
type decision struct {
	tig          uint32
	target       uint32
	placements   map[uint32]placement.Placement // readID -> validated placement in target
	action       action
}

type action int

const (
	actionNone action = iota
	actionMerge
	actionPromiscuous
	actionBubble
)

// Merge runs the orphan/bubble merger over every tig in tv.
func Merge(ri *readinfo.ReadInfo, cache *overlapcache.Cache, bog *bestoverlapgraph.Graph, tv *tig.TigVector, opts Opts) {
	ids := tv.All()
	results := make([]*decision, len(ids))

	_ = traverse.Each(len(ids), func(i int) error {
		tigID := ids[i]
		u, ok := tv.Get(tigID)
		if !ok || u.NumReads() <= 1 {
			return nil
		}
		results[i] = evaluate(ri, cache, bog, tv, tigID, opts)
		return nil
	})

	var mergeLock sync.Mutex
	deleted := make(map[uint32]bool)
	for _, d := range results {
		if d == nil || d.action == actionNone {
			continue
		}
		if d.action == actionMerge && deleted[d.target] {
			// d's target was itself merged away earlier in this same
			// batch (e.g. T -> T' and T' -> T'' both chosen from the
			// same snapshot): applying this decision now would place
			// reads into a tig that no longer exists. Skip; T is left
			// unmerged by this call.
			continue
		}
		if d.action == actionPromiscuous {
			// Same guard for scattered reads: skip if any per-read target
			// was merged away earlier in this batch.
			skip := false
			for _, p := range d.placements {
				skip = skip || deleted[p.Tig]
			}
			if skip {
				continue
			}
		}
		mergeLock.Lock()
		apply(tv, bog, d)
		if d.action == actionMerge || d.action == actionPromiscuous {
			deleted[d.tig] = true
		}
		mergeLock.Unlock()
	}
}

// evaluate computes the candidate targets for tig T, validates each, and
// decides the action to take against the best one. Concurrency-safe:
// only reads TigVector state, never mutates it.
func evaluate(ri *readinfo.ReadInfo, cache *overlapcache.Cache, bog *bestoverlapgraph.Graph, tv *tig.TigVector, tigID uint32, opts Opts) *decision {
	u, ok := tv.Get(tigID)
	if !ok {
		return nil
	}
	targets := candidateTargets(cache, bog, tv, u, tigID, opts)
	if len(targets) == 0 {
		return nil
	}

	valid := make(map[uint32]map[uint32]placement.Placement)
	for _, t := range targets {
		placements, ok := validate(ri, cache, tv, u, t, opts)
		if ok {
			valid[t] = placements
		}
	}

	switch len(valid) {
	case 0:
		// "zero but first+last place" -> bubble, else leave unchanged.
		first, _ := u.FirstRead()
		last, _ := u.LastRead()
		for _, t := range targets {
			fp := placement.PlaceReadUsingOverlaps(ri, cache, tv, t, first.ID, placement.Opts{Mode: placement.All, MaxErate: opts.ReportErrorLimit})
			lp := placement.PlaceReadUsingOverlaps(ri, cache, tv, t, last.ID, placement.Opts{Mode: placement.All, MaxErate: opts.ReportErrorLimit})
			if len(fp) > 0 && len(lp) > 0 {
				return &decision{tig: tigID, action: actionBubble}
			}
		}
		return nil
	case 1:
		for t, placements := range valid {
			return &decision{tig: tigID, target: t, placements: placements, action: actionMerge}
		}
	}
	// multiple: promiscuous placement into the lowest-error target per read.
	merged := make(map[uint32]placement.Placement)
	for _, r := range u.Reads() {
		var best *placement.Placement
		var bestTarget uint32
		for t, placements := range valid {
			if p, ok := placements[r.ID]; ok {
				if best == nil || p.Erate < best.Erate {
					pp := p
					best = &pp
					bestTarget = t
				}
			}
		}
		if best != nil {
			merged[r.ID] = *best
			merged[r.ID].Tig = bestTarget
		}
	}
	return &decision{tig: tigID, placements: merged, action: actionPromiscuous}
}

// candidateTargets finds tigs T' such that at least MinTargetCoverage of
// T's non-contained reads have an overlap into T'.
func candidateTargets(cache *overlapcache.Cache, bog *bestoverlapgraph.Graph, tv *tig.TigVector, u *tig.Unitig, tigID uint32, opts Opts) []uint32 {
	votes := make(map[uint32]int)
	nonContained := 0
	for _, r := range u.Reads() {
		if bog.IsContained(r.ID) {
			continue
		}
		nonContained++
		seen := make(map[uint32]bool)
		for _, o := range cache.OverlapsFor(r.ID) {
			t := tv.TigOf(o.BIID)
			if t == 0 || t == tigID || seen[t] {
				continue
			}
			seen[t] = true
			votes[t]++
		}
	}
	var out []uint32
	for t, v := range votes {
		if nonContained == 0 {
			continue
		}
		if float64(v)/float64(nonContained) >= opts.MinTargetCoverage {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// validate performs the placement validation for one (T, T') candidate:
// terminal placements must satisfy coverage, orientation,
// order, and length-ratio checks; every internal read must then place
// within the terminal bracket.
func validate(ri *readinfo.ReadInfo, cache *overlapcache.Cache, tv *tig.TigVector, u *tig.Unitig, target uint32, opts Opts) (map[uint32]placement.Placement, bool) {
	first, ok1 := u.FirstRead()
	last, ok2 := u.LastRead()
	if !ok1 || !ok2 {
		return nil, false
	}

	fps := placement.PlaceReadUsingOverlaps(ri, cache, tv, target, first.ID, placement.Opts{Mode: placement.All, MaxErate: opts.ReportErrorLimit})
	lps := placement.PlaceReadUsingOverlaps(ri, cache, tv, target, last.ID, placement.Opts{Mode: placement.All, MaxErate: opts.ReportErrorLimit})
	if len(fps) == 0 || len(lps) == 0 {
		return nil, false
	}
	fp, lp := bestOf(fps), bestOf(lps)
	if fp.FCoverage < opts.MinFCoverage || lp.FCoverage < opts.MinFCoverage {
		return nil, false
	}
	tForward := first.Forward() == last.Forward()
	pForward := sameOrientation(fp, lp)
	if tForward != pForward {
		return nil, false
	}
	lo, hi := fp.Bgn, lp.End
	if lo > hi {
		lo, hi = lp.Bgn, fp.End
	}
	if hi <= lo {
		return nil, false
	}
	tLen := u.GetLength()
	placedLen := float64(hi - lo)
	if tLen > 0 {
		ratio := placedLen / float64(tLen)
		if ratio < opts.LengthRatioLo || ratio > opts.LengthRatioHi {
			return nil, false
		}
	}

	placements := map[uint32]placement.Placement{first.ID: fp, last.ID: lp}
	for _, r := range u.Reads() {
		if r.ID == first.ID || r.ID == last.ID {
			continue
		}
		ps := placement.PlaceReadUsingOverlaps(ri, cache, tv, target, r.ID, placement.Opts{Mode: placement.All, MaxErate: opts.ReportErrorLimit})
		if len(ps) == 0 {
			return nil, false
		}
		p := bestOf(ps)
		if p.Bgn < lo || p.End > hi {
			return nil, false
		}
		placements[r.ID] = p
	}
	return placements, true
}

func bestOf(ps []placement.Placement) placement.Placement {
	best := ps[0]
	for _, p := range ps[1:] {
		if p.FCoverage > best.FCoverage {
			best = p
		}
	}
	return best
}

func sameOrientation(fp, lp placement.Placement) bool { return fp.Bgn <= lp.Bgn }

// apply performs the mutation side of a decision under the caller's held
// merge lock.
func apply(tv *tig.TigVector, bog *bestoverlapgraph.Graph, d *decision) {
	switch d.action {
	case actionMerge:
		u, ok := tv.Get(d.tig)
		if !ok {
			return
		}
		for _, r := range u.Reads() {
			p, ok := d.placements[r.ID]
			if !ok {
				continue
			}
			if err := tv.AddRead(d.target, tig.Read{ID: r.ID, Bgn: p.Bgn, End: p.End}, false); err == nil {
				bog.SetOrphan(r.ID, true)
				bog.SetBackbone(r.ID, false)
			}
		}
		tv.DeleteTig(d.tig)
		if target, ok := tv.Get(d.target); ok {
			target.Sort()
		}
	case actionPromiscuous:
		u, ok := tv.Get(d.tig)
		if !ok {
			return
		}
		for _, r := range u.Reads() {
			p, ok := d.placements[r.ID]
			if !ok {
				continue
			}
			if err := tv.AddRead(p.Tig, tig.Read{ID: r.ID, Bgn: p.Bgn, End: p.End}, false); err == nil {
				bog.SetOrphan(r.ID, true)
			}
		}
		tv.DeleteTig(d.tig)
	case actionBubble:
		if u, ok := tv.Get(d.tig); ok {
			u.Flags.Bubble = true
			for _, r := range u.Reads() {
				bog.SetBubble(r.ID, true)
			}
		}
	}
	log.Debug.Printf("orphan: tig %d action=%d target=%d", d.tig, d.action, d.target)
}
