// Package overlapcache loads the external overlap store into an in-memory,
// per-read-indexed, budget-constrained arena: where a columnar record
// reader streams fixed-size blocks through a bounded recordio pipeline,
// OverlapCache streams per-read overlap blocks through a single
// fixed-size arena, trading unmarshal cost for a hard memory ceiling.
package overlapcache

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/bogart/bogartsimd"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/readinfo"
)

// errBits is the width reserved for the inverted-evalue component of a
// selection score: score = (length << errBits) | (^evalue
// & errMask).
const errBits = 12

const errMask = 1<<errBits - 1

// Overlap is a single cached, budget-surviving overlap edge, already
// symmetrized: an Overlap{A, B, ...} in the cache has a twin
// Overlap{B, A, ...} with hangs reversed per the flip rules, unless the
// twin scored below B's acceptance threshold, in which case A's record is
// kept on its own.
type Overlap struct {
	BIID    uint32
	AHang   int32
	BHang   int32
	Evalue  uint32
	Flipped bool
}

// score ranks overlaps for the per-read top-maxPer selection: longer wins;
// among equal lengths, lower evalue wins.
func score(length int32, evalue uint32) uint64 {
	if length < 0 {
		length = 0
	}
	return uint64(length)<<errBits | uint64(^evalue&errMask)
}

// Opts configures Build's budgeting pass.
type Opts struct {
	// MemLimitBytes is the total memory available to the overlap arena,
	// after the caller has already subtracted fixed overhead (ReadInfo, BOG
	// pointers, tig storage, error profiles, output buffers).
	MemLimitBytes uint64
	// GenomeSize is the expected genome size in bases, used to derive
	// minPer.
	GenomeSize uint64
	// MaxEvalue and MinOverlap are the fixed quality filters applied before
	// budgeting.
	MaxEvalue  uint32
	MinOverlap int32
	// DiagPrefix, if non-empty, turns on the four symmetrization side logs
	// (DiagPrefix+".non-symmetric-overlaps" etc.). Empty disables them.
	DiagPrefix string
}

// Diagnostics summarizes the soft-filtering decisions Build made, enough
// to explain why a read ended up with fewer overlaps than its raw store
// count.
type Diagnostics struct {
	NumReads           uint32
	MaxPer             uint32
	NumDroppedLowScore uint32
	NumTwinsAdded      uint32
}

// Diagnostics returns the counts gathered while building c.
func (c *Cache) Diagnostics() Diagnostics { return c.diag }

// diagLog holds the four symmetrization side-log files opened when
// Opts.DiagPrefix is set, matching the direct fmt.Fprintf-to-file style
// used elsewhere in this codebase for ad hoc diagnostic output.
type diagLog struct {
	files   [4]*os.File
	writers [4]*bufio.Writer
}

const (
	diagOverlaps = iota
	diagErrorRates
	diagWeakDropped
	diagAdded
)

var diagSuffix = [4]string{
	diagOverlaps:    ".non-symmetric-overlaps",
	diagErrorRates:  ".non-symmetric-error-rates",
	diagWeakDropped: ".non-symmetric-weak-dropped",
	diagAdded:       ".non-symmetric-added",
}

func openDiagLog(prefix string) (*diagLog, error) {
	if prefix == "" {
		return nil, nil
	}
	d := &diagLog{}
	for i, suffix := range diagSuffix {
		f, err := os.Create(prefix + suffix)
		if err != nil {
			d.close()
			return nil, errors.E(err, "overlapcache: opening diagnostic log", suffix)
		}
		d.files[i] = f
		d.writers[i] = bufio.NewWriter(f)
	}
	return d, nil
}

func (d *diagLog) logf(kind int, format string, args ...interface{}) {
	if d == nil {
		return
	}
	fmt.Fprintf(d.writers[kind], format, args...)
}

func (d *diagLog) close() {
	if d == nil {
		return
	}
	for i, w := range d.writers {
		if w != nil {
			w.Flush()
		}
		if d.files[i] != nil {
			d.files[i].Close()
		}
	}
}

const overlapRecordSize = 24 // BIID, AHang, BHang, Evalue, Flipped, padding

// insertion is a queued twin overlap awaiting the arena rebuild that adds
// it to read at's span.
type insertion struct {
	at uint32
	ov Overlap
}

// Cache is the budget-constrained, symmetrized overlap arena. All reads
// are served from the same pre-sized arena: overlapsFor never allocates.
type Cache struct {
	ri  *readinfo.ReadInfo
	// arena holds every read's overlap records back to back; offsets[id] is
	// the start of read id's slice, offsets[id+1] its end.
	arena   []Overlap
	offsets []uint32

	minPer uint32
	maxPer uint32
	diag   Diagnostics
}

// OverlapsFor returns read id's overlaps, in canonical order (sorted by
// BIID then Flipped), as established by Build's symmetrization pass.
func (c *Cache) OverlapsFor(id uint32) []Overlap {
	if id == 0 || int(id)+1 >= len(c.offsets) {
		return nil
	}
	return c.arena[c.offsets[id]:c.offsets[id+1]]
}

// MaxPer returns the per-read cap chosen by the budgeting pass.
func (c *Cache) MaxPer() uint32 { return c.maxPer }

// Build loads every read's overlaps from store, filters and budgets them,
// symmetrizes the survivors, and returns a ready-to-query Cache.
func Build(ri *readinfo.ReadInfo, store ovlstore.Store, opts Opts) (*Cache, error) {
	counts := store.NumOverlapsPerRead()
	numReads := ri.NumReads()
	if uint32(len(counts)) < numReads {
		// Reads past the end of the store's count table have no overlaps.
		padded := make([]uint32, numReads)
		copy(padded, counts)
		counts = padded
	}

	minPer := uint32(2 * ri.NumBases() / maxu64(opts.GenomeSize, 1))
	maxPer, err := computeBudget(counts, numReads, minPer, opts.MemLimitBytes)
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("overlapcache: minPer=%d maxPer=%d", minPer, maxPer)

	c := &Cache{ri: ri, minPer: minPer, maxPer: maxPer}
	c.diag.NumReads = numReads
	c.diag.MaxPer = maxPer

	diag, err := openDiagLog(opts.DiagPrefix)
	if err != nil {
		return nil, err
	}
	defer diag.close()

	// Load and per-read-filter, one goroutine per read; each read writes
	// only to its own scratch slice, so no locking is needed here.
	filtered := make([][]Overlap, numReads+1)
	thresholds := make([]uint64, numReads+1)
	trimmedAtCutoff := make([]int, numReads+1)
	var loadErr errors.Once
	_ = traverse.Each(int(numReads), func(i int) error {
		id := uint32(i + 1)
		n := int(counts[id-1])
		if n == 0 {
			return nil
		}
		raw := make([]ovlstore.Overlap, n)
		got, err := store.LoadOverlapsForRead(id, raw, n)
		if err != nil {
			loadErr.Set(errors.E(err, "overlapcache: loading overlaps for read", id))
			return nil
		}
		kept, threshold, tied := filterRead(ri, id, raw[:got], opts, maxPer)
		filtered[id] = kept
		thresholds[id] = threshold
		trimmedAtCutoff[id] = tied
		return nil
	})
	if err := loadErr.Err(); err != nil {
		return nil, err
	}
	for _, n := range trimmedAtCutoff {
		c.diag.NumDroppedLowScore += uint32(n)
	}

	total := uint32(0)
	for _, k := range filtered {
		total += uint32(len(k))
	}
	// Symmetrization can add up to one twin per surviving record; the
	// arena is given capacity for that worst case up front (insert still
	// rebuilds the arena into a fresh slice).
	c.arena = make([]Overlap, total, 2*total)
	c.offsets = make([]uint32, numReads+2)
	off := uint32(0)
	for id := uint32(1); id <= numReads; id++ {
		c.offsets[id] = off
		copy(c.arena[off:], filtered[id])
		off += uint32(len(filtered[id]))
	}
	c.offsets[numReads+1] = off
	c.arena = c.arena[:off]

	if err := c.symmetrize(thresholds, diag); err != nil {
		return nil, err
	}
	return c, nil
}

func maxu64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// computeBudget runs the iterative maxPer search: scan per-read counts,
// count how many overlaps would survive at the current maxPer, and
// adjust maxPer up or down to converge on the memory budget.
func computeBudget(counts []uint32, numReads uint32, minPer uint32, memLimitBytes uint64) (uint32, error) {
	budget := memLimitBytes / overlapRecordSize
	if budget == 0 {
		return 0, errors.E("overlapcache: memory budget leaves no room for overlaps")
	}

	maxPer := budget / uint64(maxu32(numReads, 1))
	for {
		var total uint64
		var numAbove uint64
		for i := uint32(0); i < numReads; i++ {
			n := uint64(counts[i])
			if n > maxPer {
				total += maxPer
				numAbove++
			} else {
				total += n
			}
		}
		if total > budget {
			if maxPer == 0 {
				break
			}
			maxPer--
			continue
		}
		free := budget - total
		if numAbove == 0 || free == 0 {
			break
		}
		inc := free / numAbove
		if inc == 0 {
			break
		}
		maxPer += inc
	}
	if maxPer < uint64(minPer) {
		return 0, errors.E("overlapcache: overlap budget too small to satisfy minPer", "maxPer", maxPer, "minPer", minPer)
	}
	return uint32(maxPer), nil
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// filterRead applies the per-read filtering pipeline: dedupe by
// BIID, drop low-quality/deleted-target overlaps, and keep only the top
// maxPer by score. It returns the survivors (unsorted), the minimum
// accepted score (used later during symmetrization to decide whether a
// missing twin should be queued for insertion or simply dropped), and,
// when the maxPer cap trims the list, the number of candidates scoring at
// or below the lowest kept score other than the kept one at the boundary:
// every candidate the cap discarded, plus any other kept candidate that
// tied that lowest score. It is 0 when nothing is trimmed.
func filterRead(ri *readinfo.ReadInfo, a uint32, raw []ovlstore.Overlap, opts Opts, maxPer uint32) ([]Overlap, uint64, int) {
	best := make(map[uint32]ovlstore.Overlap, len(raw))
	for _, o := range raw {
		if ri.IsDeleted(o.BIID) || o.Evalue > opts.MaxEvalue {
			continue
		}
		length := ri.OverlapLength(a, o.BIID, o.AHang, o.BHang)
		if length < opts.MinOverlap {
			continue
		}
		cur, ok := best[o.BIID]
		if !ok || betterOverlap(ri, a, o, cur) {
			best[o.BIID] = o
		}
	}

	type scored struct {
		o Overlap
		s uint64
	}
	all := make([]scored, 0, len(best))
	for b, o := range best {
		length := ri.OverlapLength(a, b, o.AHang, o.BHang)
		all = append(all, scored{Overlap{b, o.AHang, o.BHang, o.Evalue, o.Flipped}, score(length, o.Evalue)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].s > all[j].s })

	fullScores := make([]uint64, len(all))
	for i, s := range all {
		fullScores[i] = s.s
	}

	var tied int
	if uint32(len(all)) > maxPer {
		cutoff := all[maxPer-1].s
		tied = bogartsimd.CountAtOrBelow(fullScores, cutoff) - 1 // exclude the kept one at the boundary
		all = all[:maxPer]
	}

	kept := make([]Overlap, len(all))
	scores := make([]uint64, len(all))
	for i, s := range all {
		kept[i] = s.o
		scores[i] = s.s
	}
	var threshold uint64
	if len(scores) > 0 {
		_, threshold = bogartsimd.MinScoreIndex(scores)
	}
	return kept, threshold, tied
}

// betterOverlap reports whether candidate beats incumbent as the record to
// keep for a duplicate (A,B) pair: lower error rate wins; ties prefer
// unflipped; further ties prefer longer.
func betterOverlap(ri *readinfo.ReadInfo, a uint32, candidate, incumbent ovlstore.Overlap) bool {
	if candidate.Evalue != incumbent.Evalue {
		return candidate.Evalue < incumbent.Evalue
	}
	if candidate.Flipped != incumbent.Flipped {
		return !candidate.Flipped
	}
	cl := ri.OverlapLength(a, candidate.BIID, candidate.AHang, candidate.BHang)
	il := ri.OverlapLength(a, incumbent.BIID, incumbent.AHang, incumbent.BHang)
	return cl > il
}

// symmetrize runs the symmetrization pass over the already budgeted,
// arena-packed overlap set: every kept A->B overlap gets a matching B->A
// twin inserted if B doesn't already have one.
func (c *Cache) symmetrize(thresholds []uint64, diag *diagLog) error {
	numReads := uint32(len(c.offsets) - 2)

	// Sort each read's slice by BIID so binary search can find twins.
	for id := uint32(1); id <= numReads; id++ {
		s := c.slice(id)
		sort.Slice(s, func(i, j int) bool {
			if s[i].BIID != s[j].BIID {
				return s[i].BIID < s[j].BIID
			}
			return !s[i].Flipped && s[j].Flipped
		})
	}

	var queue []insertion

	for a := uint32(1); a <= numReads; a++ {
		sa := c.slice(a)
		for i := range sa {
			o := &sa[i]
			b := o.BIID
			twinIdx := findTwin(c.slice(b), a, o.Flipped)
			if twinIdx >= 0 {
				sb := c.slice(b)
				if o.Evalue != sb[twinIdx].Evalue {
					diag.logf(diagErrorRates, "%d\t%d\t%d\t%d\n", a, b, o.Evalue, sb[twinIdx].Evalue)
				}
				mn := minEvalue(o.Evalue, sb[twinIdx].Evalue)
				o.Evalue = mn
				sb[twinIdx].Evalue = mn
				continue
			}
			// No twin on B's side: either it was filtered out or never
			// kept. Decide based on B's acceptance threshold.
			diag.logf(diagOverlaps, "%d\t%d\n", a, b)
			length := c.reverseLength(a, b, *o)
			s := score(length, o.Evalue)
			if b <= numReads && s >= thresholds[b] {
				queue = append(queue, insertion{b, reverseOverlap(a, *o)})
				diag.logf(diagAdded, "%d\t%d\t%d\n", a, b, o.Evalue)
				c.diag.NumTwinsAdded++
			} else {
				// Genuinely below B's bar: the original stands alone and
				// is kept as-is (a one-sided overlap is still useful for
				// placement).
				diag.logf(diagWeakDropped, "%d\t%d\t%d\n", a, b, o.Evalue)
				c.diag.NumDroppedLowScore++
			}
		}
	}

	if len(queue) > 0 {
		c.insert(queue)
	}

	for id := uint32(1); id <= numReads; id++ {
		s := c.slice(id)
		sort.Slice(s, func(i, j int) bool {
			if s[i].BIID != s[j].BIID {
				return s[i].BIID < s[j].BIID
			}
			return !s[i].Flipped && s[j].Flipped
		})
	}
	return nil
}

// slice returns a mutable view of read id's current arena span.
func (c *Cache) slice(id uint32) []Overlap {
	if id == 0 || int(id)+1 >= len(c.offsets) {
		return nil
	}
	return c.arena[c.offsets[id]:c.offsets[id+1]]
}

// findTwin binary-searches b's (BIID-sorted) overlap list for an entry
// pointing back at a with the matching flip.
func findTwin(bs []Overlap, a uint32, flipped bool) int {
	lo := sort.Search(len(bs), func(i int) bool { return bs[i].BIID >= a })
	for i := lo; i < len(bs) && bs[i].BIID == a; i++ {
		if bs[i].Flipped == flipped {
			return i
		}
	}
	return -1
}

func minEvalue(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// reverseLength recomputes the overlap length as seen from B's side; the
// hangs are symmetric under negation so the length is identical, but this
// keeps the computation anchored at the definition in readinfo.
func (c *Cache) reverseLength(a, b uint32, o Overlap) int32 {
	ra, rb := reverseHangs(o)
	return c.ri.OverlapLength(b, a, ra, rb)
}

// reverseOverlap produces B's-side twin of an (a -> o.BIID) record.
func reverseOverlap(a uint32, o Overlap) Overlap {
	ra, rb := reverseHangs(o)
	return Overlap{BIID: a, AHang: ra, BHang: rb, Evalue: o.Evalue, Flipped: o.Flipped}
}

// reverseHangs computes B's-side hangs from A's-side record: for an
// unflipped overlap each hang simply negates in place (B's frame runs the
// same direction as A's); for a flipped overlap (B's strand reversed
// relative to A) the hang roles swap ends without negating.
func reverseHangs(o Overlap) (aHang, bHang int32) {
	if !o.Flipped {
		return -o.AHang, -o.BHang
	}
	return o.BHang, o.AHang
}

// insert applies queued twin insertions by rebuilding the arena into a
// fresh slice: each read's existing overlaps are copied over followed by
// whatever twins queue holds for it, so every read's span grows in a
// single linear pass rather than shifting later reads' spans one at a
// time.
func (c *Cache) insert(queue []insertion) {
	sort.Slice(queue, func(i, j int) bool { return queue[i].at < queue[j].at })

	byRead := make(map[uint32][]Overlap)
	for _, q := range queue {
		byRead[q.at] = append(byRead[q.at], q.ov)
	}

	numReads := uint32(len(c.offsets) - 2)
	grown := make([]Overlap, 0, len(c.arena)+len(queue))
	newOffsets := make([]uint32, len(c.offsets))
	for id := uint32(1); id <= numReads; id++ {
		newOffsets[id] = uint32(len(grown))
		grown = append(grown, c.slice(id)...)
		grown = append(grown, byRead[id]...)
	}
	newOffsets[numReads+1] = uint32(len(grown))
	c.arena = grown
	c.offsets = newOffsets
}
