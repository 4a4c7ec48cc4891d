// Package tig implements the Unitig/TigVector data model: the
// mutable assembly-graph output structure that every later phase
// (populate, placement, orphan merging, repeat splitting, cleanup)
// builds and mutates. Its read/offset bookkeeping and coarse mutation
// lock follow a shard-plus-lock shape, generalized from a sharded hash
// map to a vector of mutable tigs guarded by one lock.
package tig

import (
	"math"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/readinfo"
)

// Read is one placed read within a Unitig. Orientation is encoded in the
// relation between Bgn and End: Bgn <= End means forward, Bgn > End means
// reverse, deriving strand from coordinate order rather than a separate
// flag.
type Read struct {
	ID       uint32
	Bgn, End int32
}

// Forward reports whether this read is placed in forward orientation.
func (r Read) Forward() bool { return r.Bgn <= r.End }

// Min and Max return the read's low and high tig-local coordinates
// regardless of orientation.
func (r Read) Min() int32 {
	if r.Bgn < r.End {
		return r.Bgn
	}
	return r.End
}
func (r Read) Max() int32 {
	if r.Bgn > r.End {
		return r.Bgn
	}
	return r.End
}

// Flags holds the boolean classification bits a Unitig accumulates over
// the course of the pipeline.
type Flags struct {
	Unassembled bool
	Bubble      bool
	Repeat      bool
	Circular    bool
}

// Unitig is one contiguous (pending splitDiscontinuous/repeat-splitting)
// assembly-graph node: an ordered set of placed reads.
type Unitig struct {
	id    uint32
	reads []Read
	sort_ bool // true once reads is known sorted by Min()

	arrivalRate float64
	windowSize  int32
	windows     []errWindow

	Flags Flags
}

// errWindow is one fixed-size bucket of the tig's error profile.
type errWindow struct {
	lo, hi     int32
	mean, sigma float64
}

// ID returns the tig's identifier, assigned by TigVector.CreateTig.
func (u *Unitig) ID() uint32 { return u.id }

// AddRead appends r to the tig. If verify is true, AddRead checks that r
// does not exactly duplicate an already-placed read id.
func (u *Unitig) AddRead(r Read, verify bool) error {
	if verify {
		for _, existing := range u.reads {
			if existing.ID == r.ID {
				return errors.E("tig: AddRead: read already placed in this tig", "read", r.ID, "tig", u.id)
			}
		}
	}
	u.reads = append(u.reads, r)
	u.sort_ = false
	return nil
}

// RemoveRead deletes read id from the tig, if present.
func (u *Unitig) RemoveRead(id uint32) {
	for i, r := range u.reads {
		if r.ID == id {
			u.reads = append(u.reads[:i], u.reads[i+1:]...)
			return
		}
	}
}

// Sort orders the tig's reads by increasing Min() coordinate.
func (u *Unitig) Sort() {
	sort.Slice(u.reads, func(i, j int) bool { return u.reads[i].Min() < u.reads[j].Min() })
	u.sort_ = true
}

// FirstRead and LastRead return the tig's lowest- and highest-coordinate
// reads. The tig must be sorted first.
func (u *Unitig) FirstRead() (Read, bool) {
	if len(u.reads) == 0 {
		return Read{}, false
	}
	return u.reads[0], true
}
func (u *Unitig) LastRead() (Read, bool) {
	if len(u.reads) == 0 {
		return Read{}, false
	}
	return u.reads[len(u.reads)-1], true
}

// NumReads returns the number of reads currently placed in the tig.
func (u *Unitig) NumReads() int { return len(u.reads) }

// Reads returns a read-only view of the tig's placed reads, in whatever
// order they were added unless Sort has been called.
func (u *Unitig) Reads() []Read { return u.reads }

// GetLength returns the tig's length: the maximum End/Bgn coordinate
// across all placed reads, or 0 if empty.
func (u *Unitig) GetLength() int32 {
	var max int32
	for _, r := range u.reads {
		if m := r.Max(); m > max {
			max = m
		}
	}
	return max
}

// PlaceFragWithBestEdge computes the predicted (bgn,end) of edge.BIID
// given that parent is already placed in this tig, by projecting the
// overlap's hangs through parent's current coordinate frame.
// end names which of parent's ends the edge was taken from; it is not
// used in the projection, which the hangs and flip alone determine.
func PlaceFragWithBestEdge(ri *readinfo.ReadInfo, parent Read, end bestoverlapgraph.End, edge bestoverlapgraph.BestEdge) (bgn, endCoord int32) {
	alen := int32(ri.Length(parent.ID))
	// In A's own frame (5'->3' of A): B's unflipped span is [aHang, alen+bHang).
	relBgn := edge.AHang
	relEnd := alen + edge.BHang

	if parent.Forward() {
		bgn = parent.Bgn + relBgn
		endCoord = parent.Bgn + relEnd
	} else {
		// Parent is reversed: its own 5'->3' frame runs from high to low
		// tig coordinate, so the same relative offsets subtract instead
		// of add.
		bgn = parent.Bgn - relBgn
		endCoord = parent.Bgn - relEnd
	}
	if edge.Flipped {
		bgn, endCoord = endCoord, bgn
	}
	return bgn, endCoord
}

// PlaceContainedRead computes the predicted (bgn,end) of a read contained
// in parent, given parent's current coordinate frame and the containment
// overlap's hangs. The projection is the same affine map as
// PlaceFragWithBestEdge; containment just guarantees the result falls
// entirely within parent's span instead of extending past either end.
func PlaceContainedRead(ri *readinfo.ReadInfo, parent Read, c bestoverlapgraph.BestContainer) (bgn, endCoord int32) {
	return PlaceFragWithBestEdge(ri, parent, bestoverlapgraph.End3, bestoverlapgraph.BestEdge{
		BIID: c.BIID, AHang: c.AHang, BHang: c.BHang, Evalue: c.Evalue, Flipped: c.Flipped, Length: c.Length,
	})
}

// ComputeArrivalRate estimates the tig's read arrival rate: reads per
// base, a coverage-density proxy.
func (u *Unitig) ComputeArrivalRate() float64 {
	length := u.GetLength()
	if length == 0 || len(u.reads) < 2 {
		return 0
	}
	return float64(len(u.reads)-1) / float64(length)
}

// ComputeErrorProfiles partitions the tig into fixed-size windows and
// computes the mean and standard deviation of evalues among overlaps
// between reads placed in this tig whose spans cover that window.
// prefix/stage are accepted for call-site labelling and are not used.
func (u *Unitig) ComputeErrorProfiles(cache *overlapcache.Cache, windowSize int32, prefix, stage string) {
	if windowSize <= 0 {
		windowSize = 1000
	}
	u.windowSize = windowSize
	length := u.GetLength()
	if length == 0 {
		u.windows = nil
		return
	}
	inTig := make(map[uint32]Read, len(u.reads))
	for _, r := range u.reads {
		inTig[r.ID] = r
	}

	numWindows := int(length/windowSize) + 1
	sums := make([]float64, numWindows)
	sumSquares := make([]float64, numWindows)
	counts := make([]int, numWindows)

	for _, r := range u.reads {
		for _, o := range cache.OverlapsFor(r.ID) {
			other, ok := inTig[o.BIID]
			if !ok || other.ID <= r.ID {
				continue // count each pair once
			}
			lo, hi := overlapSpan(r, other)
			wLo := int(lo / windowSize)
			wHi := int(hi / windowSize)
			for w := wLo; w <= wHi && w < numWindows; w++ {
				if w < 0 {
					continue
				}
				e := float64(o.Evalue)
				sums[w] += e
				sumSquares[w] += e * e
				counts[w]++
			}
		}
	}

	u.windows = u.windows[:0]
	for w := 0; w < numWindows; w++ {
		lo := int32(w) * windowSize
		hi := lo + windowSize
		if counts[w] == 0 {
			u.windows = append(u.windows, errWindow{lo, hi, 0, 0})
			continue
		}
		mean := sums[w] / float64(counts[w])
		variance := sumSquares[w]/float64(counts[w]) - mean*mean
		if variance < 0 {
			variance = 0
		}
		u.windows = append(u.windows, errWindow{lo, hi, mean, math.Sqrt(variance)})
	}
}

// overlapSpan returns the tig-local [lo,hi) span the overlap between a and
// b occupies, used to attribute the overlap's error rate to the windows
// it crosses.
func overlapSpan(a, b Read) (int32, int32) {
	lo := a.Min()
	if b.Min() > lo {
		lo = b.Min()
	}
	hi := a.Max()
	if b.Max() < hi {
		hi = b.Max()
	}
	return lo, hi
}

// OverlapConsistentWithTig returns the fraction, in [0,1], of windows
// overlapped by [lo,hi) whose mean+deviation*sigma is still at or above
// erate -- i.e. how much of the queried span is "no more erroneous than
// elsewhere in the tig".
func (u *Unitig) OverlapConsistentWithTig(deviation float64, lo, hi int32, erate float64) float64 {
	if len(u.windows) == 0 {
		return 1
	}
	var matched, total int
	for _, w := range u.windows {
		if w.hi <= lo || w.lo >= hi {
			continue
		}
		total++
		if w.mean+deviation*w.sigma >= erate {
			matched++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(matched) / float64(total)
}

// OptimizePositions refines every read's (bgn,end) by Gauss-Seidel
// relaxation over a sparse linear system built from overlaps among the
// tig's own reads. prefix/stage are
// accepted for log-label parity only.
func (u *Unitig) OptimizePositions(cache *overlapcache.Cache, prefix, stage string) {
	const maxIterations = 100
	const convergenceBases = 1.0

	n := len(u.reads)
	if n < 2 {
		return
	}
	idxOf := make(map[uint32]int, n)
	for i, r := range u.reads {
		idxOf[r.ID] = i
	}
	pos := make([]float64, n)
	for i, r := range u.reads {
		pos[i] = float64(r.Min())
	}

	type equation struct {
		a, b   int
		offset float64 // pos(b) - pos(a), expected
		weight float64
	}
	var eqs []equation
	for i, r := range u.reads {
		for _, o := range cache.OverlapsFor(r.ID) {
			j, ok := idxOf[o.BIID]
			if !ok || j <= i {
				continue
			}
			other := u.reads[j]
			length := float64(overlapLength(r, other))
			if length <= 0 {
				continue
			}
			offset := float64(other.Min() - r.Min())
			weight := length / (1 + float64(o.Evalue))
			eqs = append(eqs, equation{i, j, offset, weight})
		}
	}
	if len(eqs) == 0 {
		return
	}

	for iter := 0; iter < maxIterations; iter++ {
		maxDelta := 0.0
		for _, eq := range eqs {
			// Gauss-Seidel update: adjust b toward a+offset, weighted; a
			// is left where it is.
			target := pos[eq.a] + eq.offset
			delta := (target - pos[eq.b]) * eq.weight / (eq.weight + 1)
			pos[eq.b] += delta
			if d := math.Abs(delta); d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < convergenceBases {
			break
		}
	}

	minPos := pos[0]
	for _, p := range pos {
		if p < minPos {
			minPos = p
		}
	}
	for i := range u.reads {
		length := u.reads[i].Max() - u.reads[i].Min()
		newMin := int32(math.Round(pos[i] - minPos))
		if u.reads[i].Forward() {
			u.reads[i].Bgn = newMin
			u.reads[i].End = newMin + length
		} else {
			u.reads[i].Bgn = newMin + length
			u.reads[i].End = newMin
		}
	}
}

func overlapLength(a, b Read) int32 {
	lo := a.Min()
	if b.Min() > lo {
		lo = b.Min()
	}
	hi := a.Max()
	if b.Max() < hi {
		hi = b.Max()
	}
	return hi - lo
}

// TigVector owns every Unitig plus the read->tig and read->index tables
// that must stay consistent across any structural mutation.
// All mutation is guarded by a single coarse lock.
type TigVector struct {
	mu sync.Mutex

	ri    *readinfo.ReadInfo
	cache *overlapcache.Cache

	tigs    map[uint32]*Unitig
	nextID  uint32
	readTig []uint32 // readTig[id] = tig id, 0 if unplaced
	readIdx []int    // readIdx[id] = index into that tig's Reads(), -1 if unplaced
}

// NewTigVector creates an empty TigVector sized for ri's read population.
func NewTigVector(ri *readinfo.ReadInfo, cache *overlapcache.Cache) *TigVector {
	n := ri.NumReads()
	tv := &TigVector{
		ri:      ri,
		cache:   cache,
		tigs:    make(map[uint32]*Unitig),
		nextID:  1,
		readTig: make([]uint32, n+1),
		readIdx: make([]int, n+1),
	}
	for i := range tv.readIdx {
		tv.readIdx[i] = -1
	}
	return tv
}

// CreateTig allocates and registers a new, empty Unitig.
func (tv *TigVector) CreateTig() *Unitig {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	u := &Unitig{id: tv.nextID}
	tv.tigs[u.id] = u
	tv.nextID++
	return u
}

// DeleteTig removes tig id entirely, clearing the read->tig/index table
// entries for every read it held.
func (tv *TigVector) DeleteTig(id uint32) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	u, ok := tv.tigs[id]
	if !ok {
		return
	}
	for _, r := range u.reads {
		tv.readTig[r.ID] = 0
		tv.readIdx[r.ID] = -1
	}
	delete(tv.tigs, id)
}

// AddRead places r into tig id, updating the read->tig/index tables.
func (tv *TigVector) AddRead(tigID uint32, r Read, verify bool) error {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	u, ok := tv.tigs[tigID]
	if !ok {
		return errors.E("tig: AddRead: no such tig", "tig", tigID)
	}
	if err := u.AddRead(r, verify); err != nil {
		return err
	}
	tv.readTig[r.ID] = tigID
	tv.readIdx[r.ID] = len(u.reads) - 1
	return nil
}

// RemoveRead removes read id from whatever tig currently holds it.
func (tv *TigVector) RemoveRead(id uint32) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tigID := tv.readTig[id]
	if tigID == 0 {
		return
	}
	u := tv.tigs[tigID]
	u.RemoveRead(id)
	tv.readTig[id] = 0
	tv.readIdx[id] = -1
	// Any read after the removed one shifted down by one index; refresh
	// the whole tig's index table rather than tracking the shift, since
	// removals are rare relative to reads.
	for i, r := range u.reads {
		tv.readIdx[r.ID] = i
	}
}

// TigOf returns the tig id currently holding read id, or 0 if unplaced.
func (tv *TigVector) TigOf(id uint32) uint32 { return tv.readTig[id] }

// Get returns the Unitig with the given id, if it still exists.
func (tv *TigVector) Get(id uint32) (*Unitig, bool) {
	u, ok := tv.tigs[id]
	return u, ok
}

// All returns every currently live tig id, in increasing id order.
func (tv *TigVector) All() []uint32 {
	ids := make([]uint32, 0, len(tv.tigs))
	for id := range tv.tigs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lock and Unlock expose the coarse mutation lock directly. CreateTig,
// DeleteTig, AddRead and RemoveRead acquire this same lock themselves, so a
// caller holding it must not call them until it has called Unlock.
func (tv *TigVector) Lock()   { tv.mu.Lock() }
func (tv *TigVector) Unlock() { tv.mu.Unlock() }
