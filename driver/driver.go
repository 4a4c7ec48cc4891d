// Package driver orchestrates the assembly-graph construction phases in
// their fixed data-flow order: overlap cache, best-overlap graph, chunk
// graph, unitig population, orphan/bubble merging, repeat splitting,
// cleanup/classification, and tig-store output. Phase state (RI/OC/OG/CG)
// lives in an explicit Context struct threaded through every phase rather
// than as process-wide globals; the only process-wide state left is the
// CLI entry point that builds this Context and calls Run.
package driver

import (
	"encoding/binary"
	"io"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/bogartpb"
	"github.com/grailbio/bogart/chunkgraph"
	"github.com/grailbio/bogart/cleanup"
	"github.com/grailbio/bogart/orphan"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/populate"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/repeat"
	"github.com/grailbio/bogart/tig"
	"github.com/grailbio/bogart/tigstore"
)

// Phase names a point at which -stop requests an early, clean return.
type Phase string

const (
	PhaseEdges      Phase = "edges"      // stop after the best-overlap graph is built
	PhaseChunkGraph Phase = "chunkgraph" // stop after the chunk graph is built
	PhaseAll        Phase = ""           // run every phase through tig-store output
)

// Opts bundles every phase's configuration, one field per sub-package.
type Opts struct {
	Overlapcache          overlapcache.Opts
	BestOverlap           bestoverlapgraph.Opts
	Populate              populate.Opts
	Orphan                orphan.Opts
	Repeat                repeat.Opts
	Unassembled           cleanup.UnassembledOpts
	MinOverlapDiscontinuous int32
	Stop                  Phase
}

// Context holds the state every phase reads or mutates: RI/OC/OG/CG
// passed explicitly from phase to phase instead of living as process-wide
// singletons.
type Context struct {
	RI *readinfo.ReadInfo
	OC *overlapcache.Cache
	OG *bestoverlapgraph.Graph
	CG *chunkgraph.Graph
	TV *tig.TigVector
}

// Run executes every phase in order, stopping early if opts.Stop names a
// checkpoint. errs aggregates any soft errors surfaced by individual
// phases (currently none do; it exists so future phases have somewhere
// to report without changing Run's signature).
func Run(ri *readinfo.ReadInfo, ovls ovlstore.Store, opts Opts) (*Context, error) {
	var errs errorreporter.T

	oc, err := overlapcache.Build(ri, ovls, opts.Overlapcache)
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("driver: overlap cache built, maxPer=%d", oc.MaxPer())

	og := bestoverlapgraph.Build(ri, oc, opts.BestOverlap)
	log.Debug.Printf("driver: best-overlap graph built, cutoff=%d", og.Cutoff())
	ctx := &Context{RI: ri, OC: oc, OG: og}
	if opts.Stop == PhaseEdges {
		return ctx, errs.Err()
	}

	cg := chunkgraph.Build(ri, og)
	ctx.CG = cg
	if opts.Stop == PhaseChunkGraph {
		return ctx, errs.Err()
	}

	tv := tig.NewTigVector(ri, oc)
	ctx.TV = tv
	result := populate.Build(ri, og, cg, tv, opts.Populate)
	log.Debug.Printf("driver: populated %d tigs, %d pooled singletons", len(tv.All()), len(result.Singletons))

	nContained := populate.PlaceContainedReads(ri, og, tv)
	log.Debug.Printf("driver: placed %d contained reads", nContained)

	orphan.Merge(ri, oc, og, tv, opts.Orphan)
	log.Debug.Printf("driver: orphan/bubble merge pass complete, %d tigs remain", len(tv.All()))

	repeat.Split(ri, oc, tv, opts.Repeat)
	log.Debug.Printf("driver: repeat split pass complete, %d tigs remain", len(tv.All()))

	cleanup.SplitDiscontinuous(tv, opts.MinOverlapDiscontinuous)
	cleanup.PromoteToSingleton(ri, tv)
	cleanup.ClassifyTigsAsUnassembled(tv, opts.Unassembled)
	cleanup.FindCircularContigs(tv, og)
	log.Debug.Printf("driver: cleanup complete, %d final tigs", len(tv.All()))

	return ctx, errs.Err()
}

// Write serializes the Context's final tig set to w via tigstore.
func (c *Context) Write(w io.Writer) error {
	return tigstore.Write(c.RI, c.OC, c.TV, w)
}

// Checkpoint captures enough of the Context to resume or audit a run: the
// phase reached and, if the tig vector exists yet, the path its snapshot
// was written to and how many tigs it held. Fingerprint is a fast, seeded
// hash of the read set and phase reached; comparing it against one computed
// from a freshly loaded ReadInfo tells whether a checkpoint came from a
// different input.
func (c *Context) Checkpoint(phase Phase, tigStorePath string) *bogartpb.Checkpoint {
	numTigs := 0
	path := ""
	if c.TV != nil {
		numTigs = len(c.TV.All())
		path = tigStorePath
	}
	return &bogartpb.Checkpoint{
		Phase:        string(phase),
		TigStorePath: path,
		NumTigs:      uint32(numTigs),
		Fingerprint:  fingerprint(c.RI, phase),
	}
}

// fingerprint hashes the read count, total base count, and phase name into
// a single seeded 64-bit value.
func fingerprint(ri *readinfo.ReadInfo, phase Phase) uint64 {
	seed := farm.Hash64([]byte(phase))
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(ri.NumReads()))
	binary.LittleEndian.PutUint64(buf[8:16], ri.NumBases())
	return farm.Hash64WithSeed(buf, seed)
}

// Diagnostics summarizes the overlap cache's soft-filtering decisions for
// this run as a wire-ready message.
func (c *Context) Diagnostics() *bogartpb.DiagnosticSummary {
	d := c.OC.Diagnostics()
	return &bogartpb.DiagnosticSummary{
		NumReads:           d.NumReads,
		MaxPer:             d.MaxPer,
		NumDroppedLowScore: d.NumDroppedLowScore,
		NumTwinsAdded:      d.NumTwinsAdded,
	}
}
