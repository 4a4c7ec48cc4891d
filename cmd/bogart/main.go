// Command bogart builds unitigs and contigs from an overlap graph: it
// loads read metadata and overlaps, builds the best-overlap and chunk
// graphs, populates, merges orphans/bubbles, splits repeats, classifies,
// and writes the resulting tig set.
package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/bogartpb"
	"github.com/grailbio/bogart/bogartreport"
	"github.com/grailbio/bogart/cleanup"
	"github.com/grailbio/bogart/driver"
	"github.com/grailbio/bogart/orphan"
	"github.com/grailbio/bogart/overlapcache"
	"github.com/grailbio/bogart/ovlstore"
	"github.com/grailbio/bogart/populate"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/repeat"
)

type flags struct {
	seqPath, ovlPath, outPrefix string
	memGB                       int
	threads                     int
	genomeSize                  uint64
	minReadLen                  int
	minOverlap                  int
	minIntersect                int
	maxPlacements               int
	erateGraph, erateMax, erateForced, percentile float64
	confusedAbs                 int
	confusedPct                 float64
	devGraph, devBubble, devRepeat float64
	simGraph, simBubble, simRepeat float64
	spurDepth                   int
	noFilter                   string
	minOlapPercent              float64
	minReadsBest                float64
	covgapType                  string
	covgapOlap                  int
	lopsided                    string
	unassembled                 string
	stop                        string
}

func main() {
	var f flags
	flag.StringVar(&f.seqPath, "S", "", "path to the read-sequence store")
	flag.StringVar(&f.ovlPath, "O", "", "path to the sorted overlap store")
	flag.StringVar(&f.outPrefix, "o", "", "output prefix for the tig store and diagnostic logs")
	flag.IntVar(&f.memGB, "M", 4, "memory budget for the overlap cache, in GB")
	flag.IntVar(&f.threads, "threads", 0, "worker count (0 = runtime default)")
	flag.Uint64Var(&f.genomeSize, "gs", 0, "expected genome size in bases")
	flag.IntVar(&f.minReadLen, "mr", 0, "minimum read length to consider")
	flag.IntVar(&f.minOverlap, "mo", 40, "minimum overlap length to keep")
	flag.IntVar(&f.minIntersect, "mi", 15, "minimum number of reads a tig needs to be checked for repeats")
	flag.IntVar(&f.maxPlacements, "mp", 0, "maximum placements to report per read (0 = unbounded)")
	flag.Float64Var(&f.erateGraph, "eg", 0.05, "seeding error-rate ceiling")
	flag.Float64Var(&f.erateMax, "eM", 0.15, "absolute error-rate ceiling")
	flag.Float64Var(&f.erateForced, "ef", 0, "forced error-rate cutoff (0 = derive from percentile)")
	flag.Float64Var(&f.percentile, "ep", 0.90, "percentile used when the median best-edge erate is zero")
	flag.IntVar(&f.confusedAbs, "ca", 0, "absolute confused-overlap threshold")
	flag.Float64Var(&f.confusedPct, "cp", 0, "percent confused-overlap threshold")
	flag.Float64Var(&f.devGraph, "dg", 6, "deviation (graph) in standard deviations")
	flag.Float64Var(&f.devBubble, "db", 6, "deviation (bubble) in standard deviations")
	flag.Float64Var(&f.devRepeat, "dr", 6, "deviation (repeat) in standard deviations")
	flag.Float64Var(&f.simGraph, "sg", 0, "similarity (graph) threshold")
	flag.Float64Var(&f.simBubble, "sb", 0, "similarity (bubble) threshold")
	flag.Float64Var(&f.simRepeat, "sr", 0, "similarity (repeat) threshold")
	flag.IntVar(&f.spurDepth, "sd", 1, "spur radius in reads")
	flag.StringVar(&f.noFilter, "nofilter", "", "comma-separated filters to disable: higherror,lopsided,spur,deadends")
	flag.Float64Var(&f.minOlapPercent, "minolappercent", 0, "lopsided threshold: percent length difference between a read's two best edges, used when -lopsided gives no D")
	flag.Float64Var(&f.minReadsBest, "minreadsbest", 0.99, "fraction of a tig's reads that must overlap a merge target")
	flag.StringVar(&f.covgapType, "covgaptype", "none", "coverage-gap policy: none, chimer, uncovered, deadend")
	flag.IntVar(&f.covgapOlap, "covgapolap", 0, "minimum overlap length exempted from coverage-gap detection")
	flag.StringVar(&f.lopsided, "lopsided", "off", "lopsided action: off, noseed <D>, nobest <D>")
	flag.StringVar(&f.unassembled, "unassembled", "2 0 0 1 1", "fewReads tooShort span lowCovFrac lowCovDepth")
	flag.StringVar(&f.stop, "stop", "", "checkpoint to stop after: edges, chunkgraph")

	cleanup := grail.Init()
	defer cleanup()
	vcontext.Background()

	if f.seqPath == "" || f.ovlPath == "" || f.outPrefix == "" {
		log.Fatal("bogart: -S, -O, and -o are required")
	}

	ri, err := loadReadInfo(f.seqPath)
	if err != nil {
		log.Fatalf("bogart: loading read store: %v", err)
	}

	ovls, err := loadOverlapStore(f.ovlPath)
	if err != nil {
		log.Fatalf("bogart: loading overlap store: %v", err)
	}

	lopsidedAction, lopsidedDiffPct := lopsidedOpts(f.lopsided, f.minOlapPercent)
	opts := driver.Opts{
		Overlapcache: overlapcache.Opts{
			MemLimitBytes: uint64(f.memGB) << 30,
			GenomeSize:    f.genomeSize,
			MaxEvalue:     uint32(f.erateMax * float64(1<<12)),
			MinOverlap:    int32(f.minOverlap),
			DiagPrefix:    f.outPrefix,
		},
		BestOverlap: bestoverlapgraph.Opts{
			GraphErate:      f.erateGraph * float64(1<<12),
			MaxErate:        f.erateMax * float64(1<<12),
			Percentile:      f.percentile,
			ForceErate:      f.erateForced * float64(1<<12),
			DeviationSD:     f.devGraph,
			EnableHighError: !strings.Contains(f.noFilter, "higherror"),
			EnableLopsided:  !strings.Contains(f.noFilter, "lopsided") && f.lopsided != "off",
			LopsidedDiffPct: lopsidedDiffPct,
			LopsidedAction:  lopsidedAction,
			SpurDepth:       f.spurDepth,
			EnableSpur:      !strings.Contains(f.noFilter, "spur"),
			CoverageGap:     coverageGapPolicy(f.covgapType),
		},
		Populate: populate.Opts{PoolSingletons: true},
		Orphan: orphan.Opts{
			ReportErrorLimit:  f.erateMax * float64(1<<12),
			MinFCoverage:      f.minReadsBest,
			MinTargetCoverage: f.minReadsBest,
			LengthRatioLo:     0.33,
			LengthRatioHi:     3.0,
		},
		Repeat: repeat.Opts{
			MinReads:   f.minIntersect,
			MinLength:  300,
			MinOverlap: int32(f.minOverlap),
		},
		Unassembled:             unassembledOpts(f.unassembled),
		MinOverlapDiscontinuous: int32(f.minOverlap),
		Stop:                    driver.Phase(f.stop),
	}

	ctx, err := driver.Run(ri, ovls, opts)
	if err != nil {
		log.Fatalf("bogart: %v", err)
	}

	if err := writeCheckpoint(ctx.Checkpoint(driver.Phase(f.stop), f.outPrefix+".tigStore"), f.outPrefix+".checkpoint"); err != nil {
		log.Fatalf("bogart: writing checkpoint: %v", err)
	}
	if ctx.TV == nil {
		log.Printf("bogart: stopped early at checkpoint %q", f.stop)
		os.Exit(0)
	}

	out, err := file.Create(vcontext.Background(), f.outPrefix+".tigStore")
	if err != nil {
		log.Fatalf("bogart: creating output: %v", err)
	}
	defer out.Close(vcontext.Background())
	if err := ctx.Write(out.Writer(vcontext.Background())); err != nil {
		log.Fatalf("bogart: writing tig store: %v", err)
	}
	log.Printf("bogart: wrote %d tigs to %s", len(ctx.TV.All()), f.outPrefix+".tigStore")

	if err := writeDiagnostics(ctx.Diagnostics(), f.outPrefix+".diagnostics"); err != nil {
		log.Fatalf("bogart: writing diagnostics: %v", err)
	}

	reportOut, err := os.Create(f.outPrefix + ".report")
	if err != nil {
		log.Fatalf("bogart: creating report: %v", err)
	}
	defer reportOut.Close()
	if err := bogartreport.Summarize(reportOut, "final", ctx.TV); err != nil {
		log.Fatalf("bogart: writing report: %v", err)
	}
}

func writeCheckpoint(cp *bogartpb.Checkpoint, path string) error {
	buf, err := bogartpb.Marshal(cp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

func writeDiagnostics(d *bogartpb.DiagnosticSummary, path string) error {
	buf, err := bogartpb.MarshalDiagnostics(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

func loadReadInfo(path string) (*readinfo.ReadInfo, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx)
	return readinfo.Load(f.Reader(ctx))
}

func loadOverlapStore(path string) (*ovlstore.FileStore, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx)
	return ovlstore.Load(f.Reader(ctx))
}

func coverageGapPolicy(name string) bestoverlapgraph.CoverageGapPolicy {
	switch name {
	case "chimer":
		return bestoverlapgraph.ChimerGapPolicy{}
	case "uncovered":
		return bestoverlapgraph.UncoveredGapPolicy{}
	case "deadend":
		return bestoverlapgraph.DeadEndGapPolicy{}
	default:
		return bestoverlapgraph.NoCoverageGapPolicy{}
	}
}

// lopsidedOpts parses -lopsided ("off", "noseed D" or "nobest D") into the
// filter action and percent difference; pct is kept when D is absent.
func lopsidedOpts(arg string, pct float64) (bestoverlapgraph.LopsidedAction, float64) {
	fields := strings.Fields(arg)
	if len(fields) > 1 {
		if d, err := strconv.ParseFloat(fields[1], 64); err == nil {
			pct = d
		}
	}
	if len(fields) > 0 && fields[0] == "noseed" {
		return bestoverlapgraph.LopsidedNoSeed, pct
	}
	if len(fields) > 0 && fields[0] == "nobest" {
		return bestoverlapgraph.LopsidedNoBest, pct
	}
	return bestoverlapgraph.LopsidedKeep, pct
}

func unassembledOpts(arg string) cleanup.UnassembledOpts {
	opts := cleanup.UnassembledOpts{FewReadsNumber: 2, TooShortLength: 0, SpanFraction: 0, LowcovFraction: 1, LowcovDepth: 1}
	fields := strings.Fields(arg)
	if len(fields) != 5 {
		return opts
	}
	fewReads, err1 := strconv.Atoi(fields[0])
	tooShort, err2 := strconv.Atoi(fields[1])
	span, err3 := strconv.ParseFloat(fields[2], 64)
	lowcovFrac, err4 := strconv.ParseFloat(fields[3], 64)
	lowcovDepth, err5 := strconv.Atoi(fields[4])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		log.Printf("bogart: -unassembled %q: malformed, using defaults", arg)
		return opts
	}
	opts.FewReadsNumber = fewReads
	opts.TooShortLength = int32(tooShort)
	opts.SpanFraction = span
	opts.LowcovFraction = lowcovFrac
	opts.LowcovDepth = lowcovDepth
	return opts
}
