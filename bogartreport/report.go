// Package bogartreport produces a compact, human-readable per-tig status
// summary after each major phase: one line per tig (id, read count,
// length, flags), followed by an aggregate line.
package bogartreport

import (
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/bogart/tig"
)

// Summarize writes one line per tig in tv to w, sorted by id, followed by
// an aggregate line (tig count, total length, flag tallies).
func Summarize(w io.Writer, stage string, tv *tig.TigVector) error {
	ids := append([]uint32(nil), tv.All()...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var totalLength int64
	var bubbles, repeats, unassembled, circular int

	if _, err := fmt.Fprintf(w, "=== %s: %d tigs ===\n", stage, len(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		u, ok := tv.Get(id)
		if !ok {
			continue
		}
		flags := flagString(u.Flags)
		if _, err := fmt.Fprintf(w, "tig %d: %d reads, %d bp%s\n", id, u.NumReads(), u.GetLength(), flags); err != nil {
			return err
		}
		totalLength += int64(u.GetLength())
		if u.Flags.Bubble {
			bubbles++
		}
		if u.Flags.Repeat {
			repeats++
		}
		if u.Flags.Unassembled {
			unassembled++
		}
		if u.Flags.Circular {
			circular++
		}
	}
	_, err := fmt.Fprintf(w, "total: %d tigs, %d bp, %d bubble, %d repeat, %d unassembled, %d circular\n",
		len(ids), totalLength, bubbles, repeats, unassembled, circular)
	return err
}

func flagString(f tig.Flags) string {
	s := ""
	if f.Unassembled {
		s += " unassembled"
	}
	if f.Bubble {
		s += " bubble"
	}
	if f.Repeat {
		s += " repeat"
	}
	if f.Circular {
		s += " circular"
	}
	return s
}
