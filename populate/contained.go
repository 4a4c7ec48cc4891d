package populate

import (
	"github.com/grailbio/bogart/bestoverlapgraph"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// PlaceContainedReads places every contained read into its best
// container's tig. A containment chain (a read contained in a read that
// is itself contained) resolves over repeated passes: a read is placed
// as soon as its container has a position, so each pass can unblock
// reads the previous one could not place yet. It returns the number of
// reads placed.
func PlaceContainedReads(ri *readinfo.ReadInfo, bog *bestoverlapgraph.Graph, tv *tig.TigVector) int {
	placed := 0
	for {
		progress := false
		for _, id := range unplacedContained(ri, bog, tv) {
			c, ok := bog.BestContainerOf(id)
			if !ok {
				continue
			}
			containerTigID := tv.TigOf(c.BIID)
			if containerTigID == 0 {
				continue // container not placed yet, possibly itself contained
			}
			containerTig, ok := tv.Get(containerTigID)
			if !ok {
				continue
			}
			parent, ok := findRead(containerTig, c.BIID)
			if !ok {
				continue
			}
			bgn, end := tig.PlaceContainedRead(ri, parent, c)
			if err := tv.AddRead(containerTigID, tig.Read{ID: id, Bgn: bgn, End: end}, true); err != nil {
				continue
			}
			placed++
			progress = true
		}
		if !progress {
			break
		}
	}
	return placed
}

// unplacedContained returns every contained read not yet assigned to a
// tig.
func unplacedContained(ri *readinfo.ReadInfo, bog *bestoverlapgraph.Graph, tv *tig.TigVector) []uint32 {
	var out []uint32
	n := ri.NumReads()
	for id := uint32(1); id <= n; id++ {
		if ri.IsDeleted(id) || tv.TigOf(id) != 0 {
			continue
		}
		if bog.IsContained(id) {
			out = append(out, id)
		}
	}
	return out
}
