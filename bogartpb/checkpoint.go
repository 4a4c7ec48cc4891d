// Package bogartpb defines the small protobuf message set used for
// self-describing side records: the phase-driver checkpoint and the
// overlap-cache diagnostic summary. Unlike the bulk tig-store records
// (a fixed flat binary layout, see the tigstore package), these records
// are infrequent and benefit from a self-describing, forward-compatible
// wire format, so they go through gogo/protobuf's reflection-based
// Marshal/Unmarshal instead of a hand-rolled binary layout.
package bogartpb

import (
	"github.com/gogo/protobuf/proto"
)

// Checkpoint records enough of the phase driver's progress to resume a
// run after a `-stop` early return: which phase last completed, and the
// path of the tig-store snapshot written at that point.
type Checkpoint struct {
	Phase        string `protobuf:"bytes,1,opt,name=phase" json:"phase"`
	TigStorePath string `protobuf:"bytes,2,opt,name=tig_store_path,json=tigStorePath" json:"tig_store_path"`
	NumTigs      uint32 `protobuf:"varint,3,opt,name=num_tigs,json=numTigs" json:"num_tigs"`
	Fingerprint  uint64 `protobuf:"varint,4,opt,name=fingerprint" json:"fingerprint"`
}

func (c *Checkpoint) Reset()         { *c = Checkpoint{} }
func (c *Checkpoint) String() string { return proto.CompactTextString(c) }
func (*Checkpoint) ProtoMessage()    {}

// Marshal serializes c with gogo/protobuf's reflection-based encoder.
func Marshal(c *Checkpoint) ([]byte, error) { return proto.Marshal(c) }

// Unmarshal decodes buf into a Checkpoint.
func Unmarshal(buf []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	if err := proto.Unmarshal(buf, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DiagnosticSummary is the overlap-cache diagnostic record: per-run
// counts of the soft-filtering decisions made while building the cache,
// enough to explain why a given read ended up with fewer overlaps than
// its raw store count.
type DiagnosticSummary struct {
	NumReads           uint32 `protobuf:"varint,1,opt,name=num_reads,json=numReads" json:"num_reads"`
	MaxPer             uint32 `protobuf:"varint,2,opt,name=max_per,json=maxPer" json:"max_per"`
	NumDroppedLowScore uint32 `protobuf:"varint,3,opt,name=num_dropped_low_score,json=numDroppedLowScore" json:"num_dropped_low_score"`
	NumTwinsAdded      uint32 `protobuf:"varint,4,opt,name=num_twins_added,json=numTwinsAdded" json:"num_twins_added"`
}

func (d *DiagnosticSummary) Reset()         { *d = DiagnosticSummary{} }
func (d *DiagnosticSummary) String() string { return proto.CompactTextString(d) }
func (*DiagnosticSummary) ProtoMessage()    {}

// MarshalDiagnostics serializes d with gogo/protobuf's reflection-based
// encoder.
func MarshalDiagnostics(d *DiagnosticSummary) ([]byte, error) { return proto.Marshal(d) }

func init() {
	// Registered with the global proto type registry like any
	// protoc-generated message, even though these are hand-written.
	proto.RegisterType((*Checkpoint)(nil), "bogartpb.Checkpoint")
	proto.RegisterType((*DiagnosticSummary)(nil), "bogartpb.DiagnosticSummary")
}
