// Package storage implements the three node payload variants a graph can be
// built over: full-precision (Plain), product-quantized (Pq), and
// binary-quantized (Bq). Grounded on
// original_source/timescale_vector/src/access_method/storage.rs's Storage
// trait, translated from Rust's associated-type shape into a Go interface
// of concrete argument/return types, since the teacher's own packages
// (pkg/diskann, pkg/hnsw) favor plain interfaces over generics throughout.
package storage

import (
	"encoding/binary"
	"math"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// NeighborWithDistance pairs a node's index pointer with its distance from
// whichever reference point produced it (a built node during construction,
// or a query during search).
type NeighborWithDistance struct {
	IndexPointer vamana.IndexPointer
	Distance     float32
}

// NodeDistanceMeasure computes distances from a single fixed node (the one
// it was created for) to other nodes, reused across every neighbor
// candidate considered while that node is being built or pruned. This
// mirrors the original's NodeDistanceMeasure trait, which exists so a PQ or
// BQ storage can decode its own node's payload once and reuse it instead of
// per-candidate.
type NodeDistanceMeasure interface {
	DistanceToNode(mgr page.Manager, ip vamana.IndexPointer) (float32, error)
}

// QueryDistanceMeasure is the analogous fixed reference point for search:
// a query vector, reused across every node visited during a single search.
type QueryDistanceMeasure interface {
	DistanceToNode(mgr page.Manager, ip vamana.IndexPointer) (float32, error)
}

// Storage is the uniform capability surface the graph package builds and
// searches against, independent of which payload variant backs a node.
type Storage interface {
	// PageType is the page.Type nodes of this variant are stored on.
	PageType() page.Type

	// CreateNode writes a brand-new node (heap pointer, encoded payload, and
	// an empty neighbor list sized to the maxNeighbors the storage was
	// constructed with) and returns its IndexPointer.
	CreateNode(mgr page.Manager, v vamana.Vector, heapPtr vamana.HeapPointer, meta *metapage.MetaPage) (vamana.IndexPointer, error)

	// StartTraining resets any accumulated training state. A no-op for Plain.
	StartTraining(meta *metapage.MetaPage)
	// AddSample accumulates a training vector during the first build pass.
	AddSample(v vamana.Vector)
	// FinishTraining completes quantizer training and persists its blob via
	// meta, updating meta's quantizer pointer. A no-op for Plain.
	FinishTraining(mgr page.Manager, meta *metapage.MetaPage) error

	// FinalizeNode overwrites a node's neighbor list once robust-prune has
	// settled on its final set, at the end of the build's second pass.
	FinalizeNode(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error

	// NodeDistanceMeasure decodes ip's own payload once and returns a
	// measure that computes distances from it to other nodes, used while
	// that node is the one being inserted or pruned.
	NodeDistanceMeasure(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) (NodeDistanceMeasure, error)
	// QueryDistanceMeasure returns a measure fixed to a query vector, used
	// throughout one greedy search.
	QueryDistanceMeasure(meta *metapage.MetaPage, query vamana.Vector) QueryDistanceMeasure

	// GetNeighbors reads a node's current neighbor list. Neighbors whose
	// rows are tombstoned are returned like any other; query.Iterator's
	// Next is what skips tombstoned rows.
	GetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) ([]NeighborWithDistance, error)
	// SetNeighbors overwrites a node's neighbor list in place during
	// incremental insert.
	SetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error

	// HeapPointer returns the row a node refers to, for tombstone checks and
	// final result materialization.
	HeapPointer(mgr page.Manager, ip vamana.IndexPointer) (vamana.HeapPointer, error)

	// DistanceFn is the configured metric's raw distance function, used by
	// callers that need to compare two arbitrary full-precision vectors
	// directly (e.g. re-ranking PQ candidates against the heap's stored
	// vector).
	DistanceFn() vamana.DistanceFunc

	// LastBlock returns the node tape's current block, for a caller to
	// persist via metapage.UpdateNodeTapeBlock so a later storage.Open call
	// can resume the tape at the right page.
	LastBlock() uint32

	// Flush commits the node tape's current page. The page a node was just
	// written to stays mutable in place (see page/tape.go's Write) until it
	// rotates out or Flush is called, so every durability boundary — the
	// end of a build, the end of an incremental Insert — must call this
	// before the caller can rely on mgr.Read/Modify of that block reflecting
	// the write.
	Flush(mgr page.Manager) error
}

// frameLayout is the common node framing shared by every Storage variant:
// a fixed-size heap pointer, a variant-specific payload of fixed length,
// and a fixed-capacity neighbor slot array. Keeping the payload and
// neighbor region each a constant length per index lets SetNeighbors use
// Page.SetItem's same-length in-place overwrite instead of the costlier
// ReplaceItem rebuild metapage.go needs for its own growing body.
type frameLayout struct {
	payloadLen   int
	maxNeighbors int
}

const (
	heapPtrLen    = 6 // BlockNumber uint32 + Offset uint16
	neighborSlot  = 6 + 4 // IndexPointer (6) + distance float32 (4)
	neighborCount = 2
)

func (f frameLayout) neighborRegionLen() int {
	return neighborCount + f.maxNeighbors*neighborSlot
}

func (f frameLayout) frameLen() int {
	return heapPtrLen + f.payloadLen + f.neighborRegionLen()
}

// encodeFrame lays out a node's bytes: heap pointer, payload, then an
// all-zero (unfilled) neighbor region. Neighbors are populated afterward
// via encodeNeighbors + SetItem once robust-prune has run.
func encodeFrame(f frameLayout, heapPtr vamana.HeapPointer, payload []byte) []byte {
	buf := make([]byte, f.frameLen())
	putHeapPtr(buf, heapPtr)
	copy(buf[heapPtrLen:heapPtrLen+f.payloadLen], payload)
	return buf
}

func putHeapPtr(buf []byte, hp vamana.HeapPointer) {
	binary.LittleEndian.PutUint32(buf[0:], hp.BlockNumber)
	binary.LittleEndian.PutUint16(buf[4:], hp.Offset)
}

func getHeapPtr(buf []byte) vamana.HeapPointer {
	return vamana.HeapPointer{
		BlockNumber: binary.LittleEndian.Uint32(buf[0:]),
		Offset:      binary.LittleEndian.Uint16(buf[4:]),
	}
}

func payloadOf(buf []byte, f frameLayout) []byte {
	return buf[heapPtrLen : heapPtrLen+f.payloadLen]
}

func neighborsOf(buf []byte, f frameLayout) []byte {
	start := heapPtrLen + f.payloadLen
	return buf[start : start+f.neighborRegionLen()]
}

// encodeNeighbors packs a neighbor list into a frame's fixed-capacity
// region, zero-padding unfilled slots. Panics if neighbors exceeds
// maxNeighbors: that is always a caller bug (robust-prune must cap first).
func encodeNeighbors(f frameLayout, neighbors []NeighborWithDistance) []byte {
	if len(neighbors) > f.maxNeighbors {
		panic("vamana/storage: neighbor list exceeds frame capacity")
	}
	buf := make([]byte, f.neighborRegionLen())
	binary.LittleEndian.PutUint16(buf[0:], uint16(len(neighbors)))
	off := neighborCount
	for _, n := range neighbors {
		binary.LittleEndian.PutUint32(buf[off:], n.IndexPointer.BlockNumber)
		binary.LittleEndian.PutUint16(buf[off+4:], n.IndexPointer.Offset)
		binary.LittleEndian.PutUint32(buf[off+6:], math.Float32bits(n.Distance))
		off += neighborSlot
	}
	return buf
}

func decodeNeighbors(buf []byte) []NeighborWithDistance {
	count := int(binary.LittleEndian.Uint16(buf[0:]))
	out := make([]NeighborWithDistance, 0, count)
	off := neighborCount
	for i := 0; i < count; i++ {
		block := binary.LittleEndian.Uint32(buf[off:])
		offset := binary.LittleEndian.Uint16(buf[off+4:])
		dist := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+6:]))
		off += neighborSlot
		out = append(out, NeighborWithDistance{
			IndexPointer: vamana.IndexPointer{BlockNumber: block, Offset: offset},
			Distance:     dist,
		})
	}
	return out
}
