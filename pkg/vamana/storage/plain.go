package storage

import (
	"encoding/binary"
	"math"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// PlainStorage stores the full-precision vector alongside every node.
// Grounded on therealutkarshpriyadarshi-vector/pkg/diskann/node.go's
// Node.Vector field, generalized to the page-backed frame every Storage
// variant shares (see storage.go's frameLayout).
type PlainStorage struct {
	dims   int
	metric vamana.Metric
	layout frameLayout
	tape   *page.Tape
}

// NewPlainStorage opens a fresh node tape for a brand-new Plain-variant index.
func NewPlainStorage(mgr page.Manager, dims int, metric vamana.Metric, maxNeighbors int) (*PlainStorage, error) {
	tape, err := page.NewTape(mgr, page.TypeNode)
	if err != nil {
		return nil, err
	}
	return &PlainStorage{dims: dims, metric: metric, layout: frameLayout{payloadLen: dims * 4, maxNeighbors: maxNeighbors}, tape: tape}, nil
}

// ResumePlainStorage reopens the node tape at its last-written page.
func ResumePlainStorage(mgr page.Manager, dims int, metric vamana.Metric, maxNeighbors int, lastBlock uint32) (*PlainStorage, error) {
	tape, err := page.ResumeTape(mgr, page.TypeNode, lastBlock)
	if err != nil {
		return nil, err
	}
	return &PlainStorage{dims: dims, metric: metric, layout: frameLayout{payloadLen: dims * 4, maxNeighbors: maxNeighbors}, tape: tape}, nil
}

func (s *PlainStorage) PageType() page.Type { return page.TypeNode }

func (s *PlainStorage) CreateNode(mgr page.Manager, v vamana.Vector, heapPtr vamana.HeapPointer, meta *metapage.MetaPage) (vamana.IndexPointer, error) {
	frame := encodeFrame(s.layout, heapPtr, encodeVector(v))
	copy(neighborsOf(frame, s.layout), encodeNeighbors(s.layout, nil))
	return s.tape.Write(frame)
}

// StartTraining, AddSample, FinishTraining are no-ops: Plain never
// quantizes, it stores the vector verbatim.
func (s *PlainStorage) StartTraining(meta *metapage.MetaPage)        {}
func (s *PlainStorage) AddSample(v vamana.Vector)                    {}
func (s *PlainStorage) FinishTraining(mgr page.Manager, meta *metapage.MetaPage) error { return nil }

func (s *PlainStorage) FinalizeNode(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return s.writeNeighbors(mgr, ip, neighbors)
}

func (s *PlainStorage) SetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return s.writeNeighbors(mgr, ip, neighbors)
}

func (s *PlainStorage) writeNeighbors(mgr page.Manager, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return page.ModifyItem(mgr, ip, page.TypeNode, func(cur []byte) []byte {
		next := append([]byte(nil), cur...)
		copy(neighborsOf(next, s.layout), encodeNeighbors(s.layout, neighbors))
		return next
	})
}

func (s *PlainStorage) GetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) ([]NeighborWithDistance, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return nil, err
	}
	if len(buf) != s.layout.frameLen() {
		return nil, errFrameShortRead(ip)
	}
	return decodeNeighbors(neighborsOf(buf, s.layout)), nil
}

func (s *PlainStorage) HeapPointer(mgr page.Manager, ip vamana.IndexPointer) (vamana.HeapPointer, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return vamana.HeapPointer{}, err
	}
	return getHeapPtr(buf), nil
}

func (s *PlainStorage) DistanceFn() vamana.DistanceFunc { return vamana.DistanceFuncFor(s.metric) }

func (s *PlainStorage) LastBlock() uint32 { return s.tape.Block() }

func (s *PlainStorage) Flush(mgr page.Manager) error { return s.tape.Close() }

func (s *PlainStorage) vectorOf(mgr page.Manager, ip vamana.IndexPointer) (vamana.Vector, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return nil, err
	}
	if len(buf) != s.layout.frameLen() {
		return nil, errFrameShortRead(ip)
	}
	return decodeVector(payloadOf(buf, s.layout), s.dims), nil
}

func (s *PlainStorage) NodeDistanceMeasure(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) (NodeDistanceMeasure, error) {
	v, err := s.vectorOf(mgr, ip)
	if err != nil {
		return nil, err
	}
	return &plainDistanceMeasure{storage: s, vector: v}, nil
}

func (s *PlainStorage) QueryDistanceMeasure(meta *metapage.MetaPage, query vamana.Vector) QueryDistanceMeasure {
	return &plainDistanceMeasure{storage: s, vector: query}
}

// plainDistanceMeasure serves both NodeDistanceMeasure and
// QueryDistanceMeasure: for Plain storage the two are identical, a direct
// distance between two full-precision vectors.
type plainDistanceMeasure struct {
	storage *PlainStorage
	vector  vamana.Vector
}

func (m *plainDistanceMeasure) DistanceToNode(mgr page.Manager, ip vamana.IndexPointer) (float32, error) {
	v, err := m.storage.vectorOf(mgr, ip)
	if err != nil {
		return 0, err
	}
	return m.storage.DistanceFn()(m.vector, v), nil
}

func encodeVector(v vamana.Vector) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

func decodeVector(b []byte, dims int) vamana.Vector {
	v := make(vamana.Vector, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
