package storage

import (
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/quantize"
)

// PqStorage stores a product-quantization code per node and ranks
// candidates by asymmetric distance-table lookup instead of full-length
// float comparisons. Grounded on
// original_source/timescale_vector/src/access_method/storage.rs's
// StorageType::SbqCompression family and
// internal/quantization/product.go's ProductQuantizer.
type PqStorage struct {
	dims   int
	metric vamana.Metric
	layout frameLayout
	tape   *page.Tape
	pq     *quantize.ProductQuantizer
}

// NewPqStorage opens a fresh node tape with an untrained quantizer, for the
// first (training) pass of a build.
func NewPqStorage(mgr page.Manager, dims, segmentDim int, metric vamana.Metric, maxNeighbors int) (*PqStorage, error) {
	tape, err := page.NewTape(mgr, page.TypeNode)
	if err != nil {
		return nil, err
	}
	segments := dims / segmentDim
	return &PqStorage{
		dims: dims, metric: metric,
		layout: frameLayout{payloadLen: segments, maxNeighbors: maxNeighbors},
		tape:   tape,
		pq:     quantize.NewProductQuantizer(dims, segmentDim, metric),
	}, nil
}

// OpenPqStorage reopens an existing index, loading the already-trained
// quantizer from the blob meta points at and resuming the node tape.
func OpenPqStorage(mgr page.Manager, meta *metapage.MetaPage, maxNeighbors int, lastBlock uint32) (*PqStorage, error) {
	pq, err := quantize.ReadPqBlob(mgr, vamana.IndexPointer{BlockNumber: meta.QuantizerBlobBlock, Offset: meta.QuantizerBlobOffset}, meta.Metric)
	if err != nil {
		return nil, err
	}
	tape, err := page.ResumeTape(mgr, page.TypeNode, lastBlock)
	if err != nil {
		return nil, err
	}
	return &PqStorage{
		dims: meta.Dims, metric: meta.Metric,
		layout: frameLayout{payloadLen: pq.Segments(), maxNeighbors: maxNeighbors},
		tape:   tape, pq: pq,
	}, nil
}

func (s *PqStorage) PageType() page.Type { return page.TypeNode }

func (s *PqStorage) StartTraining(meta *metapage.MetaPage) {}

func (s *PqStorage) AddSample(v vamana.Vector) { s.pq.AddSample(v) }

func (s *PqStorage) FinishTraining(mgr page.Manager, meta *metapage.MetaPage) error {
	if err := s.pq.FinishTraining(); err != nil {
		return err
	}
	ip, err := quantize.WritePqBlob(mgr, s.pq)
	if err != nil {
		return err
	}
	if err := metapage.UpdateQuantizerPointer(mgr, ip); err != nil {
		return err
	}
	meta.QuantizerBlobBlock, meta.QuantizerBlobOffset = ip.BlockNumber, ip.Offset
	return nil
}

func (s *PqStorage) CreateNode(mgr page.Manager, v vamana.Vector, heapPtr vamana.HeapPointer, meta *metapage.MetaPage) (vamana.IndexPointer, error) {
	if !s.pq.Trained() {
		return vamana.IndexPointer{}, errNotTrained("pq")
	}
	codes := s.pq.Encode(v)
	frame := encodeFrame(s.layout, heapPtr, codes)
	copy(neighborsOf(frame, s.layout), encodeNeighbors(s.layout, nil))
	return s.tape.Write(frame)
}

func (s *PqStorage) FinalizeNode(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return s.writeNeighbors(mgr, ip, neighbors)
}

func (s *PqStorage) SetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return s.writeNeighbors(mgr, ip, neighbors)
}

func (s *PqStorage) writeNeighbors(mgr page.Manager, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return page.ModifyItem(mgr, ip, page.TypeNode, func(cur []byte) []byte {
		next := append([]byte(nil), cur...)
		copy(neighborsOf(next, s.layout), encodeNeighbors(s.layout, neighbors))
		return next
	})
}

func (s *PqStorage) GetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) ([]NeighborWithDistance, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return nil, err
	}
	if len(buf) != s.layout.frameLen() {
		return nil, errFrameShortRead(ip)
	}
	return decodeNeighbors(neighborsOf(buf, s.layout)), nil
}

func (s *PqStorage) HeapPointer(mgr page.Manager, ip vamana.IndexPointer) (vamana.HeapPointer, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return vamana.HeapPointer{}, err
	}
	return getHeapPtr(buf), nil
}

func (s *PqStorage) DistanceFn() vamana.DistanceFunc { return vamana.DistanceFuncFor(s.metric) }

func (s *PqStorage) LastBlock() uint32 { return s.tape.Block() }

func (s *PqStorage) Flush(mgr page.Manager) error { return s.tape.Close() }

func (s *PqStorage) codesOf(mgr page.Manager, ip vamana.IndexPointer) ([]byte, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return nil, err
	}
	if len(buf) != s.layout.frameLen() {
		return nil, errFrameShortRead(ip)
	}
	codes := payloadOf(buf, s.layout)
	out := make([]byte, len(codes))
	copy(out, codes)
	return out, nil
}

// NodeDistanceMeasure decodes ip's codes to an approximate vector and
// precomputes a distance table from it, so every subsequent DistanceToNode
// call is an O(segments) table lookup rather than an O(dims) comparison.
func (s *PqStorage) NodeDistanceMeasure(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) (NodeDistanceMeasure, error) {
	codes, err := s.codesOf(mgr, ip)
	if err != nil {
		return nil, err
	}
	approx := s.pq.Decode(codes)
	return &pqDistanceMeasure{storage: s, table: s.pq.ComputeDistanceTable(approx)}, nil
}

// QueryDistanceMeasure precomputes the table directly from the exact query
// vector: no decode/re-encode round trip needed since the query never
// passes through the quantizer.
func (s *PqStorage) QueryDistanceMeasure(meta *metapage.MetaPage, query vamana.Vector) QueryDistanceMeasure {
	return &pqDistanceMeasure{storage: s, table: s.pq.ComputeDistanceTable(query)}
}

type pqDistanceMeasure struct {
	storage *PqStorage
	table   quantize.DistanceTable
}

func (m *pqDistanceMeasure) DistanceToNode(mgr page.Manager, ip vamana.IndexPointer) (float32, error) {
	codes, err := m.storage.codesOf(mgr, ip)
	if err != nil {
		return 0, err
	}
	return m.storage.pq.AsymmetricDistance(m.table, codes), nil
}
