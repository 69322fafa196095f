package storage

import (
	"encoding/binary"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/quantize"
)

// BqStorage stores a mean-centered sign-bit vector per node and ranks
// candidates by Hamming distance. Grounded on
// kasuganosora-sqlexec/pkg/resource/memory/ivf_rabitq_index.go's bit-packed
// codes and quantize/bq.go's BinaryQuantizer.
type BqStorage struct {
	dims   int
	metric vamana.Metric
	words  int
	layout frameLayout
	tape   *page.Tape
	bq     *quantize.BinaryQuantizer
}

func NewBqStorage(mgr page.Manager, dims int, metric vamana.Metric, maxNeighbors int) (*BqStorage, error) {
	tape, err := page.NewTape(mgr, page.TypeNode)
	if err != nil {
		return nil, err
	}
	words := (dims + 63) / 64
	return &BqStorage{
		dims: dims, metric: metric, words: words,
		layout: frameLayout{payloadLen: words * 8, maxNeighbors: maxNeighbors},
		tape:   tape,
		bq:     quantize.NewBinaryQuantizer(dims),
	}, nil
}

func OpenBqStorage(mgr page.Manager, meta *metapage.MetaPage, maxNeighbors int, lastBlock uint32) (*BqStorage, error) {
	bq, err := quantize.ReadBqBlob(mgr, vamana.IndexPointer{BlockNumber: meta.QuantizerBlobBlock, Offset: meta.QuantizerBlobOffset})
	if err != nil {
		return nil, err
	}
	tape, err := page.ResumeTape(mgr, page.TypeNode, lastBlock)
	if err != nil {
		return nil, err
	}
	words := (meta.Dims + 63) / 64
	return &BqStorage{
		dims: meta.Dims, metric: meta.Metric, words: words,
		layout: frameLayout{payloadLen: words * 8, maxNeighbors: maxNeighbors},
		tape:   tape, bq: bq,
	}, nil
}

func (s *BqStorage) PageType() page.Type { return page.TypeNode }

func (s *BqStorage) StartTraining(meta *metapage.MetaPage) {}

func (s *BqStorage) AddSample(v vamana.Vector) { s.bq.AddSample(v) }

func (s *BqStorage) FinishTraining(mgr page.Manager, meta *metapage.MetaPage) error {
	if err := s.bq.FinishTraining(); err != nil {
		return err
	}
	ip, err := quantize.WriteBqBlob(mgr, s.bq)
	if err != nil {
		return err
	}
	if err := metapage.UpdateQuantizerPointer(mgr, ip); err != nil {
		return err
	}
	meta.QuantizerBlobBlock, meta.QuantizerBlobOffset = ip.BlockNumber, ip.Offset
	return nil
}

func (s *BqStorage) CreateNode(mgr page.Manager, v vamana.Vector, heapPtr vamana.HeapPointer, meta *metapage.MetaPage) (vamana.IndexPointer, error) {
	if s.bq.Mean() == nil {
		return vamana.IndexPointer{}, errNotTrained("bq")
	}
	words := s.bq.Encode(v)
	frame := encodeFrame(s.layout, heapPtr, encodeWords(words))
	copy(neighborsOf(frame, s.layout), encodeNeighbors(s.layout, nil))
	return s.tape.Write(frame)
}

func (s *BqStorage) FinalizeNode(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return s.writeNeighbors(mgr, ip, neighbors)
}

func (s *BqStorage) SetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return s.writeNeighbors(mgr, ip, neighbors)
}

func (s *BqStorage) writeNeighbors(mgr page.Manager, ip vamana.IndexPointer, neighbors []NeighborWithDistance) error {
	return page.ModifyItem(mgr, ip, page.TypeNode, func(cur []byte) []byte {
		next := append([]byte(nil), cur...)
		copy(neighborsOf(next, s.layout), encodeNeighbors(s.layout, neighbors))
		return next
	})
}

func (s *BqStorage) GetNeighbors(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) ([]NeighborWithDistance, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return nil, err
	}
	if len(buf) != s.layout.frameLen() {
		return nil, errFrameShortRead(ip)
	}
	return decodeNeighbors(neighborsOf(buf, s.layout)), nil
}

func (s *BqStorage) HeapPointer(mgr page.Manager, ip vamana.IndexPointer) (vamana.HeapPointer, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return vamana.HeapPointer{}, err
	}
	return getHeapPtr(buf), nil
}

func (s *BqStorage) DistanceFn() vamana.DistanceFunc { return vamana.DistanceFuncFor(s.metric) }

func (s *BqStorage) LastBlock() uint32 { return s.tape.Block() }

func (s *BqStorage) Flush(mgr page.Manager) error { return s.tape.Close() }

func (s *BqStorage) wordsOf(mgr page.Manager, ip vamana.IndexPointer) ([]uint64, error) {
	buf, err := page.ReadItem(mgr, ip, page.TypeNode)
	if err != nil {
		return nil, err
	}
	if len(buf) != s.layout.frameLen() {
		return nil, errFrameShortRead(ip)
	}
	return decodeWords(payloadOf(buf, s.layout)), nil
}

func (s *BqStorage) NodeDistanceMeasure(mgr page.Manager, meta *metapage.MetaPage, ip vamana.IndexPointer) (NodeDistanceMeasure, error) {
	w, err := s.wordsOf(mgr, ip)
	if err != nil {
		return nil, err
	}
	return &bqDistanceMeasure{storage: s, words: w}, nil
}

func (s *BqStorage) QueryDistanceMeasure(meta *metapage.MetaPage, query vamana.Vector) QueryDistanceMeasure {
	return &bqDistanceMeasure{storage: s, words: s.bq.Encode(query)}
}

type bqDistanceMeasure struct {
	storage *BqStorage
	words   []uint64
}

func (m *bqDistanceMeasure) DistanceToNode(mgr page.Manager, ip vamana.IndexPointer) (float32, error) {
	w, err := m.storage.wordsOf(mgr, ip)
	if err != nil {
		return 0, err
	}
	return float32(quantize.HammingDistance(m.words, w)), nil
}

func encodeWords(words []uint64) []byte {
	out := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out
}

func decodeWords(b []byte) []uint64 {
	words := make([]uint64, len(b)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return words
}
