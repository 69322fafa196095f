// Package quantize implements the two compressed storage payloads spec.md
// §4.3 describes: product quantization (PQ) and mean-centered binary
// quantization (BQ). PQ training/encode/asymmetric-distance is adapted
// from therealutkarshpriyadarshi-vector/internal/quantization/product.go;
// BQ's bit-packing and Hamming distance are adapted from
// kasuganosora-sqlexec/pkg/resource/memory/ivf_rabitq_index.go, with its
// random-projection encode step replaced by mean-centering per spec.md.
package quantize

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pgvectorscale/tsv/internal/kmeans"
	"github.com/pgvectorscale/tsv/pkg/vamana"
)

// MinTrainingSamples is the floor below which PQ training fails with a
// TrainingError (spec.md §4.3: "Fail if fewer than ~300 samples").
const MinTrainingSamples = 300

// ProductQuantizer divides a vector into equal-length segments and
// quantizes each independently via a 256-centroid k-means codebook.
type ProductQuantizer struct {
	segments     int
	segmentDim   int
	codebooks    [][][]float32 // codebooks[segment][code] = centroid
	samples      [][]float32
	metric       vamana.Metric
}

const codesPerSegment = 256

// NewProductQuantizer prepares a quantizer for training. dims must be
// evenly divisible by segmentDim; this is validated at IndexOptions.Validate
// time, not here, so training always receives consistent parameters.
func NewProductQuantizer(dims, segmentDim int, metric vamana.Metric) *ProductQuantizer {
	return &ProductQuantizer{
		segments:   dims / segmentDim,
		segmentDim: segmentDim,
		codebooks:  make([][][]float32, dims/segmentDim),
		metric:     metric,
	}
}

// AddSample accumulates a training vector during the first heap pass.
func (pq *ProductQuantizer) AddSample(v vamana.Vector) {
	cp := make([]float32, len(v))
	copy(cp, v)
	pq.samples = append(pq.samples, cp)
}

// FinishTraining runs k-means independently on each segment's slice across
// all accumulated samples.
func (pq *ProductQuantizer) FinishTraining() error {
	if len(pq.samples) < MinTrainingSamples {
		return &vamana.Error{Kind: vamana.TrainingError, Err: fmt.Errorf(
			"need at least %d training samples, got %d", MinTrainingSamples, len(pq.samples))}
	}

	dist := func(a, b []float32) float32 { return vamana.DistanceFuncFor(pq.metric)(a, b) }

	for sv := 0; sv < pq.segments; sv++ {
		start := sv * pq.segmentDim
		end := start + pq.segmentDim
		subvectors := make([][]float32, len(pq.samples))
		for i, vec := range pq.samples {
			subvectors[i] = vec[start:end]
		}
		centroids, err := kmeans.Run(subvectors, kmeans.Options{
			K: codesPerSegment, NumIterations: 25, Seed: 42, Distance: dist,
		})
		if err != nil {
			return &vamana.Error{Kind: vamana.TrainingError, Err: fmt.Errorf("segment %d: %w", sv, err)}
		}
		pq.codebooks[sv] = centroids
	}
	pq.samples = nil
	return nil
}

// Encode chooses, per segment, the centroid index with minimum distance.
func (pq *ProductQuantizer) Encode(v vamana.Vector) []byte {
	codes := make([]byte, pq.segments)
	dist := vamana.DistanceFuncFor(pq.metric)
	for sv := 0; sv < pq.segments; sv++ {
		start := sv * pq.segmentDim
		end := start + pq.segmentDim
		sub := v[start:end]
		minDist := float32(math.MaxFloat32)
		minCode := 0
		for code, centroid := range pq.codebooks[sv] {
			if d := dist(sub, centroid); d < minDist {
				minDist = d
				minCode = code
			}
		}
		codes[sv] = byte(minCode)
	}
	return codes
}

// DistanceTable precomputes, for a query vector, the distance from each
// query segment to every centroid of that segment's codebook.
type DistanceTable [][]float32

// ComputeDistanceTable builds the lookup table used by AsymmetricDistance.
func (pq *ProductQuantizer) ComputeDistanceTable(query vamana.Vector) DistanceTable {
	table := make(DistanceTable, pq.segments)
	for sv := 0; sv < pq.segments; sv++ {
		start := sv * pq.segmentDim
		end := start + pq.segmentDim
		qs := query[start:end]
		table[sv] = make([]float32, len(pq.codebooks[sv]))
		for code, centroid := range pq.codebooks[sv] {
			var d float32
			for i := 0; i < pq.segmentDim; i++ {
				diff := qs[i] - centroid[i]
				d += diff * diff
			}
			table[sv][code] = d
		}
	}
	return table
}

// AsymmetricDistance sums precomputed table lookups over a node's codes.
// O(segments) instead of O(dims).
func (pq *ProductQuantizer) AsymmetricDistance(table DistanceTable, codes []byte) float32 {
	var total float32
	for sv, code := range codes {
		total += table[sv][code]
	}
	return float32(math.Sqrt(float64(total)))
}

// Decode reconstructs an approximate vector from codes, for re-ranking
// paths that need a full-length vector rather than a table lookup.
func (pq *ProductQuantizer) Decode(codes []byte) vamana.Vector {
	v := make(vamana.Vector, pq.segments*pq.segmentDim)
	for sv, code := range codes {
		copy(v[sv*pq.segmentDim:(sv+1)*pq.segmentDim], pq.codebooks[sv][code])
	}
	return v
}

func (pq *ProductQuantizer) Segments() int   { return pq.segments }
func (pq *ProductQuantizer) SegmentDim() int { return pq.segmentDim }

// Trained reports whether FinishTraining has populated the codebooks.
// Segments is set at construction time, before training, so it cannot
// itself signal readiness.
func (pq *ProductQuantizer) Trained() bool { return pq.segments > 0 && pq.codebooks[0] != nil }

// Serialize writes the codebooks to a byte blob for persistence on
// PqBlob pages, using the teacher's encoding/binary + Float32bits idiom.
func (pq *ProductQuantizer) Serialize() []byte {
	header := 8
	body := pq.segments * codesPerSegment * pq.segmentDim * 4
	out := make([]byte, header+body)
	binary.LittleEndian.PutUint32(out[0:], uint32(pq.segments))
	binary.LittleEndian.PutUint32(out[4:], uint32(pq.segmentDim))
	off := header
	for sv := 0; sv < pq.segments; sv++ {
		for code := 0; code < codesPerSegment; code++ {
			for d := 0; d < pq.segmentDim; d++ {
				binary.LittleEndian.PutUint32(out[off:], math.Float32bits(pq.codebooks[sv][code][d]))
				off += 4
			}
		}
	}
	return out
}

// DeserializeProductQuantizer reconstructs a trained quantizer from a blob
// written by Serialize.
func DeserializeProductQuantizer(data []byte, metric vamana.Metric) (*ProductQuantizer, error) {
	if len(data) < 8 {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: fmt.Errorf("pq blob too short")}
	}
	segments := int(binary.LittleEndian.Uint32(data[0:]))
	segmentDim := int(binary.LittleEndian.Uint32(data[4:]))
	pq := &ProductQuantizer{segments: segments, segmentDim: segmentDim, metric: metric}
	pq.codebooks = make([][][]float32, segments)
	off := 8
	for sv := 0; sv < segments; sv++ {
		pq.codebooks[sv] = make([][]float32, codesPerSegment)
		for code := 0; code < codesPerSegment; code++ {
			pq.codebooks[sv][code] = make([]float32, segmentDim)
			for d := 0; d < segmentDim; d++ {
				if off+4 > len(data) {
					return nil, &vamana.Error{Kind: vamana.StorageError, Err: fmt.Errorf("pq blob truncated")}
				}
				pq.codebooks[sv][code][d] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
				off += 4
			}
		}
	}
	return pq, nil
}
