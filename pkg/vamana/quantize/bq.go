package quantize

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/pgvectorscale/tsv/pkg/vamana"
)

// BinaryQuantizer trains a running per-dimension mean and encodes vectors
// as a sign-vs-mean bit vector packed into 64-bit words, adapted from
// kasuganosora-sqlexec's RaBitQ quantizer with the random-projection step
// replaced by mean-centering (spec.md §4.3: "bit i = sign(vector[i] -
// mean[i])").
type BinaryQuantizer struct {
	dims    int
	sum     []float64
	samples int
	mean    []float32
}

// NewBinaryQuantizer prepares a quantizer for training over vectors of the
// given dimensionality.
func NewBinaryQuantizer(dims int) *BinaryQuantizer {
	return &BinaryQuantizer{dims: dims, sum: make([]float64, dims)}
}

// AddSample accumulates a running sum used to compute the mean.
func (bq *BinaryQuantizer) AddSample(v vamana.Vector) {
	for i, x := range v {
		bq.sum[i] += float64(x)
	}
	bq.samples++
}

// FinishTraining finalizes the per-dimension mean.
func (bq *BinaryQuantizer) FinishTraining() error {
	if bq.samples == 0 {
		return &vamana.Error{Kind: vamana.TrainingError, Err: errNoSamples()}
	}
	bq.mean = make([]float32, bq.dims)
	for i, s := range bq.sum {
		bq.mean[i] = float32(s / float64(bq.samples))
	}
	bq.sum = nil
	return nil
}

// wordsFor returns the number of uint64 words needed to pack dims bits.
func wordsFor(dims int) int { return (dims + 63) / 64 }

// Encode returns the mean-centered sign bit vector, packed LSB-first within
// each 64-bit word in dimension order (dimension d is bit d%64 of word d/64).
func (bq *BinaryQuantizer) Encode(v vamana.Vector) []uint64 {
	words := make([]uint64, wordsFor(bq.dims))
	for d := 0; d < bq.dims; d++ {
		if v[d]-bq.mean[d] >= 0 {
			words[d/64] |= 1 << uint(d%64)
		}
	}
	return words
}

// HammingDistance counts the differing bits between two codes via
// XOR+popcount, used as a graph-traversal ranking proxy.
func HammingDistance(a, b []uint64) int {
	var total int
	for i := range a {
		total += bits.OnesCount64(a[i] ^ b[i])
	}
	return total
}

func (bq *BinaryQuantizer) Mean() []float32 { return bq.mean }
func (bq *BinaryQuantizer) Dims() int       { return bq.dims }

// Serialize writes the trained mean vector to a blob for persistence on
// BqBlob pages.
func (bq *BinaryQuantizer) Serialize() []byte {
	out := make([]byte, 4+bq.dims*4)
	binary.LittleEndian.PutUint32(out[0:], uint32(bq.dims))
	off := 4
	for _, m := range bq.mean {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(m))
		off += 4
	}
	return out
}

// DeserializeBinaryQuantizer reconstructs a trained quantizer from a blob
// written by Serialize.
func DeserializeBinaryQuantizer(data []byte) (*BinaryQuantizer, error) {
	if len(data) < 4 {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errBlobTooShort("bq")}
	}
	dims := int(binary.LittleEndian.Uint32(data[0:]))
	bq := &BinaryQuantizer{dims: dims, mean: make([]float32, dims)}
	off := 4
	for i := 0; i < dims; i++ {
		if off+4 > len(data) {
			return nil, &vamana.Error{Kind: vamana.StorageError, Err: errBlobTruncated("bq")}
		}
		bq.mean[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	return bq, nil
}
