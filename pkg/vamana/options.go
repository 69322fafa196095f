package vamana

import (
	"math"
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// StorageType selects the node payload and distance-measure variant.
type StorageType int

const (
	// Plain stores the full-precision vector alongside each node.
	Plain StorageType = iota
	// PqCompression stores a product-quantization code.
	PqCompression
	// BqSpeedup stores a mean-centered bit-packed sign vector.
	BqSpeedup
)

// IndexOptions are the options parsed at CREATE INDEX time (spec.md §6).
type IndexOptions struct {
	Dims int

	NumNeighbors   int     // R: neighbor-slot count per node
	SearchListSize int     // L: candidate-list size used during build
	MaxAlpha       float32 // α for robust-prune, >= 1.0

	UseRQ    bool // unused placeholder kept false; reserved for future storage variants
	UsePQ    bool
	UseBQ    bool
	PQVecLen int // pq_vector_length: segment size, must divide Dims

	Metric Metric

	// BuildIOLimiter optionally throttles the build pipeline's per-row page
	// writes. Nil means unlimited.
	BuildIOLimiter *rate.Limiter
}

// DefaultOptions returns the options used when a CREATE INDEX statement
// supplies none.
func DefaultOptions(dims int) *IndexOptions {
	return &IndexOptions{
		Dims:           dims,
		NumNeighbors:   50,
		SearchListSize: 100,
		MaxAlpha:       1.2,
		Metric:         L2,
	}
}

// StorageDiscriminant resolves which storage variant these options select:
// PqCompression iff UsePQ, else BqSpeedup iff UseBQ, else Plain.
func (o *IndexOptions) StorageDiscriminant() StorageType {
	switch {
	case o.UsePQ:
		return PqCompression
	case o.UseBQ:
		return BqSpeedup
	default:
		return Plain
	}
}

// MaxNeighborsDuringBuild is the slack-expanded neighbor cap used mid-build
// before finalize prunes back down to NumNeighbors. Grounded on the
// original implementation's GRAPH_SLACK_FACTOR = 1.3.
const GraphSlackFactor = 1.3

func (o *IndexOptions) MaxNeighborsDuringBuild() int {
	n := int(math.Ceil(float64(o.NumNeighbors) * GraphSlackFactor))
	if n < o.NumNeighbors {
		n = o.NumNeighbors
	}
	return n
}

// Validate rejects inconsistent options before any page is written,
// mirroring scenario 6 of spec.md §8: an out-of-range dims is a
// SchemaError, every other rejection a ConfigError.
func (o *IndexOptions) Validate() error {
	if o.Dims <= 0 || o.Dims >= MaxDims {
		return newErr(SchemaError, "dims", "dims %d must be in (0, %d)", o.Dims, MaxDims)
	}
	if o.NumNeighbors <= 0 {
		return newErr(ConfigError, "num_neighbors", "must be positive, got %d", o.NumNeighbors)
	}
	if o.SearchListSize < o.NumNeighbors {
		return newErr(ConfigError, "search_list_size", "must be >= num_neighbors (%d), got %d", o.NumNeighbors, o.SearchListSize)
	}
	if o.MaxAlpha < 1.0 {
		return newErr(ConfigError, "max_alpha", "must be >= 1.0, got %f", o.MaxAlpha)
	}
	if o.UsePQ && o.UseBQ {
		return newErr(ConfigError, "use_pq/use_bq", "use_pq and use_bq are mutually exclusive")
	}
	if o.UsePQ {
		if o.PQVecLen <= 0 {
			return newErr(ConfigError, "pq_vector_length", "required and must be positive when use_pq is set")
		}
		if o.Dims%o.PQVecLen != 0 {
			return newErr(ConfigError, "pq_vector_length", "dims (%d) must be divisible by pq_vector_length (%d)", o.Dims, o.PQVecLen)
		}
	}
	return nil
}

// OptionsFromEnv reads index options from environment variables under the
// given prefix (e.g. "TSV_"), falling back to DefaultOptions for anything
// unset. Mirrors the teacher's pkg/config LoadFromEnv idiom.
func OptionsFromEnv(prefix string, dims int) *IndexOptions {
	o := DefaultOptions(dims)

	if v := os.Getenv(prefix + "NUM_NEIGHBORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.NumNeighbors = n
		}
	}
	if v := os.Getenv(prefix + "SEARCH_LIST_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.SearchListSize = n
		}
	}
	if v := os.Getenv(prefix + "MAX_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			o.MaxAlpha = float32(f)
		}
	}
	if v := os.Getenv(prefix + "USE_PQ"); v == "true" {
		o.UsePQ = true
	}
	if v := os.Getenv(prefix + "PQ_VECTOR_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.PQVecLen = n
		}
	}
	if v := os.Getenv(prefix + "USE_BQ"); v == "true" {
		o.UseBQ = true
	}

	return o
}

// RuntimeConfig is the one sanctioned piece of host-sourced, read-only
// mutable state (spec.md §9 "Forbidden patterns"): a per-session override
// of the search-list size used at query time.
type RuntimeConfig struct {
	QuerySearchListSize int
}
