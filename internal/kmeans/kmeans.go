// Package kmeans implements k-means++ seeded Lloyd's-algorithm clustering
// over float32 vectors, used by the PQ quantizer to train one codebook per
// segment. Adapted from
// therealutkarshpriyadarshi-vector/internal/quantization/utils.go's
// KMeansPlusPlus, generalized to accept a plain distance function instead
// of a config-driven metric switch.
package kmeans

import (
	"fmt"
	"math"
	"math/rand"
)

// Options controls the clustering run.
type Options struct {
	K             int
	NumIterations int
	Seed          int64
	Distance      func(a, b []float32) float32
}

// Run clusters vectors into opts.K centroids using k-means++ seeding
// followed by Lloyd's iteration. Requires len(vectors) >= opts.K.
func Run(vectors [][]float32, opts Options) ([][]float32, error) {
	k := opts.K
	if len(vectors) < k {
		return nil, fmt.Errorf("kmeans: not enough samples (%d) for %d clusters", len(vectors), k)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("kmeans: empty vectors")
	}
	dist := opts.Distance
	if dist == nil {
		dist = func(a, b []float32) float32 {
			var sum float32
			for i := range a {
				d := a[i] - b[i]
				sum += d * d
			}
			return float32(math.Sqrt(float64(sum)))
		}
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	r := rand.New(rand.NewSource(opts.Seed))

	firstIdx := r.Intn(len(vectors))
	centroids[0] = append([]float32(nil), vectors[firstIdx]...)

	for c := 1; c < k; c++ {
		distances := make([]float32, len(vectors))
		var total float32
		for i, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			for j := 0; j < c; j++ {
				if d := dist(vec, centroids[j]); d < minDist {
					minDist = d
				}
			}
			distances[i] = minDist * minDist
			total += distances[i]
		}

		if total > 0 {
			target := r.Float32() * total
			var cumulative float32
			for i, d := range distances {
				cumulative += d
				if cumulative >= target {
					centroids[c] = append([]float32(nil), vectors[i]...)
					break
				}
			}
			if centroids[c] == nil {
				centroids[c] = append([]float32(nil), vectors[len(vectors)-1]...)
			}
		} else {
			idx := r.Intn(len(vectors))
			centroids[c] = append([]float32(nil), vectors[idx]...)
		}
	}

	iters := opts.NumIterations
	if iters <= 0 {
		iters = 25
	}

	for iter := 0; iter < iters; iter++ {
		clusters := make([][][]float32, k)
		for _, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			minCluster := 0
			for c, centroid := range centroids {
				if d := dist(vec, centroid); d < minDist {
					minDist = d
					minCluster = c
				}
			}
			clusters[minCluster] = append(clusters[minCluster], vec)
		}

		converged := true
		for c := range centroids {
			if len(clusters[c]) == 0 {
				continue
			}
			newCentroid := make([]float32, dim)
			for _, vec := range clusters[c] {
				for d := 0; d < dim; d++ {
					newCentroid[d] += vec[d]
				}
			}
			for d := 0; d < dim; d++ {
				newCentroid[d] /= float32(len(clusters[c]))
			}
			if dist(centroids[c], newCentroid) > 1e-6 {
				converged = false
			}
			centroids[c] = newCentroid
		}

		if converged {
			break
		}
	}

	return centroids, nil
}
