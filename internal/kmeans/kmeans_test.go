package kmeans

import (
	"math"
	"math/rand"
	"testing"
)

func euclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// generateClusteredPoints builds nClusters well-separated blobs of
// perCluster points each, so a correct k-means run should recover roughly
// one centroid per blob.
func generateClusteredPoints(nClusters, perCluster, dim int) [][]float32 {
	r := rand.New(rand.NewSource(1))
	var points [][]float32
	for c := 0; c < nClusters; c++ {
		center := make([]float32, dim)
		for d := 0; d < dim; d++ {
			center[d] = float32(c * 100)
		}
		for i := 0; i < perCluster; i++ {
			p := make([]float32, dim)
			for d := 0; d < dim; d++ {
				p[d] = center[d] + float32(r.NormFloat64())
			}
			points = append(points, p)
		}
	}
	return points
}

func TestRunProducesKCentroidsOfCorrectDimension(t *testing.T) {
	points := generateClusteredPoints(4, 50, 8)
	centroids, err := Run(points, Options{K: 4, NumIterations: 25, Seed: 7, Distance: euclidean})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(centroids) != 4 {
		t.Fatalf("Run returned %d centroids, want 4", len(centroids))
	}
	for i, c := range centroids {
		if len(c) != 8 {
			t.Fatalf("centroid %d has dimension %d, want 8", i, len(c))
		}
	}
}

func TestRunSeparatesWellSeparatedClusters(t *testing.T) {
	points := generateClusteredPoints(3, 60, 4)
	centroids, err := Run(points, Options{K: 3, NumIterations: 25, Seed: 3, Distance: euclidean})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Each input blob's center should end up close to exactly one returned
	// centroid, and the three resulting nearest centroids should be distinct.
	seen := make(map[int]bool)
	for c := 0; c < 3; c++ {
		center := make([]float32, 4)
		for d := range center {
			center[d] = float32(c * 100)
		}
		best, bestDist := -1, float32(math.MaxFloat32)
		for i, cen := range centroids {
			if d := euclidean(center, cen); d < bestDist {
				best, bestDist = i, d
			}
		}
		if bestDist > 20 {
			t.Fatalf("cluster %d's nearest centroid is %.2f away, want < 20", c, bestDist)
		}
		seen[best] = true
	}
	if len(seen) != 3 {
		t.Fatalf("only %d distinct centroids matched the 3 input blobs, want 3", len(seen))
	}
}

func TestRunFailsWithTooFewSamples(t *testing.T) {
	points := generateClusteredPoints(1, 2, 4)
	if _, err := Run(points, Options{K: 5, Distance: euclidean}); err == nil {
		t.Fatal("Run should fail when there are fewer samples than clusters")
	}
}

func TestRunFailsOnEmptyInput(t *testing.T) {
	if _, err := Run(nil, Options{K: 1, Distance: euclidean}); err == nil {
		t.Fatal("Run should fail on empty input")
	}
}

func TestRunDefaultsDistanceAndIterations(t *testing.T) {
	points := generateClusteredPoints(2, 20, 4)
	centroids, err := Run(points, Options{K: 2, Seed: 1})
	if err != nil {
		t.Fatalf("Run with zero-value Distance/NumIterations failed: %v", err)
	}
	if len(centroids) != 2 {
		t.Fatalf("Run returned %d centroids, want 2", len(centroids))
	}
}

func TestRunIsDeterministicForFixedSeed(t *testing.T) {
	points := generateClusteredPoints(3, 30, 6)
	a, err := Run(points, Options{K: 3, NumIterations: 25, Seed: 99, Distance: euclidean})
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	b, err := Run(points, Options{K: 3, NumIterations: 25, Seed: 99, Distance: euclidean})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	for i := range a {
		if euclidean(a[i], b[i]) > 1e-6 {
			t.Fatalf("two runs with the same seed diverged at centroid %d: %v vs %v", i, a[i], b[i])
		}
	}
}
