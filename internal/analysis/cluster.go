package analysis

import (
	"math"
	"math/rand"
	"time"

	"github.com/mrcode/glucose-insights/internal/models"
)

const (
	// DefaultMaxIterations bounds Lloyd's algorithm when the caller passes 0
	DefaultMaxIterations = 100

	inertiaTolerance = 0.001
)

// KMeans groups scalar data into k clusters using Lloyd's algorithm.
//
// Initial centroids are k data points drawn with rng; a nil rng
// is seeded from the clock. With fewer points than clusters every point is
// assigned to cluster 0 and the data itself is returned as centroids.
func KMeans(data []float64, k, maxIterations int, rng *rand.Rand) models.ClusterResult {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	if k <= 0 || len(data) < k {
		centroids := make([]float64, len(data))
		copy(centroids, data)
		return models.ClusterResult{
			Assignments: make([]int, len(data)),
			Centroids:   centroids,
		}
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // Not used for security
	}

	centroids := initialCentroids(data, k, rng)

	assignments := make([]int, len(data))
	var history []float64
	inertia := math.Inf(1)
	iterations := 0

	for iterations < maxIterations {
		iterations++

		for i, v := range data {
			assignments[i] = nearestCentroid(v, centroids)
		}

		updateCentroids(data, assignments, centroids)

		next := clusterInertia(data, assignments, centroids)
		history = append(history, next)

		if math.Abs(inertia-next) < inertiaTolerance {
			inertia = next
			break
		}
		inertia = next
	}

	return models.ClusterResult{
		Assignments:    assignments,
		Centroids:      centroids,
		Inertia:        inertia,
		Iterations:     iterations,
		InertiaHistory: history,
	}
}

// initialCentroids draws k data points in random order, preferring distinct
// values so that repeated readings do not collapse two clusters into one
func initialCentroids(data []float64, k int, rng *rand.Rand) []float64 {
	centroids := make([]float64, 0, k)
	seen := make(map[float64]bool)
	var duplicates []float64

	for _, idx := range rng.Perm(len(data)) {
		v := data[idx]
		if seen[v] {
			duplicates = append(duplicates, v)
			continue
		}
		seen[v] = true
		centroids = append(centroids, v)
		if len(centroids) == k {
			return centroids
		}
	}

	return append(centroids, duplicates[:k-len(centroids)]...)
}

func nearestCentroid(v float64, centroids []float64) int {
	best := 0
	bestDist := math.Abs(v - centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := math.Abs(v - centroids[c]); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// updateCentroids moves each centroid to the mean of its points.
// A centroid without points keeps its position.
func updateCentroids(data []float64, assignments []int, centroids []float64) {
	sums := make([]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i, v := range data {
		sums[assignments[i]] += v
		counts[assignments[i]]++
	}
	for c := range centroids {
		if counts[c] > 0 {
			centroids[c] = sums[c] / float64(counts[c])
		}
	}
}

func clusterInertia(data []float64, assignments []int, centroids []float64) float64 {
	var total float64
	for i, v := range data {
		d := v - centroids[assignments[i]]
		total += d * d
	}
	return total
}
