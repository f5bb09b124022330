package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// ComputeDistance returns the distance between v1 and v2
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

func validDistance(distType DistanceType) bool {
	switch distType {
	case Cosine, DotProduct, Euclidean:
		return true
	}
	return false
}

func cosineDistance(v1, v2 []float32) float32 {
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dotProduct(v1, v2) / (norm1 * norm2)
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := range v1 {
		dot += v1[i] * v2[i]
	}
	return dot
}

func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// DistanceToScore maps a distance into [0, 1], higher meaning closer
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// assumes normalized vectors, dot in [-1, 1]
		return (distance + 1) / 2
	case Euclidean:
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// SortSearchResults orders results by score, best first; ties keep chunk order
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.Position < results[j].Entry.Position
	})
}

// ValidateVector checks a vector is non-empty and of the expected dimension
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}
	return nil
}

func matchFilter(entry Entry, sources map[string]bool, metadata map[string]interface{}) bool {
	if len(sources) > 0 && !sources[entry.Source] {
		return false
	}
	for key, want := range metadata {
		got, ok := entry.Metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
