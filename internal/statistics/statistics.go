// Package statistics summarises match results. It holds no state; every
// call recomputes from its input.
package statistics

import (
	"math"
	"strconv"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// DefaultBounds are the inner edges of the confidence histogram:
// [0,50), [50,70), [70,85), [85,100].
var DefaultBounds = []float64{50, 70, 85}

// Compute summarises results with DefaultBounds.
func Compute(results []domain.MatchResult) domain.Statistics {
	return ComputeWithBounds(results, DefaultBounds)
}

// ComputeWithBounds summarises results. Failed results count only toward
// Total, Failed and UnmatchedIDs. Confidence buckets and the average cover
// matched results.
func ComputeWithBounds(results []domain.MatchResult, bounds []float64) domain.Statistics {
	stats := domain.Statistics{
		Total:        len(results),
		Buckets:      newBuckets(bounds),
		ByStrategy:   make(map[string]int),
		UnmatchedIDs: []string{},
	}

	var sum float64
	for i := range results {
		r := &results[i]
		switch r.Method {
		case domain.MethodAI:
			stats.AIAccepted++
		case domain.MethodAIFallback:
			stats.AIFallback++
		}

		switch {
		case r.Failed():
			stats.Failed++
			stats.UnmatchedIDs = append(stats.UnmatchedIDs, r.SourceID)
		case r.Matched():
			stats.Matched++
			stats.ByStrategy[r.Strategy]++
			sum += r.Confidence
			stats.Buckets[bucketIndex(stats.Buckets, r.Confidence)].Count++
		default:
			stats.Unmatched++
			stats.UnmatchedIDs = append(stats.UnmatchedIDs, r.SourceID)
		}
	}

	if stats.Matched > 0 {
		stats.AverageConfidence = math.Round(sum/float64(stats.Matched)*100) / 100
	}
	return stats
}

// MatchRate is matched over total, 0 for an empty summary.
func MatchRate(s domain.Statistics) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Total)
}

func newBuckets(bounds []float64) []domain.Bucket {
	edges := make([]float64, 0, len(bounds)+2)
	edges = append(edges, domain.MinConfidence)
	for _, b := range bounds {
		if b > edges[len(edges)-1] && b < domain.MaxConfidence {
			edges = append(edges, b)
		}
	}
	edges = append(edges, domain.MaxConfidence)

	buckets := make([]domain.Bucket, 0, len(edges)-1)
	for i := 0; i+1 < len(edges); i++ {
		buckets = append(buckets, domain.Bucket{
			Label: label(edges[i], edges[i+1]),
			Lower: edges[i],
			Upper: edges[i+1],
		})
	}
	return buckets
}

func bucketIndex(buckets []domain.Bucket, v float64) int {
	for i := range buckets {
		if v < buckets[i].Upper {
			return i
		}
	}
	return len(buckets) - 1
}

func label(lo, hi float64) string {
	return strconv.FormatFloat(lo, 'f', -1, 64) + "-" + strconv.FormatFloat(hi, 'f', -1, 64)
}
