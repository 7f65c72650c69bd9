// Package matching scores SUT source items against HUV candidate targets.
// A fixed pipeline of strategies votes on candidates and the Engine turns
// the votes into one ranked decision.
package matching

import (
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

// Strategy names, as they appear on votes and results.
const (
	NameDirectCode         = "DirectCode"
	NameFirstLetter        = "FirstLetter"
	NameGeneralSimilarity  = "GeneralSimilarity"
	NameHierarchyMatching  = "HierarchyMatching"
	NameRadiologyKeyword   = "RadiologyKeyword"
	NameSurgicalSimilarity = "SurgicalSimilarity"
)

// Strategy is one matching heuristic. Evaluate returns votes in candidate
// order, possibly none, with scores in [0,100]. Implementations must not
// modify src or candidates and must be safe for concurrent use.
type Strategy interface {
	Name() string
	// Weight multiplies this strategy's scores during aggregation.
	Weight() float64
	Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote
}

// Stage places a strategy in the pipeline.
type Stage struct {
	Strategy Strategy
	// ShortCircuits ends the pipeline when a vote reaches the short-circuit threshold.
	ShortCircuits bool
	// Narrows restricts the candidates of later stages to the ones this stage
	// voted for, when narrowing is enabled and the stage voted at all.
	Narrows bool
}

// Weights are the per-strategy aggregation multipliers.
type Weights struct {
	DirectCode         float64 `yaml:"direct_code"`
	HierarchyMatching  float64 `yaml:"hierarchy_matching"`
	RadiologyKeyword   float64 `yaml:"radiology_keyword"`
	SurgicalSimilarity float64 `yaml:"surgical_similarity"`
	FirstLetter        float64 `yaml:"first_letter"`
	GeneralSimilarity  float64 `yaml:"general_similarity"`
}

// DefaultWeights favours code evidence, then name similarity. The keyword
// and hierarchy strategies add on top of GeneralSimilarity.
func DefaultWeights() Weights {
	return Weights{
		DirectCode:         1.0,
		HierarchyMatching:  0.3,
		RadiologyKeyword:   0.5,
		SurgicalSimilarity: 0.5,
		FirstLetter:        0.15,
		GeneralSimilarity:  0.8,
	}
}

// DefaultPipeline returns the stages in priority order: DirectCode,
// HierarchyMatching, the keyword variants, FirstLetter, GeneralSimilarity.
func DefaultPipeline(w Weights) []Stage {
	return []Stage{
		{Strategy: NewDirectCode(w.DirectCode), ShortCircuits: true},
		{Strategy: NewHierarchyMatching(w.HierarchyMatching)},
		{Strategy: NewRadiologyKeyword(w.RadiologyKeyword)},
		{Strategy: NewSurgicalSimilarity(w.SurgicalSimilarity)},
		{Strategy: NewFirstLetter(w.FirstLetter), Narrows: true},
		{Strategy: NewGeneralSimilarity(w.GeneralSimilarity)},
	}
}

// Blend weights for name similarity.
const (
	tokenOverlapWeight = 0.6
	editDistanceWeight = 0.4
)

// nameSimilarity blends token overlap and edit distance into 0..1.
func nameSimilarity(a, b string) float64 {
	return tokenOverlapWeight*similarity.TokenOverlapScore(a, b) +
		editDistanceWeight*similarity.EditDistanceScore(a, b)
}

func toPercent(v float64) float64 {
	return min(max(v*100, 0), 100)
}
