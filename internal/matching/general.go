package matching

import (
	"fmt"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// GeneralSimilarity is the fallback: 0.6 token overlap plus 0.4 edit
// distance on the names. It votes for every candidate.
type GeneralSimilarity struct {
	weight float64
}

// NewGeneralSimilarity returns the fallback strategy.
func NewGeneralSimilarity(weight float64) *GeneralSimilarity {
	return &GeneralSimilarity{weight: weight}
}

func (g *GeneralSimilarity) Name() string    { return NameGeneralSimilarity }
func (g *GeneralSimilarity) Weight() float64 { return g.weight }

func (g *GeneralSimilarity) Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote {
	votes := make([]domain.StrategyVote, 0, len(candidates))
	for i := range candidates {
		sim := nameSimilarity(src.Name, candidates[i].Name)
		votes = append(votes, domain.StrategyVote{
			Strategy:    NameGeneralSimilarity,
			CandidateID: candidates[i].ID,
			Score:       toPercent(sim),
			Rationale:   fmt.Sprintf("name similarity %.2f", sim),
		})
	}
	return votes
}
