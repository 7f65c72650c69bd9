package matching

import (
	"fmt"
	"strings"

	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

const (
	radiologyBoost = 1.5
	// same modality on both sides is strong evidence on its own
	radiologyModalityFloor = 0.6
	// both sides are imaging but name different modalities
	radiologyMismatchFactor = 0.5
)

// RadiologyKeyword is GeneralSimilarity tuned for imaging procedures. It
// activates only when the source or candidate mentions an imaging keyword
// (or the candidate is tagged radiology), and rewards a shared modality.
type RadiologyKeyword struct {
	weight float64
	index  *keywordIndex
}

// NewRadiologyKeyword returns the radiology strategy.
func NewRadiologyKeyword(weight float64) *RadiologyKeyword {
	return &RadiologyKeyword{weight: weight, index: newKeywordIndex(radiologyGroups)}
}

func (r *RadiologyKeyword) Name() string    { return NameRadiologyKeyword }
func (r *RadiologyKeyword) Weight() float64 { return r.weight }

func (r *RadiologyKeyword) Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote {
	srcHits := r.index.scan(src.Text())

	var votes []domain.StrategyVote
	for i := range candidates {
		c := &candidates[i]
		candHits := r.index.scan(c.Name)
		if len(srcHits) == 0 && len(candHits) == 0 && !c.HasTag(domain.TagRadiology) {
			continue
		}

		base := nameSimilarity(src.Name, c.Name)
		score, rationale := base, "imaging keyword on one side only"
		switch shared := srcHits.shared(candHits, groupGeneral); {
		case len(shared) > 0:
			boosted := similarity.KeywordWeightedScore(base, c.Name, shared, radiologyBoost)
			score = max(boosted, radiologyModalityFloor)
			rationale = "same imaging modality: " + strings.Join(shared, ", ")
		case srcHits.specific(groupGeneral) && candHits.specific(groupGeneral):
			score = base * radiologyMismatchFactor
			rationale = "different imaging modality"
		}

		votes = append(votes, domain.StrategyVote{
			Strategy:    NameRadiologyKeyword,
			CandidateID: c.ID,
			Score:       toPercent(score),
			Rationale:   fmt.Sprintf("%s (name similarity %.2f)", rationale, base),
		})
	}
	return votes
}
