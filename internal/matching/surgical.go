package matching

import (
	"fmt"
	"strings"

	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

const (
	surgicalBoost = 1.4
	// one side operative, the other not
	surgicalOneSidedFactor = 0.85
)

// SurgicalSimilarity is GeneralSimilarity tuned for operative procedures.
// It activates only when either side mentions a surgical keyword (or the
// candidate is tagged surgical).
type SurgicalSimilarity struct {
	weight   float64
	index    *keywordIndex
	keywords []string
}

// NewSurgicalSimilarity returns the surgical strategy.
func NewSurgicalSimilarity(weight float64) *SurgicalSimilarity {
	idx := newKeywordIndex(surgicalGroups)
	return &SurgicalSimilarity{weight: weight, index: idx, keywords: idx.allKeywords()}
}

func (s *SurgicalSimilarity) Name() string    { return NameSurgicalSimilarity }
func (s *SurgicalSimilarity) Weight() float64 { return s.weight }

func (s *SurgicalSimilarity) Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote {
	srcHits := s.index.scan(src.Text())

	var votes []domain.StrategyVote
	for i := range candidates {
		c := &candidates[i]
		candHits := s.index.scan(c.Name)
		tagged := c.HasTag(domain.TagSurgical)
		if len(srcHits) == 0 && len(candHits) == 0 && !tagged {
			continue
		}

		base := nameSimilarity(src.Name, c.Name)
		var score float64
		var rationale string
		switch {
		case len(srcHits) > 0 && (len(candHits) > 0 || tagged):
			score = similarity.KeywordWeightedScore(base, src.Text(), s.keywords, surgicalBoost)
			rationale = "both operative"
			if shared := srcHits.shared(candHits, ""); len(shared) > 0 {
				rationale += ": " + strings.Join(shared, ", ")
			}
		default:
			score = base * surgicalOneSidedFactor
			rationale = "operative keyword on one side only"
		}

		votes = append(votes, domain.StrategyVote{
			Strategy:    NameSurgicalSimilarity,
			CandidateID: c.ID,
			Score:       toPercent(score),
			Rationale:   fmt.Sprintf("%s (name similarity %.2f)", rationale, base),
		})
	}
	return votes
}
