package matching

import (
	"fmt"

	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

const (
	exactCodeScore  = 100.0
	prefixCodeFloor = 80.0
	// prefix matches stay below the default short-circuit threshold
	prefixCodeSpan = 14.0
)

// DirectCode compares procedure codes. Identical codes score 100; a code
// that is a whole-segment prefix of the other ("89" vs "89.03") scores
// between 80 and 94 depending on how much of the longer code is shared.
type DirectCode struct {
	weight float64
}

// NewDirectCode returns the code strategy.
func NewDirectCode(weight float64) *DirectCode {
	return &DirectCode{weight: weight}
}

func (d *DirectCode) Name() string    { return NameDirectCode }
func (d *DirectCode) Weight() float64 { return d.weight }

// Evaluate abstains entirely when the source has no code.
func (d *DirectCode) Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote {
	srcSegs := similarity.CodeSegments(src.Code)
	if len(srcSegs) == 0 {
		return nil
	}

	var votes []domain.StrategyVote
	for i := range candidates {
		candSegs := similarity.CodeSegments(candidates[i].Code)
		if len(candSegs) == 0 {
			continue
		}
		score, rationale, ok := compareCodes(srcSegs, candSegs)
		if !ok {
			continue
		}
		votes = append(votes, domain.StrategyVote{
			Strategy:    NameDirectCode,
			CandidateID: candidates[i].ID,
			Score:       score,
			Rationale:   rationale,
		})
	}
	return votes
}

func compareCodes(a, b []string) (float64, string, bool) {
	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	shared := 0
	for shared < shorter && a[shared] == b[shared] {
		shared++
	}
	if shared < shorter {
		return 0, "", false
	}
	if shared == longer {
		return exactCodeScore, "exact code match", true
	}

	score := prefixCodeFloor + prefixCodeSpan*float64(shared)/float64(longer)
	return score, fmt.Sprintf("prefix code match (%d/%d segments)", shared, longer), true
}
