package matching

import (
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

const (
	sameLeadingWordScore   = 40.0
	sameLeadingLetterScore = 20.0
)

// FirstLetter is a cheap pre-filter on the leading word of the names. It
// never scores above 40.
type FirstLetter struct {
	weight float64
}

// NewFirstLetter returns the leading-word strategy.
func NewFirstLetter(weight float64) *FirstLetter {
	return &FirstLetter{weight: weight}
}

func (f *FirstLetter) Name() string    { return NameFirstLetter }
func (f *FirstLetter) Weight() float64 { return f.weight }

// Evaluate votes only for candidates sharing the leading word or letter.
func (f *FirstLetter) Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote {
	srcTokens := similarity.Tokenize(src.Name)
	if len(srcTokens) == 0 {
		return nil
	}
	lead := srcTokens[0]
	leadLetter := []rune(lead)[0]

	var votes []domain.StrategyVote
	for i := range candidates {
		tokens := similarity.Tokenize(candidates[i].Name)
		if len(tokens) == 0 {
			continue
		}
		switch {
		case tokens[0] == lead:
			votes = append(votes, domain.StrategyVote{
				Strategy:    NameFirstLetter,
				CandidateID: candidates[i].ID,
				Score:       sameLeadingWordScore,
				Rationale:   "same leading word",
			})
		case []rune(tokens[0])[0] == leadLetter:
			votes = append(votes, domain.StrategyVote{
				Strategy:    NameFirstLetter,
				CandidateID: candidates[i].ID,
				Score:       sameLeadingLetterScore,
				Rationale:   "same leading letter",
			})
		}
	}
	return votes
}
