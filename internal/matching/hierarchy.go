package matching

import (
	"fmt"

	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

const (
	exactBranchScore = 100.0
	// branch names this close are treated as the same branch (spelling variants)
	branchSimilarityFloor = 0.9
)

// HierarchyMatching compares classification paths. An identical path
// scores 100; a shared ancestor scores by the share of the deeper path.
type HierarchyMatching struct {
	weight float64
}

// NewHierarchyMatching returns the hierarchy strategy.
func NewHierarchyMatching(weight float64) *HierarchyMatching {
	return &HierarchyMatching{weight: weight}
}

func (h *HierarchyMatching) Name() string    { return NameHierarchyMatching }
func (h *HierarchyMatching) Weight() float64 { return h.weight }

// Evaluate abstains when the source has no hierarchy and for candidates
// that share no branch.
func (h *HierarchyMatching) Evaluate(src *domain.SourceItem, candidates []domain.CandidateTarget) []domain.StrategyVote {
	if len(src.Hierarchy) == 0 {
		return nil
	}

	var votes []domain.StrategyVote
	for i := range candidates {
		path := candidates[i].Hierarchy
		depth := sharedDepth(src.Hierarchy, path)
		if depth == 0 {
			continue
		}

		deeper := max(len(src.Hierarchy), len(path))
		vote := domain.StrategyVote{
			Strategy:    NameHierarchyMatching,
			CandidateID: candidates[i].ID,
		}
		if depth == deeper {
			vote.Score = exactBranchScore
			vote.Rationale = "exact branch match"
		} else {
			vote.Score = exactBranchScore * float64(depth) / float64(deeper)
			vote.Rationale = fmt.Sprintf("shared ancestor %q (depth %d/%d)", path[depth-1], depth, deeper)
		}
		votes = append(votes, vote)
	}
	return votes
}

func sharedDepth(a, b domain.Hierarchy) int {
	n := min(len(a), len(b))
	depth := 0
	for depth < n && sameBranch(a[depth], b[depth]) {
		depth++
	}
	return depth
}

func sameBranch(a, b string) bool {
	na, nb := similarity.Normalize(a), similarity.Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || similarity.EditDistanceScore(na, nb) >= branchSimilarityFloor
}
