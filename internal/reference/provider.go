// Package reference supplies source items and candidate targets to the
// matching core. Everything it returns is a snapshot the caller owns.
package reference

import (
	"context"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// Filter narrows ListCandidates. The zero value lists every candidate.
type Filter struct {
	// MainBranch keeps candidates whose first hierarchy segment matches,
	// compared case-insensitively.
	MainBranch string `json:"main_branch,omitempty"`
	// Tags keeps candidates carrying at least one of the tags.
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Provider is the reference-data boundary.
type Provider interface {
	// GetSourceItem returns domain.ErrNotFound for unknown ids.
	GetSourceItem(ctx context.Context, id string) (*domain.SourceItem, error)
	ListCandidates(ctx context.Context, filter Filter) ([]domain.CandidateTarget, error)
	// SnapshotVersion identifies the current immutable data set. It changes
	// whenever candidates change.
	SnapshotVersion(ctx context.Context) (string, error)
}

// FilterFor returns the candidate filter for src. With byBranch set the
// candidates are restricted to src's main branch when it has one.
func FilterFor(src *domain.SourceItem, byBranch bool) Filter {
	if !byBranch || src == nil {
		return Filter{}
	}
	return Filter{MainBranch: src.Hierarchy.MainBranch()}
}
