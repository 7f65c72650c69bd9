package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// MemoryProvider serves a fixed data set. It is immutable after
// construction so its snapshot version never changes.
type MemoryProvider struct {
	sources    map[string]domain.SourceItem
	sourceIDs  []string
	candidates []domain.CandidateTarget
	version    string
}

// Dataset is the JSON fixture format read by LoadDataset.
type Dataset struct {
	Sources    []domain.SourceItem      `json:"sources"`
	Candidates []domain.CandidateTarget `json:"candidates"`
}

// NewMemoryProvider validates and copies the data set.
func NewMemoryProvider(sources []domain.SourceItem, candidates []domain.CandidateTarget) (*MemoryProvider, error) {
	if err := domain.ValidateCandidates(candidates); err != nil {
		return nil, err
	}
	p := &MemoryProvider{
		sources:    make(map[string]domain.SourceItem, len(sources)),
		candidates: cloneCandidates(candidates),
	}
	for i := range sources {
		if err := sources[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.sources[sources[i].ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q: %w", sources[i].ID, domain.ErrInvalidInput)
		}
		p.sources[sources[i].ID] = cloneSource(sources[i])
		p.sourceIDs = append(p.sourceIDs, sources[i].ID)
	}

	raw, err := json.Marshal(Dataset{Sources: sources, Candidates: candidates})
	if err != nil {
		return nil, fmt.Errorf("hash dataset: %w", err)
	}
	sum := sha256.Sum256(raw)
	p.version = "mem-" + hex.EncodeToString(sum[:8])
	return p, nil
}

// LoadDataset reads a JSON fixture from path.
func LoadDataset(path string) (*MemoryProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return NewMemoryProvider(ds.Sources, ds.Candidates)
}

// GetSourceItem implements Provider.
func (p *MemoryProvider) GetSourceItem(_ context.Context, id string) (*domain.SourceItem, error) {
	src, ok := p.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
	}
	out := cloneSource(src)
	return &out, nil
}

// SourceIDs lists source ids in load order.
func (p *MemoryProvider) SourceIDs() []string {
	return append([]string(nil), p.sourceIDs...)
}

// ListCandidates implements Provider.
func (p *MemoryProvider) ListCandidates(_ context.Context, filter Filter) ([]domain.CandidateTarget, error) {
	out := make([]domain.CandidateTarget, 0, len(p.candidates))
	for i := range p.candidates {
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		if filter.matches(&p.candidates[i]) {
			out = append(out, cloneCandidate(p.candidates[i]))
		}
	}
	return out, nil
}

// SnapshotVersion implements Provider.
func (p *MemoryProvider) SnapshotVersion(context.Context) (string, error) {
	return p.version, nil
}

func (f Filter) matches(c *domain.CandidateTarget) bool {
	if f.MainBranch != "" && !strings.EqualFold(strings.TrimSpace(c.Hierarchy.MainBranch()), strings.TrimSpace(f.MainBranch)) {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}
	for _, tag := range f.Tags {
		if c.HasTag(tag) {
			return true
		}
	}
	return false
}

func cloneSource(s domain.SourceItem) domain.SourceItem {
	s.Hierarchy = append(domain.Hierarchy(nil), s.Hierarchy...)
	return s
}

func cloneCandidate(c domain.CandidateTarget) domain.CandidateTarget {
	c.Hierarchy = append(domain.Hierarchy(nil), c.Hierarchy...)
	c.Tags = append([]string(nil), c.Tags...)
	return c
}

func cloneCandidates(in []domain.CandidateTarget) []domain.CandidateTarget {
	out := make([]domain.CandidateTarget, len(in))
	for i := range in {
		out[i] = cloneCandidate(in[i])
	}
	return out
}
