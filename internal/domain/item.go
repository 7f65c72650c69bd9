package domain

import (
	"fmt"
	"strings"
)

// Keyword tags carried by candidates.
const (
	TagRadiology = "radiology"
	TagSurgical  = "surgical"
)

// Hierarchy is a classification path, main branch first.
type Hierarchy []string

// ParseHierarchy splits "Main > Sub" or "Main/Sub" into a Hierarchy,
// dropping empty segments.
func ParseHierarchy(s string) Hierarchy {
	sep := ">"
	if !strings.Contains(s, sep) {
		sep = "/"
	}
	var h Hierarchy
	for part := range strings.SplitSeq(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			h = append(h, p)
		}
	}
	return h
}

// MainBranch returns the first segment or "".
func (h Hierarchy) MainBranch() string {
	if len(h) == 0 {
		return ""
	}
	return h[0]
}

func (h Hierarchy) String() string {
	return strings.Join(h, " > ")
}

// SourceItem is a SUT billing/procedure record. It is immutable for the
// duration of a matching run.
type SourceItem struct {
	ID          string    `json:"id"`
	Code        string    `json:"code,omitempty"`
	Name        string    `json:"name"`
	Hierarchy   Hierarchy `json:"hierarchy,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the fields every strategy relies on.
func (s *SourceItem) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: source item is nil", ErrInvalidInput)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: source item id is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(s.Code) == "" && strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: source item %s has neither code nor name", ErrInvalidInput, s.ID)
	}
	return nil
}

// Text is the name plus description, used for keyword detection.
func (s *SourceItem) Text() string {
	if s.Description == "" {
		return s.Name
	}
	return s.Name + " " + s.Description
}

// CandidateTarget is a HUV guarantee item (alt-teminat). Reference data,
// read-only for a run.
type CandidateTarget struct {
	ID        string    `json:"id"`
	Code      string    `json:"code,omitempty"`
	Name      string    `json:"name"`
	Hierarchy Hierarchy `json:"hierarchy,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// HasTag reports whether the candidate carries tag.
func (c *CandidateTarget) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ValidateCandidates rejects blank or duplicate candidate ids. An empty set
// is valid and yields a no-match downstream.
func ValidateCandidates(candidates []CandidateTarget) error {
	seen := make(map[string]struct{}, len(candidates))
	for i := range candidates {
		id := strings.TrimSpace(candidates[i].ID)
		if id == "" {
			return fmt.Errorf("%w: candidate at position %d has empty id", ErrInvalidInput, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate candidate id %s", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
