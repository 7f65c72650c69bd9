// Package prompt renders the inference prompt for one source item and its
// candidate targets.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

const (
	// DefaultMaxFieldLen caps every user-supplied field, in runes.
	DefaultMaxFieldLen = 200
	sectionMarker      = "###"
)

// Options tune rendering.
type Options struct {
	// MaxFieldLen truncates long names and descriptions. Zero means DefaultMaxFieldLen.
	MaxFieldLen int
	// MinConfidence is quoted to the model so it knows when to answer null.
	MinConfidence float64
}

// Reply is the structure the model is asked to return.
type Reply struct {
	CandidateID string  `json:"candidate_id"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// Builder renders prompts. The zero value is ready to use.
type Builder struct{}

// NewBuilder returns a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders a deterministic prompt: the same inputs always produce the
// same text. Candidates appear in the supplied order.
func (b *Builder) Build(src *domain.SourceItem, candidates []domain.CandidateTarget, opts Options) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("source %s: %w", src.ID, domain.ErrNoCandidate)
	}
	if err := domain.ValidateCandidates(candidates); err != nil {
		return "", fmt.Errorf("source %s: %w", src.ID, err)
	}
	for i := range candidates {
		if err := CheckID(candidates[i].ID); err != nil {
			return "", fmt.Errorf("source %s: %w", src.ID, err)
		}
	}

	maxLen := opts.MaxFieldLen
	if maxLen <= 0 {
		maxLen = DefaultMaxFieldLen
	}
	clean := func(s string) string { return Sanitize(s, maxLen) }

	var sb strings.Builder
	sb.WriteString("You match hospital billing items (SUT) to insurance coverage categories (HUV).\n")
	sb.WriteString("Pick the single best candidate for the source item, or none if no candidate fits.\n\n")

	sb.WriteString(sectionMarker + " SOURCE ITEM\n")
	fmt.Fprintf(&sb, "code: %s\n", orDash(clean(src.Code)))
	fmt.Fprintf(&sb, "name: %s\n", orDash(clean(src.Name)))
	fmt.Fprintf(&sb, "hierarchy: %s\n", orDash(clean(src.Hierarchy.String())))
	if src.Description != "" {
		fmt.Fprintf(&sb, "description: %s\n", clean(src.Description))
	}

	fmt.Fprintf(&sb, "\n%s CANDIDATES (%d)\n", sectionMarker, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		fmt.Fprintf(&sb, "- id: %s | code: %s | name: %s | hierarchy: %s\n",
			c.ID, orDash(clean(c.Code)), orDash(clean(c.Name)), orDash(clean(c.Hierarchy.String())))
	}

	sb.WriteString("\n" + sectionMarker + " ANSWER FORMAT\n")
	sb.WriteString("Reply with one JSON object and nothing else:\n")
	sb.WriteString(`{"candidate_id": "<id from the list>", "confidence": <number 0-100>, "reasoning": "<one short sentence>"}` + "\n")
	sb.WriteString("candidate_id must be copied exactly from the candidate list.\n")
	if opts.MinConfidence > 0 {
		fmt.Fprintf(&sb, "Answers below %.0f confidence are discarded; use a lower confidence rather than guessing.\n", opts.MinConfidence)
	}
	return sb.String(), nil
}

// CheckID reports whether id can appear verbatim in a prompt. The model
// copies the id back, so ids are never rewritten: an id that Sanitize
// would change, or one longer than DefaultMaxFieldLen runes, is
// domain.ErrInvalidInput.
func CheckID(id string) error {
	if utf8.RuneCountInString(id) > DefaultMaxFieldLen || Sanitize(id, 0) != id {
		return fmt.Errorf("%w: candidate id %q is not prompt-safe", domain.ErrInvalidInput, id)
	}
	return nil
}

// Sanitize flattens s to one line and neutralizes characters that could
// end a field, open a new section or break the JSON reply format. The
// result is at most maxLen runes.
func Sanitize(s string, maxLen int) string {
	for strings.Contains(s, sectionMarker) {
		s = strings.ReplaceAll(s, sectionMarker, "#")
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\n', '\r', '\t', '\v', '\f':
			sb.WriteByte(' ')
		case '{', '[':
			sb.WriteByte('(')
		case '}', ']':
			sb.WriteByte(')')
		case '"', '`':
			sb.WriteByte('\'')
		case '|':
			sb.WriteByte('/')
		case '\\':
			sb.WriteByte('/')
		default:
			if r < 0x20 || r == utf8.RuneError {
				continue
			}
			sb.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(sb.String()), " ")
	if maxLen > 0 && utf8.RuneCountInString(out) > maxLen {
		runes := []rune(out)
		out = string(runes[:maxLen-1]) + "…"
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
