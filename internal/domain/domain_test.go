package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseHierarchy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Hierarchy
	}{
		{"Yatan Hasta > Yatak", Hierarchy{"Yatan Hasta", "Yatak"}},
		{"Radyoloji/Tomografi/", Hierarchy{"Radyoloji", "Tomografi"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		got := ParseHierarchy(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("ParseHierarchy(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParseHierarchy(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
	if (Hierarchy{"A", "B"}).String() != "A > B" {
		t.Error("String() did not join with ' > '")
	}
	if (Hierarchy{}).MainBranch() != "" {
		t.Error("MainBranch() of empty hierarchy not empty")
	}
}

func TestSourceItemValidate(t *testing.T) {
	t.Parallel()

	var nilItem *SourceItem
	cases := map[string]*SourceItem{
		"nil":        nilItem,
		"no id":      {Name: "Yatak"},
		"no content": {ID: "S1"},
	}
	for name, item := range cases {
		if err := item.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: Validate() = %v, want ErrInvalidInput", name, err)
		}
	}
	if err := (&SourceItem{ID: "S1", Code: "89.03"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateCandidates(t *testing.T) {
	t.Parallel()

	if err := ValidateCandidates(nil); err != nil {
		t.Errorf("empty set: %v", err)
	}
	dup := []CandidateTarget{{ID: "H1"}, {ID: "H1"}}
	if err := ValidateCandidates(dup); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("duplicate ids: %v", err)
	}
	blank := []CandidateTarget{{ID: " "}}
	if err := ValidateCandidates(blank); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank id: %v", err)
	}
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       float64
		want     float64
		warnings bool
	}{
		{55, 55, false},
		{-3, 0, true},
		{130, 100, true},
		{math.NaN(), 0, true},
	}
	for _, tt := range tests {
		got, warn := ClampConfidence(tt.in)
		if got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if (warn != "") != tt.warnings {
			t.Errorf("ClampConfidence(%v) warning = %q", tt.in, warn)
		}
	}
}

func TestNoMatchInvariant(t *testing.T) {
	t.Parallel()

	r := NoMatch("S1", "engine", ReasonBelowThreshold)
	if r.Matched() || r.Confidence != 0 || r.Reason == "" {
		t.Errorf("NoMatch() = %+v", r)
	}
	f := FailedResult("S2", ErrInvalidInput)
	if !f.Failed() || f.Matched() {
		t.Errorf("FailedResult() = %+v", f)
	}
}

func TestCandidateHasTag(t *testing.T) {
	t.Parallel()

	c := CandidateTarget{ID: "H1", Tags: []string{"Radiology"}}
	if !c.HasTag(TagRadiology) {
		t.Error("HasTag() should be case-insensitive")
	}
	if c.HasTag(TagSurgical) {
		t.Error("HasTag(surgical) = true")
	}
}
