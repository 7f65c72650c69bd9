package matching

import (
	"slices"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/north-cloud/huv-matcher/internal/similarity"
)

// keywordGroup is a set of keywords naming the same kind of procedure.
type keywordGroup struct {
	name  string
	words []string
}

const groupGeneral = "general"

// radiologyGroups lists imaging keywords by modality.
var radiologyGroups = []keywordGroup{
	{"ct", []string{"bilgisayarlı tomografi", "tomografi", "bt", "bbt"}},
	{"mr", []string{"manyetik rezonans", "mr", "mrg", "mri"}},
	{"ultrasound", []string{"ultrasonografi", "ultrason", "usg", "doppler", "ekografi"}},
	{"xray", []string{"röntgen", "radyografi", "direkt grafi", "floroskopi"}},
	{"mammography", []string{"mamografi", "tomosentez"}},
	{"nuclear", []string{"sintigrafi", "pet", "spect"}},
	{"angiography", []string{"anjiyografi", "anjiografi", "dsa"}},
	{groupGeneral, []string{"radyoloji", "radyolojik", "görüntüleme"}},
}

// surgicalGroups lists operative keywords by kind of procedure.
var surgicalGroups = []keywordGroup{
	{groupGeneral, []string{"ameliyat", "cerrahi", "operasyon"}},
	{"removal", []string{"eksizyon", "rezeksiyon", "ektomi", "amputasyon", "debridman"}},
	{"repair", []string{"onarım", "tamir", "plasti", "rekonstrüksiyon", "sütür", "anastomoz"}},
	{"access", []string{"laparoskopi", "endoskopik", "artroskopi", "perkütan"}},
	{"implant", []string{"implant", "protez", "greft", "stent"}},
	{"incision", []string{"insizyon", "otomi", "drenaj"}},
}

// keywordIndex scans normalized text for a fixed dictionary with an
// Aho-Corasick automaton. Keywords of up to three letters are stored
// space-padded so they only match whole tokens. A Matcher keeps per-scan
// state, so each goroutine borrows its own from the pool.
type keywordIndex struct {
	matchers sync.Pool
	groups   []string
	keywords []string
}

// hits maps group name to the first keyword found for it.
type hits map[string]string

func newKeywordIndex(groups []keywordGroup) *keywordIndex {
	idx := &keywordIndex{}
	var patterns []string
	for _, g := range groups {
		for _, w := range g.words {
			p := strings.Join(similarity.Tokenize(w), " ")
			if p == "" {
				continue
			}
			if len([]rune(p)) <= 3 {
				p = " " + p + " "
			}
			patterns = append(patterns, p)
			idx.groups = append(idx.groups, g.name)
			idx.keywords = append(idx.keywords, w)
		}
	}
	idx.matchers.New = func() any {
		return ahocorasick.NewStringMatcher(patterns)
	}
	return idx
}

func (k *keywordIndex) allKeywords() []string {
	return slices.Clone(k.keywords)
}

func (k *keywordIndex) scan(text string) hits {
	tokens := similarity.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	padded := " " + strings.Join(tokens, " ") + " "

	m, _ := k.matchers.Get().(*ahocorasick.Matcher)
	found := m.Match([]byte(padded))
	k.matchers.Put(m)
	if len(found) == 0 {
		return nil
	}
	// lowest dictionary index wins so the keyword reported is stable
	slices.Sort(found)
	h := make(hits, len(found))
	for _, i := range found {
		if _, seen := h[k.groups[i]]; !seen {
			h[k.groups[i]] = k.keywords[i]
		}
	}
	return h
}

// shared returns, in group-name order, the keywords of every group other
// than skip that both sides hit.
func (h hits) shared(other hits, skip string) []string {
	names := make([]string, 0, len(h))
	for group := range h {
		if group == skip {
			continue
		}
		if _, ok := other[group]; ok {
			names = append(names, group)
		}
	}
	slices.Sort(names)

	out := make([]string, 0, 2*len(names))
	for _, group := range names {
		out = append(out, h[group])
		if other[group] != h[group] {
			out = append(out, other[group])
		}
	}
	return out
}

// specific reports whether any group other than skip was hit.
func (h hits) specific(skip string) bool {
	for group := range h {
		if group != skip {
			return true
		}
	}
	return false
}
