package domain

import "time"

// Mode selects the matcher a batch run uses.
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeAI        Mode = "ai"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeHeuristic || m == ModeAI
}

// Bucket is one confidence histogram bin, [Lower, Upper) except the last
// bucket which includes 100.
type Bucket struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Statistics summarises a sequence of results.
type Statistics struct {
	Total             int      `json:"total"`
	Matched           int      `json:"matched"`
	Unmatched         int      `json:"unmatched"`
	Failed            int      `json:"failed"`
	AIAccepted        int      `json:"ai_accepted"`
	AIFallback        int      `json:"ai_fallback"`
	AverageConfidence float64  `json:"average_confidence"`
	Buckets           []Bucket `json:"buckets"`
	// ByStrategy counts matched results per winning strategy.
	ByStrategy   map[string]int `json:"by_strategy"`
	UnmatchedIDs []string       `json:"unmatched_ids"`
}

// BatchRun is the ordered output of one batch plus its statistics.
type BatchRun struct {
	ID         string        `json:"id"`
	Mode       Mode          `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Results    []MatchResult `json:"results"`
	Stats      Statistics    `json:"stats"`
}
