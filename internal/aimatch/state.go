package aimatch

import (
	"time"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// State is a step of one MatchSingle call.
type State string

const (
	StateBuilding     State = "building"
	StateRequesting   State = "requesting"
	StateParsingReply State = "parsing_reply"

	StateAccepted               State = "accepted"
	StateRejectedLowConfidence  State = "rejected_low_confidence"
	StateRejectedMalformedReply State = "rejected_malformed_reply"
	StateRejectedTimeout        State = "rejected_timeout"
	StateRejectedTransport      State = "rejected_transport"
	StateRejectedNoCandidates   State = "rejected_no_candidates"
)

// Terminal reports whether s ends the state machine.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateRejectedLowConfidence, StateRejectedMalformedReply,
		StateRejectedTimeout, StateRejectedTransport, StateRejectedNoCandidates:
		return true
	default:
		return false
	}
}

// Path is the tagged outcome of a call.
type Path string

const (
	PathAccepted            Path = "accepted"
	PathFellBackToHeuristic Path = "fell_back_to_heuristic"
)

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Answer is a parsed model reply.
type Answer struct {
	CandidateID string   `json:"candidate_id"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Outcome is the result of MatchSingle together with the path taken.
// Result is always populated.
type Outcome struct {
	Result      domain.MatchResult `json:"result"`
	Path        Path               `json:"path"`
	Terminal    State              `json:"terminal"`
	Transitions []Transition       `json:"transitions"`
	// Answer is set when a reply parsed, accepted or not.
	Answer *Answer `json:"answer,omitempty"`
	// Cause is why the AI path was rejected, nil when accepted.
	Cause error `json:"-"`
}

// FellBack reports whether the heuristic engine produced the result.
func (o *Outcome) FellBack() bool {
	return o.Path == PathFellBackToHeuristic
}

type machine struct {
	state       State
	transitions []Transition
}

func (m *machine) to(next State) {
	m.transitions = append(m.transitions, Transition{From: m.state, To: next, At: time.Now().UTC()})
	m.state = next
}
