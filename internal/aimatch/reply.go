package aimatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// parseReply extracts {candidate_id, confidence, reasoning} from raw. Code
// fences and text around the JSON object are tolerated. Missing fields,
// non-numeric confidence and ids outside candidates are ErrMalformedReply.
func parseReply(raw string, candidates []domain.CandidateTarget) (*Answer, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedReply, err)
	}

	id, err := stringField(fields, "candidate_id")
	if err != nil {
		return nil, err
	}
	confidence, err := numberField(fields, "confidence")
	if err != nil {
		return nil, err
	}
	reasoning, err := stringField(fields, "reasoning")
	if err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if !containsCandidate(candidates, id) {
		return nil, fmt.Errorf("%w: unknown candidate id %q", domain.ErrMalformedReply, id)
	}

	answer := &Answer{CandidateID: id, Reasoning: strings.TrimSpace(reasoning)}
	clamped, warn := domain.ClampConfidence(confidence)
	answer.Confidence = clamped
	if warn != "" {
		answer.Warnings = append(answer.Warnings, "ai reply "+warn)
	}
	return answer, nil
}

func extractObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", domain.ErrMalformedReply)
	}
	return []byte(s[start : end+1]), nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", fmt.Errorf("%w: missing %s", domain.ErrMalformedReply, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	// Models sometimes emit numeric ids unquoted.
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: %s is not a string", domain.ErrMalformedReply, key)
}

func numberField(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("%w: missing %s", domain.ErrMalformedReply, key)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s is not numeric", domain.ErrMalformedReply, key)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func containsCandidate(candidates []domain.CandidateTarget, id string) bool {
	for i := range candidates {
		if candidates[i].ID == id {
			return true
		}
	}
	return false
}
