package trace

import "time"

// Entry represents a single match trace entry.
type Entry struct {
	Timestamp     time.Time         `json:"timestamp"`
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	MatchedID     string            `json:"matched_id"`
	ResponseIndex int               `json:"response_index"`
	Status        int               `json:"status,omitempty"`
	Candidates    []CandidateResult `json:"candidates"`
	RateLimited   bool              `json:"rate_limited"`
	Aborted       bool              `json:"aborted,omitempty"`
	BodyError     string            `json:"body_error,omitempty"`
}

// CandidateResult records the evaluation result for a single candidate stub.
type CandidateResult struct {
	StubID       string `json:"stub_id"`
	StubName     string `json:"stub_name,omitempty"`
	Matched      bool   `json:"matched"`
	FailedField  string `json:"failed_field,omitempty"`
	FailedReason string `json:"failed_reason,omitempty"`
}
