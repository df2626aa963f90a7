package match

import (
	"github.com/sophialabs/stubkit/internal/domain/trace"
)

// EvalResult holds the outcome of evaluating entries against a request.
type EvalResult struct {
	Matched    *Entry
	Response   Response
	PathParams map[string]string
	Candidates []trace.CandidateResult
}

// Evaluator evaluates request snapshots against registered entries.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate walks entries in registration order and stops at the first match,
// advancing its sequence. Entries after the winner are not evaluated, so an
// earlier, broader stub shadows later ones for the same request.
func (e *Evaluator) Evaluate(s *Snapshot, entries []*Entry) EvalResult {
	result := EvalResult{
		Candidates: make([]trace.CandidateResult, 0, len(entries)),
	}

	for _, entry := range entries {
		cr := trace.CandidateResult{
			StubID:   entry.ID(),
			StubName: entry.def.Name,
			Matched:  true,
		}

		if field, reason, ok := entry.check(s); !ok {
			cr.Matched = false
			cr.FailedField = field
			cr.FailedReason = reason
			result.Candidates = append(result.Candidates, cr)
			continue
		}

		result.Candidates = append(result.Candidates, cr)
		result.Matched = entry
		result.Response = entry.NextResponse()
		result.PathParams = entry.PathParams(s.Path)
		return result
	}

	return result
}

// MatchStub returns the next response of the first entry matching s.
func MatchStub(s *Snapshot, entries []*Entry) (Response, bool) {
	for _, entry := range entries {
		if entry.Matches(s) {
			return entry.NextResponse(), true
		}
	}
	return Response{}, false
}
