package match_test

import (
	"testing"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/stub"
	"github.com/sophialabs/stubkit/internal/testutil"
)

func snapshotOf(method, target, body string) *match.Snapshot {
	return match.NewSnapshot(testutil.NewFakeRequest(method, target, body), body != "")
}

func TestEvaluator_NoCandidate(t *testing.T) {
	eval := match.NewEvaluator()

	result := eval.Evaluate(snapshotOf("GET", "/test", ""), nil)
	if result.Matched != nil {
		t.Error("expected no match")
	}
	if len(result.Candidates) != 0 {
		t.Errorf("expected 0 candidates, got %d", len(result.Candidates))
	}
}

func TestEvaluator_SingleMatch(t *testing.T) {
	eval := match.NewEvaluator()
	health := mustEntry(t, "health", stub.RequestMatcher{Path: "/api/health"}, stub.Single{})

	result := eval.Evaluate(snapshotOf("GET", "/api/health", ""), []*match.Entry{health})
	if result.Matched == nil {
		t.Fatal("expected a match")
	}
	if result.Matched.ID() != "health" {
		t.Errorf("expected match ID 'health', got %q", result.Matched.ID())
	}
	if len(result.Candidates) != 1 || !result.Candidates[0].Matched {
		t.Errorf("expected one matched candidate, got %+v", result.Candidates)
	}
	if health.CallCount() != 1 {
		t.Errorf("expected winner to be advanced once, got %d", health.CallCount())
	}
}

func TestEvaluator_FirstMatchWins(t *testing.T) {
	eval := match.NewEvaluator()

	broad := mustEntry(t, "broad", stub.RequestMatcher{}, stub.Single{Response: stub.ResponseSpec{Status: 200}})
	specific := mustEntry(t, "specific", stub.RequestMatcher{
		Path:        "/api/items",
		Headers:     map[string]string{"X-Tenant": "t1"},
		QueryParams: map[string]string{"page": "1"},
	}, stub.Single{Response: stub.ResponseSpec{Status: 201}})

	s := match.NewSnapshot(testutil.NewFakeRequest("GET", "/api/items?page=1", "").WithHeader("X-Tenant", "t1"), false)
	result := eval.Evaluate(s, []*match.Entry{broad, specific})

	if result.Matched == nil || result.Matched.ID() != "broad" {
		t.Fatalf("expected earlier stub to shadow the later one, got %+v", result.Matched)
	}
	if result.Response.Spec.Status != 200 {
		t.Errorf("expected status 200, got %d", result.Response.Spec.Status)
	}
	if specific.CallCount() != 0 {
		t.Errorf("expected shadowed stub to stay at 0 calls, got %d", specific.CallCount())
	}
	if len(result.Candidates) != 1 {
		t.Errorf("expected evaluation to stop at the winner, got %d candidates", len(result.Candidates))
	}
}

func TestEvaluator_FailedFieldTrace(t *testing.T) {
	eval := match.NewEvaluator()
	needsJSON := mustEntry(t, "needs-json", stub.RequestMatcher{
		Method:  "POST",
		Path:    "/api/items",
		Headers: map[string]string{"Content-Type": "application/json"},
	}, stub.Single{})

	s := match.NewSnapshot(testutil.NewFakeRequest("POST", "/api/items", "").WithHeader("Content-Type", "text/plain"), false)
	result := eval.Evaluate(s, []*match.Entry{needsJSON})

	if result.Matched != nil {
		t.Error("expected no match")
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	c := result.Candidates[0]
	if c.Matched {
		t.Error("expected candidate to not match")
	}
	if c.FailedField != "header:content-type" {
		t.Errorf("expected failed field 'header:content-type', got %q", c.FailedField)
	}
	if needsJSON.CallCount() != 0 {
		t.Error("expected non-matching entry to keep its counter")
	}
}

func TestEvaluator_DeterministicWithoutSideEffects(t *testing.T) {
	a := mustEntry(t, "a", stub.RequestMatcher{Path: "/x"}, stub.Single{})
	b := mustEntry(t, "b", stub.RequestMatcher{Path: "/x"}, stub.Single{})
	entries := []*match.Entry{a, b}
	s := snapshotOf("GET", "/x", "")

	for range 5 {
		var first *match.Entry
		for _, e := range entries {
			if e.Matches(s) {
				first = e
				break
			}
		}
		if first != a {
			t.Fatalf("expected a to be selected every time, got %v", first)
		}
	}
	if a.CallCount() != 0 {
		t.Error("Matches must not advance the counter")
	}
}

func TestEvaluator_PathParams(t *testing.T) {
	eval := match.NewEvaluator()
	e := mustEntry(t, "user", stub.RequestMatcher{PathPattern: `/users/(?P<id>\d+)`}, stub.Single{})

	result := eval.Evaluate(snapshotOf("GET", "/users/9", ""), []*match.Entry{e})
	if result.PathParams["id"] != "9" {
		t.Errorf("expected path param id=9, got %v", result.PathParams)
	}
}

func TestMatchStub(t *testing.T) {
	seq := mustEntry(t, "seq", stub.RequestMatcher{Path: "/s"}, statusSequence(200, 500))
	entries := []*match.Entry{seq}

	r, ok := match.MatchStub(snapshotOf("GET", "/s", ""), entries)
	if !ok || r.Spec.Status != 200 {
		t.Errorf("first call: ok=%v status=%d", ok, r.Spec.Status)
	}
	r, ok = match.MatchStub(snapshotOf("GET", "/s", ""), entries)
	if !ok || r.Spec.Status != 500 {
		t.Errorf("second call: ok=%v status=%d", ok, r.Spec.Status)
	}
	if _, ok := match.MatchStub(snapshotOf("GET", "/other", ""), entries); ok {
		t.Error("expected no match for /other")
	}
}
