package usecases

import (
	"context"
	"net/http"
	"time"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/registry"
	"github.com/sophialabs/stubkit/internal/domain/trace"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
	"github.com/sophialabs/stubkit/internal/infrastructure/services"
)

// Request outcomes reported to ports.Metrics.
const (
	OutcomeMatched     = "matched"
	OutcomeUnmatched   = "unmatched"
	OutcomeRateLimited = "rate_limited"
	OutcomeAborted     = "aborted"
)

// StatusClientClosedRequest is recorded for requests whose client went away
// before the response was written. It is never sent on the wire.
const StatusClientClosedRequest = 499

// HandleRequestResult is the outcome of processing a stubbed request.
type HandleRequestResult struct {
	Matched     bool
	StubID      string
	RateLimited bool
	// Aborted is set when the request context ended during the response
	// delay; nothing should be written.
	Aborted bool
	// Response is the selected response; zero when nothing matched.
	Response match.Response
	// Body is the static or rendered body to write.
	Body []byte
	// RenderErr is set when a templated body failed to render.
	RenderErr  error
	TraceEntry trace.Entry
}

// Status returns the HTTP status the transport should write.
func (r HandleRequestResult) Status() int {
	switch {
	case !r.Matched:
		return http.StatusNotFound
	case r.RateLimited:
		return http.StatusTooManyRequests
	case r.Aborted:
		return StatusClientClosedRequest
	case r.RenderErr != nil:
		return http.StatusInternalServerError
	default:
		return r.Response.Spec.Status
	}
}

// HandleRequestUseCase processes incoming stubbed requests.
type HandleRequestUseCase struct {
	registry    *registry.Registry
	clock       ports.Clock
	rateLimiter ports.RateLimiter
	metrics     ports.Metrics
	logger      ports.Logger
	traceBuf    *trace.RingBuffer
}

// NewHandleRequestUseCase creates a new use case.
func NewHandleRequestUseCase(
	reg *registry.Registry,
	clock ports.Clock,
	rateLimiter ports.RateLimiter,
	metrics ports.Metrics,
	logger ports.Logger,
	traceBuf *trace.RingBuffer,
) *HandleRequestUseCase {
	return &HandleRequestUseCase{
		registry:    reg,
		clock:       clock,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      logger,
		traceBuf:    traceBuf,
	}
}

// Execute matches h against the registry, applies the stub's rate limit and
// delay, and renders the selected response.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, h match.RequestHandle) (result HandleRequestResult) {
	start := uc.clock.Now()
	snapshot, eval := uc.registry.Match(h)

	if snapshot.BodyErr != nil {
		uc.logger.Debug("request body unavailable", "method", snapshot.Method, "path", snapshot.Path, "error", snapshot.BodyErr)
	}

	entry := trace.Entry{
		Timestamp:  start,
		Method:     snapshot.Method,
		Path:       snapshot.Path,
		Candidates: eval.Candidates,
	}
	if snapshot.BodyErr != nil {
		entry.BodyError = snapshot.BodyErr.Error()
	}

	defer func() {
		entry.Status = result.Status()
		result.TraceEntry = entry
		uc.traceBuf.Add(entry)
		uc.observe(snapshot.Method, result, uc.clock.Now().Sub(start))
	}()

	if eval.Matched == nil {
		uc.logger.Info("request unmatched", "method", snapshot.Method, "path", snapshot.Path)
		return result
	}

	matched := eval.Matched
	result.Matched = true
	result.StubID = matched.ID()
	result.Response = eval.Response
	entry.MatchedID = matched.ID()
	entry.ResponseIndex = eval.Response.Index

	if rl := matched.Definition().RateLimit; rl != nil {
		key := services.RateLimitKey(matched.ID(), rl, snapshot)
		if !uc.rateLimiter.Allow(ctx, key, rl.Rate, rl.Burst) {
			uc.logger.Debug("rate limited", "stub", matched.ID(), "key", key)
			entry.RateLimited = true
			result.RateLimited = true
			return result
		}
	}

	if ms := eval.Response.Spec.DelayMs; ms > 0 {
		if err := uc.clock.SleepContext(ctx, time.Duration(ms)*time.Millisecond); err != nil {
			uc.logger.Debug("response delay cancelled", "stub", matched.ID(), "error", err)
			entry.Aborted = true
			result.Aborted = true
			return result
		}
	}

	if r := eval.Response.Renderer; r != nil {
		now := uc.clock.Now().UTC().Format(time.RFC3339)
		body, err := r.Render(match.NewRenderContext(snapshot, eval, now))
		if err != nil {
			uc.logger.Error("template render failed", "stub", matched.ID(), "response", eval.Response.Index, "error", err)
			result.RenderErr = err
			return result
		}
		result.Body = body
	} else {
		result.Body = eval.Response.Body
	}

	uc.logger.Info("request matched",
		"method", snapshot.Method,
		"path", snapshot.Path,
		"stub", matched.ID(),
		"call", eval.Response.Call,
		"status", result.Status(),
	)
	return result
}

func (uc *HandleRequestUseCase) observe(method string, r HandleRequestResult, elapsed time.Duration) {
	outcome := OutcomeMatched
	switch {
	case !r.Matched:
		outcome = OutcomeUnmatched
	case r.RateLimited:
		outcome = OutcomeRateLimited
	case r.Aborted:
		outcome = OutcomeAborted
	}
	uc.metrics.ObserveRequest(method, outcome, r.StubID, r.Status(), elapsed)
}
