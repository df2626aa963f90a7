package usecases

import (
	"fmt"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/registry"
	"github.com/sophialabs/stubkit/internal/domain/trace"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
	"github.com/sophialabs/stubkit/internal/infrastructure/services"
)

// ManageStubsUseCase exposes the runtime administration of the registry.
type ManageStubsUseCase struct {
	registry    *registry.Registry
	rateLimiter ports.RateLimiter
	traceBuf    *trace.RingBuffer
	logger      ports.Logger
}

// NewManageStubsUseCase creates a new use case.
func NewManageStubsUseCase(
	reg *registry.Registry,
	rateLimiter ports.RateLimiter,
	traceBuf *trace.RingBuffer,
	logger ports.Logger,
) *ManageStubsUseCase {
	return &ManageStubsUseCase{
		registry:    reg,
		rateLimiter: rateLimiter,
		traceBuf:    traceBuf,
		logger:      logger,
	}
}

// Add decodes data, which holds one stub or an array of stubs, and appends
// them after every registered stub. Nothing is added when any stub is invalid.
func (uc *ManageStubsUseCase) Add(data []byte) ([]*match.Entry, error) {
	defs, err := services.DecodeStubs(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stubs: %w", err)
	}
	entries, err := uc.registry.AddAll(defs)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		uc.logger.Info("stub added", "id", e.ID())
	}
	return entries, nil
}

// List returns the registered stubs in matching order.
func (uc *ManageStubsUseCase) List() []*match.Entry {
	return uc.registry.Entries()
}

// Get returns the first stub with the given ID.
func (uc *ManageStubsUseCase) Get(id string) (*match.Entry, bool) {
	for _, e := range uc.registry.Entries() {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// Clear removes every stub together with its call count.
func (uc *ManageStubsUseCase) Clear() {
	uc.registry.Clear()
	uc.logger.Info("stubs cleared")
}

// Reset restarts every sequence and call count, refills the rate-limit
// buckets and empties the trace. Stubs stay registered.
func (uc *ManageStubsUseCase) Reset() {
	uc.registry.Reset()
	uc.rateLimiter.Reset()
	uc.traceBuf.Clear()
	uc.logger.Info("counters reset")
}

// CallCount returns the number of matched requests for the stub declared
// with method and exact path.
func (uc *ManageStubsUseCase) CallCount(method, path string) int64 {
	return uc.registry.CallCount(method, path)
}

// CallCountByID returns the number of matched requests for the stub with id.
func (uc *ManageStubsUseCase) CallCountByID(id string) (int64, bool) {
	return uc.registry.CallCountByID(id)
}

// AssertCallCount fails with a *registry.CallCountMismatchError unless the
// call count of method and path equals want.
func (uc *ManageStubsUseCase) AssertCallCount(method, path string, want int64) error {
	return uc.registry.AssertCallCount(method, path, want)
}
