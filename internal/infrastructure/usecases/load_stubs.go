package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/sophialabs/stubkit/internal/domain/registry"
	"github.com/sophialabs/stubkit/internal/domain/stub"
	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
)

// LoadStubsUseCase loads every stub from the repository into the registry.
type LoadStubsUseCase struct {
	repo     stub.Repository
	registry *registry.Registry
	logger   ports.Logger

	mu sync.Mutex
}

// NewLoadStubsUseCase creates a new use case.
func NewLoadStubsUseCase(repo stub.Repository, reg *registry.Registry, logger ports.Logger) *LoadStubsUseCase {
	return &LoadStubsUseCase{
		repo:     repo,
		registry: reg,
		logger:   logger,
	}
}

// Execute replaces the registry contents with the stubs found in the
// repository and returns how many were loaded. On any error the registry
// keeps its previous stubs.
func (uc *LoadStubsUseCase) Execute(ctx context.Context) (int, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	defs, err := uc.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load stubs: %w", err)
	}

	if err := checkUniqueIDs(defs); err != nil {
		return 0, err
	}

	entries, err := uc.registry.Replace(defs)
	if err != nil {
		return 0, fmt.Errorf("failed to compile stubs: %w", err)
	}

	uc.logger.Info("stubs loaded", "count", len(entries))
	return len(entries), nil
}

func checkUniqueIDs(defs []*stub.Definition) error {
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := seen[d.ID]; dup {
			return &stub.ConfigurationError{StubID: d.ID, Reason: "duplicate stub id"}
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
