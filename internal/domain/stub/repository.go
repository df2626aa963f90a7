package stub

import "context"

// Repository is the port for loading stub definitions from storage.
type Repository interface {
	// LoadAll returns every definition in a deterministic order.
	LoadAll(ctx context.Context) ([]*Definition, error)
}
