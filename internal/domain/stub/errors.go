package stub

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("invalid stub configuration")

// ConfigurationError reports a stub definition that violates a construction
// constraint. It is raised when stubs are built, never while matching.
type ConfigurationError struct {
	StubID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.StubID == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", ErrConfiguration, e.StubID, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
