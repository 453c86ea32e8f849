package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads rule declarations from the given paths and translates them
	// into the format-agnostic model. Declaration order is preserved.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
