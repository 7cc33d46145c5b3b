package services

import "context"

// ModelBackend defines the interface for a text-generation backend.
// Implementations must be safe for concurrent use.
type ModelBackend interface {
	// InitModel prepares the backend for use (connectivity check,
	// model pull). Called once on startup.
	InitModel(ctx context.Context) error

	// Generate produces a completion for a fully assembled prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend in logs and debug output.
	Name() string
}
