// Package llm provides the completion-service client used by the agent loop.
package llm

import "context"

// Client is the interface the agent loop depends on. The loop treats the
// model as an opaque text-in/text-out service: it sends a fully rendered
// prompt and receives raw text to parse into an action.
type Client interface {
	// Complete sends a prompt and returns the raw model output.
	Complete(ctx context.Context, prompt string) (string, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
