package provider

import "context"

// Provider is implemented by each LLM backend adapter. All four
// operations are required by spec.md §4.2: complete, provider_id,
// validate_config, health_check.
type Provider interface {
	// Complete streams a completion, invoking onDelta for each event,
	// and returns the fully-assembled response once the stream ends.
	Complete(ctx context.Context, req CompletionRequest, onDelta StreamCallback) (*CompletionResponse, error)

	// ProviderID returns the provider's stable identifier ("openai",
	// "anthropic", "ollama").
	ProviderID() string

	// ValidateConfig reports whether the provider is configured well
	// enough to attempt requests (e.g. an API key is present).
	ValidateConfig() error

	// HealthCheck makes a cheap call to confirm the backend is reachable.
	HealthCheck(ctx context.Context) error
}
