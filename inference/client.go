package inference

import "context"

// Service is the model inference contract consumed by the agent loop.
type Service interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderAdapter is the interface a provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client routes requests to a provider adapter with retries applied.
type Client struct {
	adapter ProviderAdapter
	retry   RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a Client backed by the given adapter.
func NewClient(adapter ProviderAdapter, opts ...ClientOption) *Client {
	c := &Client{
		adapter: adapter,
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a request through the adapter, retrying retryable failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.adapter == nil {
		return nil, &ConfigurationError{ServiceError: ServiceError{
			Message: "no provider adapter configured",
		}}
	}
	return Retry(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		return c.adapter.Complete(ctx, req)
	})
}
