// Package inference is the client layer for the model inference service.
//
// The agent loop talks to models exclusively through the Service interface.
// A Client pairs a provider adapter with a retry policy; the bundled
// GollmAdapter backs the client with gollm so any provider gollm supports
// can drive the loop. Errors are typed: callers can distinguish a context
// window overflow (ContextLengthError, non-retryable within the turn) from
// transient provider failures that the retry policy absorbs.
package inference
