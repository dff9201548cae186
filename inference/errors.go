package inference

import (
	"errors"
	"fmt"
)

// ServiceError is the base error type for all inference errors.
type ServiceError struct {
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by a model provider.
type ProviderError struct {
	ServiceError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64 // seconds, from Retry-After where available
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// ContextLengthError signals that the request exceeded the model's context
// window. It is never retryable within the current turn; the caller should
// compact or start a new session.
type ContextLengthError struct {
	ProviderError
	RequestedTokens int
	MaxTokens       int
}

func (e *ContextLengthError) Error() string {
	return fmt.Sprintf("[%s] context length exceeded: requested %d tokens, max %d",
		e.Provider, e.RequestedTokens, e.MaxTokens)
}

type AuthenticationError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }

type NetworkError struct{ ServiceError }
type AbortError struct{ ServiceError }
type ConfigurationError struct{ ServiceError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		ServiceError: ServiceError{Message: message},
		Provider:     provider,
		StatusCode:   statusCode,
		RetryAfter:   retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401, 403:
		return &AuthenticationError{ProviderError: pe}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		ctxLen  *ContextLengthError
		auth    *AuthenticationError
		invalid *InvalidRequestError
		cfg     *ConfigurationError
		abort   *AbortError
	)
	switch {
	case errors.As(err, &ctxLen), errors.As(err, &auth), errors.As(err, &invalid),
		errors.As(err, &cfg), errors.As(err, &abort):
		return false
	}
	var rate *RateLimitError
	var server *ServerError
	var network *NetworkError
	switch {
	case errors.As(err, &rate), errors.As(err, &server), errors.As(err, &network):
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	// Unknown errors default to retryable.
	return true
}

// AsContextLength reports whether err is a context window overflow, and if
// so returns the requested and maximum token counts.
func AsContextLength(err error) (requested, max int, ok bool) {
	var cle *ContextLengthError
	if errors.As(err, &cle) {
		return cle.RequestedTokens, cle.MaxTokens, true
	}
	return 0, 0, false
}
