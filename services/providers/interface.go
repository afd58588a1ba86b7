package providers

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxErrorBody caps how much of an unparsed vendor error body is kept in an
// error message.
const MaxErrorBody = 512

// Adapter performs exactly one vendor call for one mode.
type Adapter interface {
	// Invoke sends the request and returns the vendor's result in one of the
	// Raw shapes. Any failure is returned as an error, never as a Raw value.
	Invoke(ctx context.Context, req *Request) (Raw, error)
}

// AdapterFunc lets an ordinary function act as an Adapter.
type AdapterFunc func(ctx context.Context, req *Request) (Raw, error)

// Invoke calls f(ctx, req).
func (f AdapterFunc) Invoke(ctx context.Context, req *Request) (Raw, error) {
	return f(ctx, req)
}

// Request is what an adapter receives for one attempt.
type Request struct {
	Provider Name
	Model    string
	Mode     Mode
	Prompt   Prompt
	Options  Options
}

// Raw is a vendor result before normalization. The set of implementations is
// closed to this package.
type Raw interface {
	isRaw()
}

// Text is a plain string result.
type Text string

// ContentBlock is one element of a block-structured chat reply.
type ContentBlock struct {
	Type string
	Text string
}

// ContentBlocks is a block-structured chat reply, as returned by anthropic.
type ContentBlocks []ContentBlock

// ImageURL is a single hosted image location.
type ImageURL string

// ImageURLs is a list of hosted image locations.
type ImageURLs []string

// Binary is raw image or audio bytes.
type Binary []byte

func (Text) isRaw()          {}
func (ContentBlocks) isRaw() {}
func (ImageURL) isRaw()      {}
func (ImageURLs) isRaw()     {}
func (Binary) isRaw()        {}

// ProviderConfig holds common configuration for adapters
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// MaxRetries is handed to SDK clients. Raw HTTP adapters do not retry;
	// the dispatcher moves to the next fallback instead.
	MaxRetries int

	// OrgID for organization-specific endpoints
	OrgID string
}

// DefaultProviderConfig returns the defaults applied to empty fields
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    60 * time.Second,
		MaxRetries: 0,
	}
}

// WithDefaults fills zero fields from DefaultProviderConfig.
func (c ProviderConfig) WithDefaults(baseURL string) ProviderConfig {
	d := DefaultProviderConfig()
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.Cause != nil && e.Cause.Error() != e.Message {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// RetryableStatus reports whether an HTTP status is worth trying again later.
func RetryableStatus(status int) bool {
	return status >= 500 || status == 429
}

// ErrorBody trims an unparsed error body and cuts it to MaxErrorBody bytes
// without splitting a rune.
func ErrorBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= MaxErrorBody {
		return s
	}
	cut := MaxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
