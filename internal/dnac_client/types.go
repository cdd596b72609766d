package dnac_client

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// BackoffStrategy defines how retry delays grow between attempts
type BackoffStrategy string

const (
	// BackoffExponential doubles the delay after each attempt
	BackoffExponential BackoffStrategy = "exponential"
	// BackoffLinear adds the base delay after each attempt
	BackoffLinear BackoffStrategy = "linear"
	// BackoffConstant waits the base delay between attempts
	BackoffConstant BackoffStrategy = "constant"
)

// Default client settings
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = BackoffExponential
	DefaultBaseDelay     = 1 * time.Second
	DefaultMaxDelay      = 30 * time.Second

	// DefaultIdempotencyHeader carries the idempotency key of a POST
	DefaultIdempotencyHeader = "X-Idempotency-Key"
	// AuthTokenHeader carries the session token on every controller call
	AuthTokenHeader = "X-Auth-Token"
	// DefaultMaxPageSize is the largest page the controller documents
	DefaultMaxPageSize = 500
	// AuthPath issues a session token for HTTP basic credentials
	AuthPath = "/dna/system/api/v1/auth/token"
)

// ClientConfig holds the transport settings of a Client
type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  BackoffStrategy
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	// DefaultHeaders are sent on every request
	DefaultHeaders map[string]string
	// IdempotencyHeader is the header name used for Request.IdempotencyKey
	IdempotencyHeader string
}

// DefaultClientConfig returns the controller client defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:           DefaultTimeout,
		RetryAttempts:     DefaultRetryAttempts,
		RetryBackoff:      DefaultRetryBackoff,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		DefaultHeaders:    make(map[string]string),
		IdempotencyHeader: DefaultIdempotencyHeader,
	}
}

// Request is a single controller call
type Request struct {
	Method string
	// URL is a path relative to the base URL, or an absolute URL
	URL     string
	Query   url.Values
	Headers map[string]string
	Body    []byte

	// IdempotencyKey is sent on every attempt of the request. A POST is
	// retried only when it carries one.
	IdempotencyKey string
	// Retryable marks a request as safe to repeat regardless of method
	Retryable bool
	// BasicAuth, when set, is sent as an Authorization header
	BasicAuth *BasicAuth
}

// BasicAuth holds HTTP basic credentials
type BasicAuth struct {
	Username string
	Password string
}

// RequestOption configures a Request
type RequestOption func(*Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

// WithQuery sets the query parameters of the request
func WithQuery(query url.Values) RequestOption {
	return func(r *Request) {
		r.Query = query
	}
}

// WithIdempotencyKey marks the request with an idempotency key
func WithIdempotencyKey(key string) RequestOption {
	return func(r *Request) {
		r.IdempotencyKey = key
	}
}

// WithRetryable allows retrying the request regardless of method
func WithRetryable() RequestOption {
	return func(r *Request) {
		r.Retryable = true
	}
}

// WithBasicAuth sends HTTP basic credentials
func WithBasicAuth(username, password string) RequestOption {
	return func(r *Request) {
		r.BasicAuth = &BasicAuth{Username: username, Password: password}
	}
}

// Response is a completed controller call
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	// Attempts is the number of attempts made, including the final one
	Attempts int
	Duration time.Duration
}

// IsSuccess reports whether the status is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError reports whether the status is 4xx
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError reports whether the status is 5xx
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

// JSON decodes the body. An empty body decodes to nil.
func (r *Response) JSON() (interface{}, error) {
	return decodeJSON(r.Body)
}

func decodeJSON(body []byte) (interface{}, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
