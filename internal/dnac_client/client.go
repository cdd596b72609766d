// Package dnac_client is the only component that talks to the controller.
// Client is the retrying HTTP transport; Session layers authentication,
// descriptor-driven calls, paging, idempotency keys and dry-run on top.
package dnac_client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/classifier"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
)

// Client issues individual controller calls
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error)
	Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error)
	Put(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error)
	Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error)
	BaseURL() string
}

type httpClient struct {
	client    *http.Client
	config    *ClientConfig
	log       logger.Logger
	clock     clock.Clock
	limiter   *rate.Limiter
	metrics   *metrics.Recorder
	tlsConfig *tls.Config
}

// ClientOption configures the HTTP client
type ClientOption func(*httpClient)

// WithBaseURL sets the controller base URL ("https://10.0.0.1:443")
func WithBaseURL(baseURL string) ClientOption {
	return func(c *httpClient) {
		c.config.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-attempt HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *httpClient) {
		c.config.Timeout = timeout
	}
}

// WithRetryAttempts sets the total number of attempts for retryable requests
func WithRetryAttempts(attempts int) ClientOption {
	return func(c *httpClient) {
		c.config.RetryAttempts = attempts
	}
}

// WithRetryBackoff sets the backoff strategy
func WithRetryBackoff(strategy BackoffStrategy) ClientOption {
	return func(c *httpClient) {
		c.config.RetryBackoff = strategy
	}
}

// WithRetryDelays sets the first retry delay and the delay cap
func WithRetryDelays(base, max time.Duration) ClientOption {
	return func(c *httpClient) {
		c.config.BaseDelay = base
		c.config.MaxDelay = max
	}
}

// WithDefaultHeader adds a header sent on every request
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *httpClient) {
		c.config.DefaultHeaders[key] = value
	}
}

// WithIdempotencyHeader sets the header name used for idempotency keys
func WithIdempotencyHeader(header string) ClientOption {
	return func(c *httpClient) {
		if header != "" {
			c.config.IdempotencyHeader = header
		}
	}
}

// WithTLSConfig sets the TLS configuration of the default transport
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *httpClient) {
		c.tlsConfig = cfg
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *httpClient) {
		c.client = client
	}
}

// WithRateLimit caps the request rate. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock sets the clock used for retry sleeps
func WithClock(clk clock.Clock) ClientOption {
	return func(c *httpClient) {
		c.clock = clk
	}
}

// WithMetrics records request metrics
func WithMetrics(recorder *metrics.Recorder) ClientOption {
	return func(c *httpClient) {
		c.metrics = recorder
	}
}

// NewClient creates a controller client
func NewClient(log logger.Logger, opts ...ClientOption) (Client, error) {
	c := &httpClient{
		config: DefaultClientConfig(),
		log:    log,
		clock:  clock.NewClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.config.BaseURL == "" {
		return nil, fmt.Errorf("controller base URL is required")
	}
	if _, err := url.Parse(c.config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid controller base URL %q: %w", c.config.BaseURL, err)
	}
	if c.config.RetryAttempts < 1 {
		c.config.RetryAttempts = 1
	}
	if c.log == nil {
		c.log = logger.NewTestLogger()
	}

	if c.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.tlsConfig != nil {
			transport.TLSClientConfig = c.tlsConfig
		}
		c.client = &http.Client{
			Timeout:   c.config.Timeout,
			Transport: otelhttp.NewTransport(transport),
		}
	}
	return c, nil
}

// BaseURL implements Client.BaseURL
func (c *httpClient) BaseURL() string {
	return c.config.BaseURL
}

// Get implements Client.Get
func (c *httpClient) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodGet, url, nil, opts))
}

// Post implements Client.Post
func (c *httpClient) Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPost, url, body, opts))
}

// Put implements Client.Put
func (c *httpClient) Put(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodPut, url, body, opts))
}

// Delete implements Client.Delete
func (c *httpClient) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodDelete, url, nil, opts))
}

func newRequest(method, url string, body []byte, opts []RequestOption) *Request {
	req := &Request{Method: method, URL: url, Body: body}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// IsRetryable reports whether req may be sent more than once. GET, PUT and
// DELETE are idempotent; a POST only when it carries an idempotency key.
func IsRetryable(req *Request) bool {
	if req.Retryable {
		return true
	}
	switch req.Method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead:
		return true
	case http.MethodPost:
		return req.IdempotencyKey != ""
	}
	return false
}

// Do implements Client.Do. Transport errors and 5xx responses are retried
// for retryable requests; 4xx responses and bodies reporting status
// "failed" are returned immediately as *errors.APIError.
func (c *httpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	fullURL, err := c.resolveURL(req)
	if err != nil {
		return nil, err
	}

	attempts := c.config.RetryAttempts
	if !IsRetryable(req) {
		attempts = 1
	}
	bo := c.newBackOff()
	start := c.clock.Now()

	var resp *Response
	var lastErr error
	attempt := 0
	for attempt < attempts {
		attempt++
		resp, lastErr = c.doOnce(ctx, req, fullURL)
		if lastErr == nil && !resp.IsServerError() {
			break
		}
		if lastErr != nil && !apperrors.IsNetworkError(lastErr) && !errors.Is(lastErr, context.DeadlineExceeded) {
			// Not a transport condition: request construction failed or the caller cancelled
			break
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		delay := bo.NextBackOff()
		var reason string
		switch {
		case lastErr != nil:
			reason = lastErr.Error()
		case resp != nil:
			reason = resp.Status
		}
		c.log.Warnf(ctx, "Retrying %s %s in %s (attempt %d/%d): %s", req.Method, RedactURL(fullURL), delay, attempt, attempts, reason)
		c.metrics.RecordRetry(req.Method)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	duration := c.clock.Since(start)

	if lastErr != nil || resp == nil {
		return nil, apperrors.NewAPIError(req.Method, RedactURL(fullURL), 0, "", nil, attempt, duration, lastErr)
	}
	resp.Attempts = attempt
	resp.Duration = duration
	return resp, CheckResponse(req, fullURL, resp)
}

// CheckResponse turns an HTTP error status, or a 2xx body reporting status
// "failed", into an *APIError
func CheckResponse(req *Request, fullURL string, resp *Response) error {
	payload, jsonErr := resp.JSON()
	body, _ := payload.(map[string]interface{})

	if resp.IsSuccess() {
		if body == nil || !classifier.IsFailed(body) {
			return nil
		}
		apiErr := apperrors.NewAPIError(req.Method, RedactURL(fullURL), resp.StatusCode, resp.Status, resp.Body, resp.Attempts, resp.Duration, nil)
		apiErr.ControllerFailed = true
		apiErr.Message = classifier.FailureMessage(body)
		apiErr.ErrorCode = classifier.ErrorCode(body)
		apiErr.Payload = payload
		return apiErr
	}
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := apperrors.NewAPIError(req.Method, RedactURL(fullURL), resp.StatusCode, resp.Status, resp.Body, resp.Attempts, resp.Duration, nil)
	switch {
	case body != nil:
		apiErr.Message = classifier.Message(body)
		apiErr.ErrorCode = classifier.ErrorCode(body)
		apiErr.Payload = payload
	case jsonErr != nil:
		apiErr.Message = strings.TrimSpace(string(resp.Body))
	}
	return apiErr
}

func (c *httpClient) resolveURL(req *Request) (string, error) {
	raw := req.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		raw = c.config.BaseURL + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", raw, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, values := range req.Query {
			for _, v := range values {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *httpClient) doOnce(ctx context.Context, req *Request, fullURL string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(c.config.IdempotencyHeader, req.IdempotencyKey)
	}
	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	start := c.clock.Now()
	httpResp, err := c.client.Do(httpReq)
	elapsed := c.clock.Since(start)

	logCtx := logger.WithLogFields(ctx, logger.LogFields{
		logger.HTTPMethodKey: req.Method,
		logger.HTTPURLKey:    RedactURL(fullURL),
		logger.ElapsedKey:    elapsed.String(),
	})
	if err != nil {
		c.metrics.RecordRequest(req.Method, 0, elapsed)
		c.log.Warnf(logger.WithErrorField(logCtx, err), "%s %s failed after %s", req.Method, RedactURL(fullURL), elapsed)
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.RecordRequest(req.Method, 0, elapsed)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.metrics.RecordRequest(req.Method, httpResp.StatusCode, elapsed)
	c.log.Infof(logger.WithLogField(logCtx, logger.HTTPStatusKey, httpResp.StatusCode),
		"%s %s -> %d (%s)", req.Method, RedactURL(fullURL), httpResp.StatusCode, elapsed)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       respBody,
	}, nil
}

func (c *httpClient) newBackOff() backoff.BackOff {
	return NewBackOff(c.config.RetryBackoff, c.config.BaseDelay, c.config.MaxDelay, c.clock)
}

// NewBackOff builds a non-randomized backoff schedule
func NewBackOff(strategy BackoffStrategy, base, max time.Duration, clk clock.Clock) backoff.BackOff {
	switch strategy {
	case BackoffConstant:
		return backoff.NewConstantBackOff(base)
	case BackoffLinear:
		return &linearBackOff{base: base, max: max}
	default:
		b := &backoff.ExponentialBackOff{
			InitialInterval:     base,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         max,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               clk,
		}
		b.Reset()
		return b
	}
}

type linearBackOff struct {
	base, max time.Duration
	n         int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	d := time.Duration(b.n) * b.base
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

func (b *linearBackOff) Reset() { b.n = 0 }

func (c *httpClient) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
