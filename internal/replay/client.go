package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
)

// BaseURL is the placeholder base URL reported by a replay client
const BaseURL = "http://replay"

// RequestRecord stores one request served by the replay client
type RequestRecord struct {
	Method     string
	URL        string
	Body       []byte
	StatusCode int
	Response   []byte
	// Matched is false when no endpoint matched and the default was served
	Matched bool
}

// Client implements dnac_client.Client from recorded responses. Requests are
// matched by method and URL pattern in file order; each endpoint serves its
// responses sequentially and repeats the last one. Unmatched requests get
// 200 with an empty object. Error statuses and failed bodies surface as
// *APIError the way the live client reports them.
type Client struct {
	endpoints []compiledEndpoint
	mu        sync.Mutex
	Requests  []RequestRecord
}

var _ dnac_client.Client = (*Client)(nil)

type compiledEndpoint struct {
	method  string
	pattern *regexp.Regexp
	resps   []Response
	callIdx int
}

// NewClient creates a replay client. A nil file serves the default response
// to every request.
func NewClient(rf *ResponsesFile) (*Client, error) {
	client := &Client{Requests: make([]RequestRecord, 0)}
	if rf == nil {
		return client, nil
	}
	for i, ep := range rf.Responses {
		compiled, err := regexp.Compile(ep.Match.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: invalid urlPattern %q: %w", i, ep.Match.URLPattern, err)
		}
		method := ep.Match.Method
		if method == "" {
			method = "*"
		}
		client.endpoints = append(client.endpoints, compiledEndpoint{
			method:  method,
			pattern: compiled,
			resps:   ep.Responses,
		})
	}
	return client, nil
}

func (c *Client) findEndpoint(method, target string) *compiledEndpoint {
	for i := range c.endpoints {
		ep := &c.endpoints[i]
		if ep.method != "*" && ep.method != method {
			continue
		}
		if ep.pattern.MatchString(target) {
			return ep
		}
	}
	return nil
}

func (c *Client) nextResponse(ep *compiledEndpoint) Response {
	idx := ep.callIdx
	if idx >= len(ep.resps) {
		idx = len(ep.resps) - 1
	}
	ep.callIdx++
	return ep.resps[idx]
}

// requestTarget is the string patterns match against: the URL with its
// encoded query appended
func requestTarget(req *dnac_client.Request) string {
	if len(req.Query) == 0 {
		return req.URL
	}
	return req.URL + "?" + req.Query.Encode()
}

// Do serves the next recorded response for req
func (c *Client) Do(ctx context.Context, req *dnac_client.Request) (*dnac_client.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	target := requestTarget(req)
	ep := c.findEndpoint(req.Method, target)

	statusCode := http.StatusOK
	respBody := []byte("{}")
	headers := make(http.Header)
	if ep != nil {
		recorded := c.nextResponse(ep)
		if recorded.StatusCode != 0 {
			statusCode = recorded.StatusCode
		}
		if recorded.Body != nil {
			var err error
			respBody, err = json.Marshal(recorded.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal replay response body: %w", err)
			}
		}
		for k, v := range recorded.Headers {
			headers.Set(k, v)
		}
	}

	c.Requests = append(c.Requests, RequestRecord{
		Method:     req.Method,
		URL:        target,
		Body:       req.Body,
		StatusCode: statusCode,
		Response:   respBody,
		Matched:    ep != nil,
	})

	resp := &dnac_client.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Headers:    headers,
		Body:       respBody,
		Attempts:   1,
	}
	return resp, dnac_client.CheckResponse(req, BaseURL+target, resp)
}

// Get serves a GET request
func (c *Client) Get(ctx context.Context, url string, opts ...dnac_client.RequestOption) (*dnac_client.Response, error) {
	return c.Do(ctx, build(http.MethodGet, url, nil, opts))
}

// Post serves a POST request
func (c *Client) Post(ctx context.Context, url string, body []byte, opts ...dnac_client.RequestOption) (*dnac_client.Response, error) {
	return c.Do(ctx, build(http.MethodPost, url, body, opts))
}

// Put serves a PUT request
func (c *Client) Put(ctx context.Context, url string, body []byte, opts ...dnac_client.RequestOption) (*dnac_client.Response, error) {
	return c.Do(ctx, build(http.MethodPut, url, body, opts))
}

// Delete serves a DELETE request
func (c *Client) Delete(ctx context.Context, url string, opts ...dnac_client.RequestOption) (*dnac_client.Response, error) {
	return c.Do(ctx, build(http.MethodDelete, url, nil, opts))
}

// BaseURL returns the placeholder base URL
func (c *Client) BaseURL() string {
	return BaseURL
}

func build(method, url string, body []byte, opts []dnac_client.RequestOption) *dnac_client.Request {
	req := &dnac_client.Request{Method: method, URL: url, Body: body}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// Snapshot returns a copy of the served requests
func (c *Client) Snapshot() []RequestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RequestRecord, len(c.Requests))
	copy(out, c.Requests)
	return out
}
