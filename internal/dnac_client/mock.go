package dnac_client

import (
	"context"
	"net/http"
)

// MockClient implements Client for testing.
// It allows configuring mock responses for each method.
type MockClient struct {
	// BaseURLValue is the value returned by BaseURL()
	BaseURLValue string

	// Handler, when set, answers every request and overrides the fields below
	Handler func(req *Request) (*Response, error)

	// GetResponse and GetError are returned for GET requests
	GetResponse *Response
	GetError    error

	// PostResponse and PostError are returned for POST requests
	PostResponse *Response
	PostError    error

	// PutResponse and PutError are returned for PUT requests
	PutResponse *Response
	PutError    error

	// DeleteResponse and DeleteError are returned for DELETE requests
	DeleteResponse *Response
	DeleteError    error

	// Requests records all requests made to this mock for verification
	Requests []*Request
}

// NewMockClient creates a new mock controller client for testing.
// By default, all methods return a 200 OK response with an empty object.
func NewMockClient() *MockClient {
	defaultResponse := &Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       []byte("{}"),
		Attempts:   1,
	}
	return &MockClient{
		BaseURLValue:   "https://mock-dnac.example.com",
		GetResponse:    defaultResponse,
		PostResponse:   defaultResponse,
		PutResponse:    defaultResponse,
		DeleteResponse: defaultResponse,
		Requests:       make([]*Request, 0),
	}
}

// Do implements Client.Do
func (m *MockClient) Do(ctx context.Context, req *Request) (*Response, error) {
	m.Requests = append(m.Requests, req)
	if m.Handler != nil {
		return m.Handler(req)
	}
	switch req.Method {
	case http.MethodPost:
		return m.PostResponse, m.PostError
	case http.MethodPut:
		return m.PutResponse, m.PutError
	case http.MethodDelete:
		return m.DeleteResponse, m.DeleteError
	default:
		return m.GetResponse, m.GetError
	}
}

// Get implements Client.Get
func (m *MockClient) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return m.Do(ctx, newRequest(http.MethodGet, url, nil, opts))
}

// Post implements Client.Post
func (m *MockClient) Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return m.Do(ctx, newRequest(http.MethodPost, url, body, opts))
}

// Put implements Client.Put
func (m *MockClient) Put(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return m.Do(ctx, newRequest(http.MethodPut, url, body, opts))
}

// Delete implements Client.Delete
func (m *MockClient) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return m.Do(ctx, newRequest(http.MethodDelete, url, nil, opts))
}

// BaseURL implements Client.BaseURL
func (m *MockClient) BaseURL() string {
	return m.BaseURLValue
}

// Reset clears all recorded requests
func (m *MockClient) Reset() {
	m.Requests = make([]*Request, 0)
}

// GetLastRequest returns the most recent request, or nil if none
func (m *MockClient) GetLastRequest() *Request {
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

// CountMethod returns how many recorded requests used method
func (m *MockClient) CountMethod(method string) int {
	n := 0
	for _, r := range m.Requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)
