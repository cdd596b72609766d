package replay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

const fixture = `
responses:
  - match:
      method: GET
      urlPattern: "^/dna/intent/api/v1/tag\\?name=lab$"
    responses:
      - statusCode: 200
        body: {response: []}
      - statusCode: 200
        body:
          response:
            - {id: TAG-1, name: lab}
  - match:
      method: POST
      urlPattern: "^/dna/intent/api/v1/tag$"
    responses:
      - statusCode: 202
        body: {response: {taskId: T1, url: /dna/intent/api/v1/task/T1}}
  - match:
      method: "*"
      urlPattern: "/task/"
    responses:
      - body: {response: {isError: false, endTime: 1}}
`

func newFixtureClient(t *testing.T) *Client {
	t.Helper()
	rf, err := ParseResponses([]byte(fixture))
	require.NoError(t, err)
	client, err := NewClient(rf)
	require.NoError(t, err)
	return client
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestSequentialResponses(t *testing.T) {
	client := newFixtureClient(t)
	ctx := context.Background()
	query := url.Values{"name": []string{"lab"}}

	first, err := client.Do(ctx, &dnac_client.Request{Method: http.MethodGet, URL: "/dna/intent/api/v1/tag", Query: query})
	require.NoError(t, err)
	assert.Empty(t, decode(t, first.Body)["response"])

	for i := 0; i < 2; i++ {
		resp, err := client.Get(ctx, "/dna/intent/api/v1/tag", dnac_client.WithQuery(query))
		require.NoError(t, err)
		assert.Len(t, decode(t, resp.Body)["response"], 1, "last response repeats")
	}
	assert.Len(t, client.Requests, 3)
	assert.Equal(t, "/dna/intent/api/v1/tag?name=lab", client.Requests[0].URL)
}

func TestMethodMatching(t *testing.T) {
	client := newFixtureClient(t)
	ctx := context.Background()

	resp, err := client.Post(ctx, "/dna/intent/api/v1/tag", []byte(`{"name":"lab"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "202 Accepted", resp.Status)

	resp, err = client.Delete(ctx, "/dna/intent/api/v1/task/T1")
	require.NoError(t, err, "wildcard method matches")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Put(ctx, "/dna/intent/api/v1/tag", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(resp.Body))
	records := client.Snapshot()
	require.Len(t, records, 3)
	assert.True(t, records[0].Matched)
	assert.False(t, records[2].Matched)
	assert.Equal(t, `{"name":"lab"}`, string(records[0].Body))
}

func TestErrorStatuses(t *testing.T) {
	rf := &ResponsesFile{Responses: []Endpoint{
		{
			Match:     Match{Method: http.MethodGet, URLPattern: "/missing"},
			Responses: []Response{{StatusCode: 404, Body: map[string]interface{}{"message": "not here"}}},
		},
		{
			Match: Match{Method: http.MethodPost, URLPattern: "/failing"},
			Responses: []Response{{StatusCode: 200, Body: map[string]interface{}{
				"response": map[string]interface{}{"status": "failed", "bapiError": "VLAN in use"},
			}}},
		},
	}}
	client, err := NewClient(rf)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/missing")
	apiErr, ok := apperrors.IsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "not here", apiErr.Message)

	resp, err := client.Post(context.Background(), "/failing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, apperrors.KindControllerSide, apperrors.KindOf(err))
	assert.Equal(t, "VLAN in use", apperrors.MessageOf(err))
}

func TestNewClientInvalidPattern(t *testing.T) {
	_, err := NewClient(&ResponsesFile{Responses: []Endpoint{
		{Match: Match{Method: "GET", URLPattern: "[invalid"}, Responses: []Response{{StatusCode: 200}}},
	}})
	assert.ErrorContains(t, err, "invalid urlPattern")

	client, err := NewClient(nil)
	require.NoError(t, err)
	resp, err := client.Get(context.Background(), "/anything")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, BaseURL, client.BaseURL())
}

func TestParseResponsesValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "no responses",
			input:   `{"responses": [{"match": {"method": "GET", "urlPattern": "/x"}, "responses": []}]}`,
			wantErr: "has no responses",
		},
		{
			name:    "empty pattern",
			input:   `{"responses": [{"match": {"method": "GET"}, "responses": [{"statusCode": 200}]}]}`,
			wantErr: "empty urlPattern",
		},
		{
			name:    "unknown field",
			input:   `{"responses": [], "extra": true}`,
			wantErr: "failed to parse",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponses([]byte(tt.input))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadResponses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	rf, err := LoadResponses(path)
	require.NoError(t, err)
	assert.Len(t, rf.Responses, 3)

	_, err = LoadResponses(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read replay file")
}

func TestTraceFormat(t *testing.T) {
	client := newFixtureClient(t)
	_, err := client.Post(context.Background(), "/dna/intent/api/v1/tag", []byte(`{"name":"lab"}`))
	require.NoError(t, err)
	_, err = client.Put(context.Background(), "/unmatched", nil)
	require.NoError(t, err)

	trace := &Trace{Task: "tag", Requests: client.Snapshot(), Verbose: true}
	text := trace.FormatText()
	assert.Contains(t, text, "[1/2] POST /dna/intent/api/v1/tag -> 202")
	assert.Contains(t, text, "[2/2] PUT /unmatched -> 200 (default)")
	assert.Contains(t, text, "Request body")

	data, err := trace.FormatJSON()
	require.NoError(t, err)
	var out TraceJSON
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "tag", out.Task)
	assert.Equal(t, 1, out.Unmatched)
	require.Len(t, out.Requests, 2)
	assert.JSONEq(t, `{"name":"lab"}`, out.Requests[0].Request)

	empty := &Trace{Task: "tag"}
	assert.Contains(t, empty.FormatText(), "no controller calls")
}
