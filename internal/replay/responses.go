// Package replay serves recorded controller responses in place of a live
// controller, so a task can be exercised offline against a fixture file.
package replay

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResponsesFile is the top-level structure of a replay fixture. Fixtures are
// YAML or JSON.
type ResponsesFile struct {
	Responses []Endpoint `yaml:"responses" json:"responses"`
}

// Endpoint defines a request matcher and the responses it serves in order
type Endpoint struct {
	Match     Match      `yaml:"match" json:"match"`
	Responses []Response `yaml:"responses" json:"responses"`
}

// Match selects requests by HTTP method and URL pattern
type Match struct {
	Method     string `yaml:"method" json:"method"`         // HTTP method or "*" for any
	URLPattern string `yaml:"urlPattern" json:"urlPattern"` // Go regexp against path?query
}

// Response is one recorded controller response
type Response struct {
	StatusCode int               `yaml:"statusCode" json:"statusCode"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body       interface{}       `yaml:"body,omitempty" json:"body,omitempty"`
}

// LoadResponses reads and parses a replay fixture file
func LoadResponses(path string) (*ResponsesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file %q: %w", path, err)
	}
	rf, err := ParseResponses(data)
	if err != nil {
		return nil, fmt.Errorf("replay file %q: %w", path, err)
	}
	return rf, nil
}

// ParseResponses decodes a replay fixture and checks every endpoint
func ParseResponses(data []byte) (*ResponsesFile, error) {
	var rf ResponsesFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rf); err != nil {
		return nil, fmt.Errorf("failed to parse replay responses: %w", err)
	}

	for i, ep := range rf.Responses {
		if len(ep.Responses) == 0 {
			return nil, fmt.Errorf("endpoint %d has no responses defined", i)
		}
		if ep.Match.URLPattern == "" {
			return nil, fmt.Errorf("endpoint %d has empty urlPattern", i)
		}
	}
	return &rf, nil
}
