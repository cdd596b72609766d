package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Trace is the record of controller calls served during one replayed run
type Trace struct {
	Task     string
	Requests []RequestRecord
	Verbose  bool
}

// TraceJSON is the JSON-serializable form of a Trace
type TraceJSON struct {
	Task      string             `json:"task"`
	Requests  []TraceRequestJSON `json:"requests"`
	Unmatched int                `json:"unmatched,omitempty"`
}

// TraceRequestJSON is one served request
type TraceRequestJSON struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	Matched    bool   `json:"matched"`
	Request    string `json:"requestBody,omitempty"`
	Response   string `json:"responseBody,omitempty"`
}

// FormatText renders the trace for a terminal
func (t *Trace) FormatText() string {
	var b strings.Builder
	b.WriteString("Replay Trace\n")
	b.WriteString("============\n")
	fmt.Fprintf(&b, "Task: %s\n\n", t.Task)

	if len(t.Requests) == 0 {
		b.WriteString("  (no controller calls)\n")
		return b.String()
	}
	for i, req := range t.Requests {
		marker := ""
		if !req.Matched {
			marker = " (default)"
		}
		fmt.Fprintf(&b, "  [%d/%d] %s %s -> %d%s\n", i+1, len(t.Requests), req.Method, req.URL, req.StatusCode, marker)
		if t.Verbose {
			if len(req.Body) > 0 {
				fmt.Fprintf(&b, "    [verbose] Request body:\n      %s\n", prettyJSON(req.Body))
			}
			if len(req.Response) > 0 {
				fmt.Fprintf(&b, "    [verbose] Response body:\n      %s\n", prettyJSON(req.Response))
			}
		}
	}
	return b.String()
}

// FormatJSON renders the trace as indented JSON
func (t *Trace) FormatJSON() ([]byte, error) {
	out := TraceJSON{Task: t.Task, Requests: make([]TraceRequestJSON, 0, len(t.Requests))}
	for _, req := range t.Requests {
		tr := TraceRequestJSON{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: req.StatusCode,
			Matched:    req.Matched,
		}
		if !req.Matched {
			out.Unmatched++
		}
		if t.Verbose {
			if len(req.Body) > 0 {
				tr.Request = string(req.Body)
			}
			if len(req.Response) > 0 {
				tr.Response = string(req.Response)
			}
		}
		out.Requests = append(out.Requests, tr)
	}
	return json.MarshalIndent(out, "", "  ")
}

// prettyJSON indents raw JSON for readable output; other input is returned
// as is
func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "      ", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
