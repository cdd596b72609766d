// Package output renders task envelopes for the command line.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dispatcher"
)

// Format is an envelope output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted output formats
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat validates a format name; the empty name is text
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(name, string(f)) {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("invalid output format %q: must be one of %s", name, strings.Join(names, ", "))
}

// Writer writes envelopes
type Writer interface {
	WriteEnvelope(env *dispatcher.Envelope) error
}

// NewWriter creates a Writer for the given format
func NewWriter(out io.Writer, format Format) Writer {
	switch format {
	case FormatJSON:
		return &jsonWriter{out: out}
	case FormatYAML:
		return &yamlWriter{out: out}
	default:
		return &textWriter{out: out}
	}
}

// textWriter writes a human-readable summary with a unified diff
type textWriter struct {
	out io.Writer
}

func (w *textWriter) WriteEnvelope(env *dispatcher.Envelope) error {
	status := "OK"
	switch {
	case env.Failed:
		status = "FAILED"
	case env.Changed:
		status = "CHANGED"
	}
	_, _ = fmt.Fprintf(w.out, "Status:  %s\n", status)
	_, _ = fmt.Fprintf(w.out, "Message: %s\n", env.Msg)

	if f := env.Failure; f != nil {
		if f.ControllerCode != "" {
			_, _ = fmt.Fprintf(w.out, "Failure: %s (%s)\n", f.Kind, f.ControllerCode)
		} else {
			_, _ = fmt.Fprintf(w.out, "Failure: %s\n", f.Kind)
		}
	}

	if env.Response != nil {
		text, err := marshalYAML(env.Response)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(w.out, "Response:")
		for _, line := range difflib.SplitLines(strings.TrimRight(text, "\n")) {
			_, _ = fmt.Fprintf(w.out, "  %s", line)
		}
	}

	if env.Diff != nil {
		text, err := UnifiedDiff(env.Diff)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(w.out, "Diff:")
		if text == "" {
			_, _ = fmt.Fprintln(w.out, "  (no differences)")
		} else {
			_, _ = fmt.Fprint(w.out, text)
		}
	}
	return nil
}

// UnifiedDiff renders the before and after snapshots as a unified diff of
// their YAML forms. A missing snapshot diffs as an empty document.
func UnifiedDiff(d *dispatcher.Diff) (string, error) {
	before, err := snapshotText(d.Before)
	if err != nil {
		return "", err
	}
	after, err := snapshotText(d.After)
	if err != nil {
		return "", err
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to generate diff: %w", err)
	}
	return text, nil
}

func snapshotText(m map[string]interface{}) (string, error) {
	if m == nil {
		return "", nil
	}
	return marshalYAML(m)
}

func marshalYAML(v interface{}) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	return b.String(), nil
}

// jsonWriter writes the envelope as indented JSON
type jsonWriter struct {
	out io.Writer
}

func (w *jsonWriter) WriteEnvelope(env *dispatcher.Envelope) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// yamlWriter writes the envelope as YAML
type yamlWriter struct {
	out io.Writer
}

func (w *yamlWriter) WriteEnvelope(env *dispatcher.Envelope) error {
	text, err := marshalYAML(env)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w.out, text)
	return err
}
