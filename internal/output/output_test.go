package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dispatcher"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

func updatedEnvelope() *dispatcher.Envelope {
	return &dispatcher.Envelope{
		Changed:  true,
		Msg:      "Tag lab updated",
		Response: map[string]interface{}{"id": "TAG-1", "name": "lab"},
		Diff: &dispatcher.Diff{
			Before: map[string]interface{}{"name": "lab", "description": "old"},
			After:  map[string]interface{}{"name": "lab", "description": "new"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "", want: FormatText},
		{input: "json", want: FormatJSON},
		{input: "YAML", want: FormatYAML},
		{input: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.ErrorContains(t, err, "text, json, yaml")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, FormatText).WriteEnvelope(updatedEnvelope()))
	out := buf.String()

	assert.Contains(t, out, "Status:  CHANGED\n")
	assert.Contains(t, out, "Message: Tag lab updated\n")
	assert.Contains(t, out, "Response:\n  id: TAG-1\n  name: lab\n")
	assert.Contains(t, out, "--- before\n+++ after\n")
	assert.Contains(t, out, "-description: old\n")
	assert.Contains(t, out, "+description: new\n")
}

func TestTextWriterFailure(t *testing.T) {
	var buf bytes.Buffer
	env := &dispatcher.Envelope{
		Failed:  true,
		Msg:     "VLAN in use",
		Failure: &dispatcher.Failure{Kind: apperrors.KindControllerSide, Message: "VLAN in use", ControllerCode: "NCSP10"},
	}
	require.NoError(t, NewWriter(&buf, FormatText).WriteEnvelope(env))
	assert.Contains(t, buf.String(), "Status:  FAILED\n")
	assert.Contains(t, buf.String(), "Failure: controller_side (NCSP10)\n")
	assert.NotContains(t, buf.String(), "Response:")
}

func TestUnifiedDiff(t *testing.T) {
	text, err := UnifiedDiff(&dispatcher.Diff{After: map[string]interface{}{"name": "lab"}})
	require.NoError(t, err)
	assert.Contains(t, text, "+name: lab")

	text, err = UnifiedDiff(&dispatcher.Diff{
		Before: map[string]interface{}{"name": "lab"},
		After:  map[string]interface{}{"name": "lab"},
	})
	require.NoError(t, err)
	assert.Empty(t, text)

	var buf bytes.Buffer
	env := &dispatcher.Envelope{Msg: "Tag lab already up to date", Diff: &dispatcher.Diff{
		Before: map[string]interface{}{"name": "lab"},
		After:  map[string]interface{}{"name": "lab"},
	}}
	require.NoError(t, NewWriter(&buf, FormatText).WriteEnvelope(env))
	assert.Contains(t, buf.String(), "Status:  OK\n")
	assert.Contains(t, buf.String(), "(no differences)")
}

func TestStructuredWriters(t *testing.T) {
	env := updatedEnvelope()

	var jsonBuf bytes.Buffer
	require.NoError(t, NewWriter(&jsonBuf, FormatJSON).WriteEnvelope(env))
	var fromJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &fromJSON))
	assert.Equal(t, true, fromJSON["changed"])
	assert.Equal(t, false, fromJSON["failed"])
	assert.NotContains(t, fromJSON, "failure")

	var yamlBuf bytes.Buffer
	require.NoError(t, NewWriter(&yamlBuf, FormatYAML).WriteEnvelope(env))
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))
	assert.Equal(t, fromJSON["msg"], fromYAML["msg"])
	diff := fromYAML["diff"].(map[string]interface{})
	assert.Equal(t, "new", diff["after"].(map[string]interface{})["description"])
}
