package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dispatcher"
)

const tagTask = `
state: present
name: lab
description: lab devices
poll_initial_delay: 0.01
poll_max_delay: 0.01
`

const tagReplay = `
responses:
  - match:
      method: GET
      urlPattern: "^/dna/intent/api/v1/tag\\?name=lab$"
    responses:
      - body: {response: []}
      - body:
          response:
            - {id: TAG-1, name: lab, description: lab devices}
  - match:
      method: POST
      urlPattern: "^/dna/intent/api/v1/tag$"
    responses:
      - statusCode: 202
        body: {response: {taskId: T1, url: /dna/intent/api/v1/task/T1}}
  - match:
      method: GET
      urlPattern: "^/dna/intent/api/v1/task/T1$"
    responses:
      - body: {response: {isError: false, endTime: 1700000000}}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunReplay(t *testing.T) {
	dir := t.TempDir()
	taskFile := writeFile(t, dir, "tag.yaml", tagTask)
	replayFile := writeFile(t, dir, "replay.yaml", tagReplay)
	metricsFile := filepath.Join(dir, "catalyst.prom")

	cmd := newRunCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"tag", "-f", taskFile, "--replay", replayFile, "--replay-trace", "-o", "json", "--metrics-textfile", metricsFile})
	require.NoError(t, cmd.Execute())

	var env dispatcher.Envelope
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &env))
	assert.False(t, env.Failed, env.Msg)
	assert.True(t, env.Changed)
	assert.Equal(t, "Tag lab created", env.Msg)
	assert.Contains(t, stderr.String(), `"method": "POST"`)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "catalyst_task_outcomes_total")
}

func TestRunReplayCheckMode(t *testing.T) {
	dir := t.TempDir()
	taskFile := writeFile(t, dir, "tag.yaml", tagTask)
	replayFile := writeFile(t, dir, "replay.yaml", tagReplay)

	cmd := newRunCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"tag", "-f", taskFile, "--replay", replayFile, "--check", "--diff"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "Status:  CHANGED\n")
	assert.Contains(t, stdout.String(), "Message: Tag lab would be created\n")
	assert.Contains(t, stdout.String(), "+description: lab devices")
}

func TestReplayConnectionKeys(t *testing.T) {
	keys := replayConnectionKeys(map[string]interface{}{"name": "lab"})
	assert.Equal(t, "http://replay", keys["host"])
	assert.Equal(t, "replay", keys["token"])

	keys = replayConnectionKeys(map[string]interface{}{"dnac_host": "dnac", "dnac_username": "admin"})
	assert.Equal(t, "dnac", keys["dnac_host"])
	assert.NotContains(t, keys, "host")
	assert.NotContains(t, keys, "token")
}

func TestCatalogList(t *testing.T) {
	cmd := newCatalogCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.Execute())

	out := stdout.String()
	assert.Contains(t, out, "RESOURCE")
	for _, name := range descriptor.MustBuiltin().Names() {
		assert.Contains(t, out, name)
	}
}

func TestCatalogShow(t *testing.T) {
	cmd := newCatalogCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"show", "tag_info"})
	require.NoError(t, cmd.Execute())

	d, err := descriptor.Parse(stdout.Bytes())
	require.NoError(t, err, "show output parses back as a descriptor")
	assert.Equal(t, "tag", d.Name)

	cmd = newCatalogCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"show", "vlan"})
	assert.ErrorContains(t, cmd.Execute(), "unknown resource")
}
