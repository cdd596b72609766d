package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/classifier"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/metrics"
)

// scriptedGetter answers polls in order and repeats the last answer
type scriptedGetter struct {
	bodies []interface{}
	errs   []error
	paths  []string
}

func (g *scriptedGetter) GetJSON(ctx context.Context, path string) (interface{}, error) {
	i := len(g.paths)
	g.paths = append(g.paths, path)
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	if len(g.bodies) == 0 {
		return nil, nil
	}
	if i >= len(g.bodies) {
		i = len(g.bodies) - 1
	}
	return g.bodies[i], nil
}

func status(s string) map[string]interface{} {
	return map[string]interface{}{"status": s}
}

func fastConfig() Config {
	return Config{InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Timeout: 2 * time.Second}
}

func TestWaitExecutionSuccess(t *testing.T) {
	getter := &scriptedGetter{bodies: []interface{}{
		status("IN_PROGRESS"),
		status("IN_PROGRESS"),
		map[string]interface{}{"status": "SUCCESS", "resourceId": "SITE-001"},
	}}
	recorder := metrics.NewRecorder(metrics.Config{Component: "test"})
	tr := New(getter, logger.NewTestLogger(), WithConfig(fastConfig()), WithMetrics(recorder))

	start := time.Now()
	result, err := tr.Wait(context.Background(), &classifier.Handle{ExecutionID: "E1", StatusURL: "/E1"})
	require.NoError(t, err)

	assert.Equal(t, descriptor.StatusSuccess, result.Status)
	assert.Equal(t, 3, result.Polls)
	assert.Equal(t, "SITE-001", result.ResourceID())
	assert.Equal(t, []string{"/E1", "/E1", "/E1"}, getter.paths)
	// 5ms before the first poll, then 10ms and 20ms
	assert.GreaterOrEqual(t, time.Since(start), 2*fastConfig().InitialDelay)
	assert.GreaterOrEqual(t, result.Elapsed, 35*time.Millisecond)
}

func TestWaitDerivesStatusPaths(t *testing.T) {
	tests := []struct {
		name     string
		handle   *classifier.Handle
		body     interface{}
		wantPath string
	}{
		{
			name:     "execution id without url",
			handle:   &classifier.Handle{ExecutionID: "E2"},
			body:     status("COMPLETED"),
			wantPath: "/dna/intent/api/v1/dnacaap/management/execution-status/E2",
		},
		{
			name:     "task id with url",
			handle:   &classifier.Handle{TaskID: "T1", TaskURL: "/api/v1/task/T1"},
			body:     map[string]interface{}{"response": map[string]interface{}{"endTime": 1700000000}},
			wantPath: "/api/v1/task/T1",
		},
		{
			name:     "task id without url",
			handle:   &classifier.Handle{TaskID: "T2"},
			body:     map[string]interface{}{"response": map[string]interface{}{"endTime": 1700000000}},
			wantPath: "/dna/intent/api/v1/task/T2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getter := &scriptedGetter{bodies: []interface{}{tt.body}}
			result, err := New(getter, nil, WithConfig(fastConfig())).Wait(context.Background(), tt.handle)
			require.NoError(t, err)
			assert.Equal(t, descriptor.StatusSuccess, result.Status)
			assert.Equal(t, []string{tt.wantPath}, getter.paths)
		})
	}
}

func TestWaitFailure(t *testing.T) {
	tests := []struct {
		name     string
		handle   *classifier.Handle
		bodies   []interface{}
		wantMsg  string
		wantCode string
	}{
		{
			name:   "execution FAILURE with bapiError",
			handle: &classifier.Handle{ExecutionID: "E1", StatusURL: "/E1"},
			bodies: []interface{}{
				status("IN_PROGRESS"),
				map[string]interface{}{"status": "FAILURE", "bapiError": "VLAN in use"},
			},
			wantMsg: "VLAN in use",
		},
		{
			name:   "FAILED synonym",
			handle: &classifier.Handle{ExecutionID: "E1"},
			bodies: []interface{}{
				map[string]interface{}{"status": "FAILED", "bapiError": "Site exists", "errorCode": "NCND00050"},
			},
			wantMsg:  "Site exists",
			wantCode: "NCND00050",
		},
		{
			name:   "task isError with failureReason",
			handle: &classifier.Handle{TaskID: "T1"},
			bodies: []interface{}{
				map[string]interface{}{"response": map[string]interface{}{"isError": false, "progress": "running"}},
				map[string]interface{}{"response": map[string]interface{}{"isError": true, "failureReason": "Tag already exists"}},
			},
			wantMsg: "Tag already exists",
		},
		{
			name:    "failure without message",
			handle:  &classifier.Handle{ExecutionID: "E9"},
			bodies:  []interface{}{status("FAILURE")},
			wantMsg: "execution E9 failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getter := &scriptedGetter{bodies: tt.bodies}
			_, err := New(getter, nil, WithConfig(fastConfig())).Wait(context.Background(), tt.handle)
			require.Error(t, err)

			te, ok := apperrors.AsTaskError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.KindControllerSide, te.Kind)
			assert.Equal(t, tt.wantMsg, te.Message)
			assert.Equal(t, tt.wantCode, te.ControllerCode)
			assert.Equal(t, tt.bodies[len(tt.bodies)-1], te.Payload, "payload is the last status body")
		})
	}
}

func TestWaitFailedBodyFromClient(t *testing.T) {
	payload := map[string]interface{}{"status": "failed", "bapiError": "Invalid site hierarchy"}
	getter := &scriptedGetter{errs: []error{&apperrors.APIError{
		StatusCode:       200,
		ControllerFailed: true,
		Message:          "Invalid site hierarchy",
		Payload:          payload,
	}}}

	_, err := New(getter, nil, WithConfig(fastConfig())).Wait(context.Background(), &classifier.Handle{ExecutionID: "E1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindControllerSide, apperrors.KindOf(err))
	assert.Equal(t, "Invalid site hierarchy", apperrors.MessageOf(err))
}

func TestWaitTimeout(t *testing.T) {
	getter := &scriptedGetter{bodies: []interface{}{status("IN_PROGRESS")}}
	cfg := Config{InitialDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond, Timeout: 60 * time.Millisecond}

	_, err := New(getter, nil, WithConfig(cfg)).Wait(context.Background(), &classifier.Handle{ExecutionID: "E1"})
	require.Error(t, err)

	te, ok := apperrors.AsTaskError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTimeout, te.Kind)
	assert.Regexp(t, `^\d+\.\ds elapsed$`, te.Message)
	assert.Equal(t, status("IN_PROGRESS"), te.Payload)
	assert.GreaterOrEqual(t, len(getter.paths), 2)
}

func TestWaitVersionSynonyms(t *testing.T) {
	hint := descriptor.VersionHint{StatusSynonyms: []descriptor.StatusSynonyms{
		{Version: "< 2.3.0", Success: []string{"DONE"}, Failure: []string{"ERROR"}},
	}}
	old, err := descriptor.ParseControllerVersion("2.2.3.4")
	require.NoError(t, err)
	mapper, err := descriptor.NewStatusMapper(hint, old)
	require.NoError(t, err)

	getter := &scriptedGetter{bodies: []interface{}{status("DONE")}}
	result, err := New(getter, nil, WithConfig(fastConfig()), WithStatusMapper(mapper)).
		Wait(context.Background(), &classifier.Handle{ExecutionID: "E1"})
	require.NoError(t, err)
	assert.Equal(t, descriptor.StatusSuccess, result.Status)
}

func TestWaitPropagatesPollErrors(t *testing.T) {
	getter := &scriptedGetter{errs: []error{&apperrors.APIError{StatusCode: 503}}}

	_, err := New(getter, nil, WithConfig(fastConfig())).Wait(context.Background(), &classifier.Handle{ExecutionID: "E1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindHTTPServer, apperrors.KindOf(err))
}

func TestWaitContextCancel(t *testing.T) {
	getter := &scriptedGetter{bodies: []interface{}{status("IN_PROGRESS")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(getter, nil, WithConfig(fastConfig())).Wait(ctx, &classifier.Handle{ExecutionID: "E1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, getter.paths)
}

func TestWaitRequiresHandle(t *testing.T) {
	_, err := New(&scriptedGetter{}, nil).Wait(context.Background(), &classifier.Handle{})
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{InitialDelay: 20 * time.Second}.withDefaults()
	assert.Equal(t, 20*time.Second, cfg.MaxDelay, "max delay never below initial delay")
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultConfig(), Config{}.withDefaults())
}

func TestResultResourceID(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{}
		want    string
	}{
		{"resource id", map[string]interface{}{"resourceId": "R1"}, "R1"},
		{"task progress uuid", map[string]interface{}{"response": map[string]interface{}{"progress": "6f2b4a5e-1c1d-4e8f-9a3b-2c7d8e9f0a1b"}}, "6f2b4a5e-1c1d-4e8f-9a3b-2c7d8e9f0a1b"},
		{"progress text", map[string]interface{}{"response": map[string]interface{}{"progress": "Site created"}}, ""},
		{"no payload", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, (&Result{Payload: tt.payload}).ResourceID())
		})
	}
}
