package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		opKind     string
		wantStatus Status
		wantMsg    string
		wantHandle *Handle
	}{
		{
			name:       "execution handle",
			body:       map[string]interface{}{"executionId": "E1", "executionStatusUrl": "/E1"},
			opKind:     descriptor.OpPost,
			wantStatus: StatusPending,
			wantHandle: &Handle{ExecutionID: "E1", StatusURL: "/E1"},
		},
		{
			name:       "task handle under response",
			body:       map[string]interface{}{"response": map[string]interface{}{"taskId": "T1", "url": "/api/v1/task/T1"}, "version": "1.0"},
			opKind:     descriptor.OpPost,
			wantStatus: StatusPending,
			wantHandle: &Handle{TaskID: "T1", TaskURL: "/api/v1/task/T1"},
		},
		{
			name:       "task id without url is not a handle",
			body:       map[string]interface{}{"response": map[string]interface{}{"taskId": "T1"}},
			opKind:     descriptor.OpPut,
			wantStatus: StatusChanged,
		},
		{
			name:       "failed wins over handle",
			body:       map[string]interface{}{"executionId": "E1", "status": "failed", "bapiError": "VLAN in use", "failureReason": "other"},
			opKind:     descriptor.OpPost,
			wantStatus: StatusFailed,
			wantMsg:    "VLAN in use",
		},
		{
			name:       "failure reason when no bapiError",
			body:       map[string]interface{}{"status": "failed", "failureReason": "Site exists", "message": "ignored"},
			opKind:     descriptor.OpDelete,
			wantStatus: StatusFailed,
			wantMsg:    "Site exists",
		},
		{
			name:       "message fallback",
			body:       map[string]interface{}{"response": map[string]interface{}{"status": "failed", "message": "bad request"}},
			opKind:     descriptor.OpPost,
			wantStatus: StatusFailed,
			wantMsg:    "bad request",
		},
		{
			name:       "tracker status strings are not body failures",
			body:       map[string]interface{}{"status": "FAILURE", "bapiError": "x"},
			opKind:     descriptor.OpGet,
			wantStatus: StatusOKIdempotent,
		},
		{
			name:       "empty read",
			body:       map[string]interface{}{"response": []interface{}{}, "version": "1.0"},
			opKind:     descriptor.OpGet,
			wantStatus: StatusOKIdempotent,
		},
		{
			name:       "read with records",
			body:       map[string]interface{}{"response": []interface{}{map[string]interface{}{"id": "1"}}},
			opKind:     descriptor.OpGet,
			wantStatus: StatusOKIdempotent,
		},
		{
			name:       "synchronous write",
			body:       map[string]interface{}{"response": map[string]interface{}{"id": "1"}},
			opKind:     descriptor.OpPut,
			wantStatus: StatusChanged,
		},
		{
			name:       "non-mapping write body",
			body:       []interface{}{"ok"},
			opKind:     descriptor.OpPost,
			wantStatus: StatusChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.body, tt.opKind)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantHandle, got.Handle)
			if tt.wantStatus == StatusFailed {
				assert.Equal(t, apperrors.KindControllerSide, got.Kind)
				assert.Equal(t, tt.wantMsg, got.Message)
			}
		})
	}
}

func TestOutcomeErr(t *testing.T) {
	body := map[string]interface{}{"status": "failed", "bapiError": map[string]interface{}{"message": "Pool overlaps"}, "errorCode": "NCIP10283"}
	outcome := Classify(body, descriptor.OpPost)

	err := outcome.Err(body)
	require.Error(t, err)
	te, ok := apperrors.AsTaskError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindControllerSide, te.Kind)
	assert.Equal(t, "Pool overlaps", te.Message)
	assert.Equal(t, "NCIP10283", te.ControllerCode)
	assert.Equal(t, body, te.Payload)

	assert.NoError(t, Classify(map[string]interface{}{}, descriptor.OpGet).Err(nil))
}

func TestItems(t *testing.T) {
	record := map[string]interface{}{"id": "1"}
	tests := []struct {
		name string
		body interface{}
		path string
		want []interface{}
	}{
		{name: "response list", body: map[string]interface{}{"response": []interface{}{record}}, path: "response", want: []interface{}{record}},
		{name: "single record", body: map[string]interface{}{"response": record}, path: "response", want: []interface{}{record}},
		{name: "root list", body: []interface{}{record}, path: ".", want: []interface{}{record}},
		{name: "nested path", body: map[string]interface{}{"response": map[string]interface{}{"sites": []interface{}{record}}}, path: "response.sites", want: []interface{}{record}},
		{name: "missing", body: map[string]interface{}{}, path: "response", want: nil},
		{name: "empty mapping", body: map[string]interface{}{"response": map[string]interface{}{}}, path: "response", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Items(tt.body, tt.path))
		})
	}
}

func TestHandle(t *testing.T) {
	exec := &Handle{ExecutionID: "E1"}
	task := &Handle{TaskID: "T1", TaskURL: "/api/v1/task/T1"}
	assert.True(t, exec.IsExecution())
	assert.False(t, task.IsExecution())
	assert.Equal(t, "E1", exec.ID())
	assert.Equal(t, "T1", task.ID())
	assert.Equal(t, "task T1", task.String())
}
