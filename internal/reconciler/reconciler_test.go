package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/diff"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/dnac_client"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/tracker"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/validator"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
)

const tagPath = "/dna/intent/api/v1/tag"

func jsonResponse(status int, body interface{}) *dnac_client.Response {
	data, _ := json.Marshal(body)
	return &dnac_client.Response{StatusCode: status, Status: http.StatusText(status), Body: data, Attempts: 1}
}

func taskHandle(id string) map[string]interface{} {
	return map[string]interface{}{
		"response": map[string]interface{}{"taskId": id, "url": "/dna/intent/api/v1/task/" + id},
		"version":  "1.0",
	}
}

var fastTracker = tracker.Config{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: 2 * time.Second}

// fakeTags is an in-memory tag controller
type fakeTags struct {
	tags   []map[string]interface{}
	nextID int
	// failTask makes every task report this failure reason
	failTask string
}

func (f *fakeTags) handle(req *dnac_client.Request) (*dnac_client.Response, error) {
	switch {
	case strings.HasPrefix(req.URL, "/dna/intent/api/v1/task/"):
		if f.failTask != "" {
			return jsonResponse(http.StatusOK, map[string]interface{}{
				"response": map[string]interface{}{"isError": true, "failureReason": f.failTask, "errorCode": "NCTG1"},
			}), nil
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{
			"response": map[string]interface{}{"isError": false, "progress": "done", "endTime": 1700000000000},
		}), nil

	case req.URL == tagPath && req.Method == http.MethodGet:
		name := req.Query.Get("name")
		matched := []interface{}{}
		for _, tag := range f.tags {
			if name == "" || tag["name"] == name {
				matched = append(matched, tag)
			}
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": matched}), nil

	case req.URL == tagPath && req.Method == http.MethodPost:
		var body map[string]interface{}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, err
		}
		f.nextID++
		body["id"] = fmt.Sprintf("TAG-%d", f.nextID)
		f.tags = append(f.tags, body)
		return jsonResponse(http.StatusAccepted, taskHandle("T-create")), nil

	case req.URL == tagPath && req.Method == http.MethodPut:
		var body map[string]interface{}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, err
		}
		for i, tag := range f.tags {
			if tag["id"] == body["id"] {
				f.tags[i] = body
			}
		}
		return jsonResponse(http.StatusAccepted, taskHandle("T-update")), nil

	case strings.HasPrefix(req.URL, tagPath+"/") && req.Method == http.MethodDelete:
		id := strings.TrimPrefix(req.URL, tagPath+"/")
		kept := f.tags[:0]
		for _, tag := range f.tags {
			if tag["id"] != id {
				kept = append(kept, tag)
			}
		}
		f.tags = kept
		return jsonResponse(http.StatusAccepted, taskHandle("T-delete")), nil
	}
	return nil, &apperrors.APIError{Method: req.Method, URL: req.URL, StatusCode: http.StatusNotFound}
}

func newReconciler(t *testing.T, mock *dnac_client.MockClient, cfg dnac_client.SessionConfig) *Reconciler {
	t.Helper()
	cfg.Catalog = descriptor.MustBuiltin()
	cfg.Credentials = dnac_client.Credentials{Token: "tok"}
	session, err := dnac_client.NewSession(mock, logger.NewTestLogger(), cfg)
	require.NoError(t, err)
	return New(session, logger.NewTestLogger(), WithTrackerConfig(fastTracker))
}

func newTask(t *testing.T, name, state string, raw map[string]interface{}) *validator.Task {
	t.Helper()
	d, ok := descriptor.MustBuiltin().Get(name)
	require.True(t, ok, "descriptor %s", name)
	task, err := validator.ValidateTask(d, descriptor.ModeReconcile, state, raw)
	require.NoError(t, err)
	return task
}

func writes(mock *dnac_client.MockClient) int {
	return mock.CountMethod(http.MethodPost) + mock.CountMethod(http.MethodPut) + mock.CountMethod(http.MethodDelete)
}

func TestReconcileCreate(t *testing.T) {
	fake := &fakeTags{}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	task := newTask(t, "tag", "present", map[string]interface{}{"name": "t1", "description": "lab devices"})
	result, err := r.Reconcile(context.Background(), task, false)
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, diff.ActionCreate, result.Action)
	assert.Equal(t, "Tag t1 created", result.Msg)
	response, ok := result.Response.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "TAG-1", response["id"])

	methods := make([]string, 0, len(mock.Requests))
	for _, req := range mock.Requests {
		methods = append(methods, req.Method+" "+req.URL)
	}
	assert.Equal(t, []string{
		"GET " + tagPath,
		"POST " + tagPath,
		"GET /dna/intent/api/v1/task/T-create",
		"GET " + tagPath,
	}, methods)
	assert.NotEmpty(t, mock.Requests[1].IdempotencyKey)
}

func TestReconcileIdempotent(t *testing.T) {
	fake := &fakeTags{}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{})
	task := newTask(t, "tag", "present", map[string]interface{}{"name": "t1", "description": "lab devices"})

	first, err := r.Reconcile(context.Background(), task, false)
	require.NoError(t, err)
	require.True(t, first.Changed)

	mock.Reset()
	second, err := r.Reconcile(context.Background(), task, false)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, diff.ActionNone, second.Action)
	assert.Equal(t, "Tag t1 already up to date", second.Msg)
	assert.Zero(t, writes(mock))
}

func TestReconcileUpdate(t *testing.T) {
	fake := &fakeTags{tags: []map[string]interface{}{
		{"id": "TAG-9", "name": "t1", "description": "old", "systemTag": false},
	}}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	task := newTask(t, "tag", "present", map[string]interface{}{"name": "t1", "description": "new"})
	result, err := r.Reconcile(context.Background(), task, false)
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, diff.ActionUpdate, result.Action)
	assert.Equal(t, "Tag t1 updated", result.Msg)
	require.NotNil(t, result.Diff)
	assert.Equal(t, []string{"description"}, result.Diff.Paths())

	require.Equal(t, 1, mock.CountMethod(http.MethodPut))
	var put *dnac_client.Request
	for _, req := range mock.Requests {
		if req.Method == http.MethodPut {
			put = req
		}
	}
	assert.JSONEq(t, `{"id": "TAG-9", "name": "t1", "description": "new"}`, string(put.Body))
	assert.Equal(t, "new", fake.tags[0]["description"])
	assert.Equal(t, "old", result.Before["description"])
	assert.Equal(t, "new", result.After["description"])
}

func TestReconcileCheckMode(t *testing.T) {
	existing := map[string]interface{}{"id": "TAG-1", "name": "t1", "description": "old"}

	tests := []struct {
		name    string
		tags    []map[string]interface{}
		state   string
		args    map[string]interface{}
		wantMsg string
		changed bool
	}{
		{
			name:    "create",
			state:   "present",
			args:    map[string]interface{}{"name": "t1"},
			wantMsg: "Tag t1 would be created",
			changed: true,
		},
		{
			name:    "update",
			tags:    []map[string]interface{}{existing},
			state:   "present",
			args:    map[string]interface{}{"name": "t1", "description": "new"},
			wantMsg: "Tag t1 would be updated: UPDATE(description)",
			changed: true,
		},
		{
			name:    "delete",
			tags:    []map[string]interface{}{existing},
			state:   "absent",
			args:    map[string]interface{}{"name": "t1"},
			wantMsg: "Tag t1 would be deleted",
			changed: true,
		},
		{
			name:    "nothing to delete",
			state:   "absent",
			args:    map[string]interface{}{"name": "t1"},
			wantMsg: "Tag t1 Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTags{tags: tt.tags}
			mock := dnac_client.NewMockClient()
			mock.Handler = fake.handle
			r := newReconciler(t, mock, dnac_client.SessionConfig{})

			result, err := r.Reconcile(context.Background(), newTask(t, "tag", tt.state, tt.args), true)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, result.Changed)
			assert.Equal(t, tt.wantMsg, result.Msg)
			assert.Zero(t, writes(mock), "check mode must not write")
		})
	}
}

func TestReconcileDryRunSession(t *testing.T) {
	fake := &fakeTags{}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{DryRun: true})

	result, err := r.Reconcile(context.Background(), newTask(t, "tag", "present", map[string]interface{}{"name": "t1"}), false)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "Tag t1 would be created", result.Msg)
	assert.Zero(t, writes(mock))
}

func TestReconcileAbsent(t *testing.T) {
	fake := &fakeTags{tags: []map[string]interface{}{{"id": "TAG-4", "name": "t1"}}}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{})
	task := newTask(t, "tag", "absent", map[string]interface{}{"name": "t1"})

	result, err := r.Reconcile(context.Background(), task, false)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "Tag t1 deleted", result.Msg)
	assert.Equal(t, 1, mock.CountMethod(http.MethodDelete))
	assert.Empty(t, fake.tags)
	assert.Nil(t, result.After)

	again, err := r.Reconcile(context.Background(), task, false)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, "Tag t1 Not Found", again.Msg)
	assert.Equal(t, 1, mock.CountMethod(http.MethodDelete))
}

func TestReconcileAmbiguous(t *testing.T) {
	fake := &fakeTags{tags: []map[string]interface{}{
		{"id": "TAG-1", "name": "t1"},
		{"id": "TAG-2", "name": "t1"},
	}}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	_, err := r.Reconcile(context.Background(), newTask(t, "tag", "present", map[string]interface{}{"name": "t1"}), false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAmbiguous, apperrors.KindOf(err))
	assert.Zero(t, writes(mock))
}

func TestReconcileTaskFailure(t *testing.T) {
	fake := &fakeTags{failTask: "rule memberType is invalid"}
	mock := dnac_client.NewMockClient()
	mock.Handler = fake.handle
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	_, err := r.Reconcile(context.Background(), newTask(t, "tag", "present", map[string]interface{}{"name": "t1"}), false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindControllerSide, apperrors.KindOf(err))
	assert.Equal(t, "rule memberType is invalid", apperrors.MessageOf(err))
}

func TestReconcileSyncFailureBody(t *testing.T) {
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		if req.Method == http.MethodPost {
			return jsonResponse(http.StatusOK, map[string]interface{}{
				"status":    "failed",
				"bapiError": "Tag name already used by a system tag",
			}), nil
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": []interface{}{}}), nil
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	_, err := r.Reconcile(context.Background(), newTask(t, "tag", "present", map[string]interface{}{"name": "t1"}), false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindControllerSide, apperrors.KindOf(err))
	assert.Equal(t, "Tag name already used by a system tag", apperrors.MessageOf(err))
}

func TestReconcileLookupNotFound(t *testing.T) {
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		return nil, &apperrors.APIError{Method: req.Method, URL: req.URL, StatusCode: http.StatusNotFound}
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	result, err := r.Reconcile(context.Background(), newTask(t, "tag", "absent", map[string]interface{}{"name": "t1"}), false)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, "Tag t1 Not Found", result.Msg)
}

func siteArea(name, parent string) map[string]interface{} {
	return map[string]interface{}{
		"type": "area",
		"site": map[string]interface{}{
			"area": map[string]interface{}{"name": name, "parentName": parent},
		},
	}
}

func TestReconcileSiteV2Lookup(t *testing.T) {
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		require.Equal(t, "/dna/intent/api/v1/sites", req.URL)
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": []interface{}{
			map[string]interface{}{"id": "SITE-002", "name": "USA", "nameHierarchy": "Lab/USA", "type": "area"},
			map[string]interface{}{"id": "SITE-001", "name": "USA", "nameHierarchy": "Global/USA", "type": "area"},
		}}), nil
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{Version: "2.3.7.6"})

	result, err := r.Reconcile(context.Background(), newTask(t, "site", "merged", siteArea("USA", "Global")), false)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, "Site Global/USA already up to date", result.Msg)
	response := result.Response.(map[string]interface{})
	assert.Equal(t, "SITE-001", response["id"])

	require.Len(t, mock.Requests, 1)
	assert.Equal(t, "Global/USA", mock.Requests[0].Query.Get("nameHierarchy"))
}

func TestReconcileSiteImmutableType(t *testing.T) {
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": []interface{}{
			map[string]interface{}{"id": "SITE-001", "name": "USA", "nameHierarchy": "Global/USA", "type": "area"},
		}}), nil
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{Version: "2.3.7.6"})

	desired := map[string]interface{}{
		"type": "building",
		"site": map[string]interface{}{
			"building": map[string]interface{}{"name": "USA", "parentName": "Global", "address": "1 Main St"},
		},
	}
	_, err := r.Reconcile(context.Background(), newTask(t, "site", "merged", desired), false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindImmutableViolation, apperrors.KindOf(err))
	assert.Contains(t, apperrors.MessageOf(err), "type")
	assert.Zero(t, writes(mock))
}

func TestReconcileSiteUpdatePath(t *testing.T) {
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		switch req.Method {
		case http.MethodPut:
			return jsonResponse(http.StatusOK, map[string]interface{}{
				"executionId":        "E2",
				"executionStatusUrl": "/dna/intent/api/v1/dnacaap/management/execution-status/E2",
			}), nil
		case http.MethodGet:
			if strings.Contains(req.URL, "execution-status") {
				return jsonResponse(http.StatusOK, map[string]interface{}{"status": "SUCCESS"}), nil
			}
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": []interface{}{
			map[string]interface{}{
				"id": "SITE-007", "name": "HQ", "nameHierarchy": "Global/USA/HQ", "type": "building",
				"address": "old address", "latitude": 37.4, "longitude": -121.9,
			},
		}}), nil
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{Version: "2.3.7.6"})

	desired := map[string]interface{}{
		"type": "building",
		"site": map[string]interface{}{
			"building": map[string]interface{}{"name": "HQ", "parentName": "Global/USA", "address": "new address"},
		},
	}
	result, err := r.Reconcile(context.Background(), newTask(t, "site", "merged", desired), false)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "Site Global/USA/HQ updated", result.Msg)

	var put *dnac_client.Request
	for _, req := range mock.Requests {
		if req.Method == http.MethodPut {
			put = req
		}
	}
	require.NotNil(t, put)
	assert.Equal(t, "/dna/system/api/v1/site/SITE-007", put.URL)
	assert.Contains(t, string(put.Body), "new address")
}

func TestReconcileReplacePartial(t *testing.T) {
	existing := map[string]interface{}{
		"id": "D1", "name": "disc", "discoveryType": "Range", "ipAddressList": "10.0.0.1-10.0.0.9",
	}
	createFailure := map[string]interface{}{
		"response": map[string]interface{}{"errorCode": "NCDP10000", "message": "invalid ip address list"},
	}
	deleted := false
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		switch {
		case req.Method == http.MethodDelete:
			assert.Equal(t, "/dna/intent/api/v1/discovery/D1", req.URL)
			deleted = true
			return jsonResponse(http.StatusAccepted, taskHandle("T-del")), nil
		case req.Method == http.MethodPost:
			return nil, &apperrors.APIError{
				Method: req.Method, URL: req.URL, StatusCode: http.StatusBadRequest,
				Message: "invalid ip address list", ErrorCode: "NCDP10000",
				Payload: createFailure,
			}
		case strings.HasPrefix(req.URL, "/dna/intent/api/v1/task/"):
			return jsonResponse(http.StatusOK, map[string]interface{}{"response": map[string]interface{}{
				"isError": false, "endTime": 1, "progress": "Discovery D1 removed",
			}}), nil
		}
		records := []interface{}{}
		if !deleted {
			records = append(records, existing)
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": records}), nil
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	task := newTask(t, "discovery", "merged", map[string]interface{}{
		"name": "disc", "discoveryType": "Single", "ipAddressList": "10.0.0.1",
	})
	_, err := r.Reconcile(context.Background(), task, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPartial, apperrors.KindOf(err))
	assert.Contains(t, apperrors.MessageOf(err), "delete succeeded (Discovery D1 removed)")
	assert.Contains(t, apperrors.MessageOf(err), "invalid ip address list")
	assert.Equal(t, "NCDP10000", apperrors.ControllerCodeOf(err))
	te, ok := apperrors.AsTaskError(err)
	require.True(t, ok)
	assert.Equal(t, createFailure, te.Payload)
	assert.True(t, deleted)
}

func TestReconcileReplaceCheckMode(t *testing.T) {
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": []interface{}{
			map[string]interface{}{"id": "D1", "name": "disc", "discoveryType": "Range", "ipAddressList": "10.0.0.1-10.0.0.9"},
		}}), nil
	}
	r := newReconciler(t, mock, dnac_client.SessionConfig{})

	task := newTask(t, "discovery", "merged", map[string]interface{}{
		"name": "disc", "discoveryType": "Single", "ipAddressList": "10.0.0.1",
	})
	result, err := r.Reconcile(context.Background(), task, true)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, diff.ActionReplace, result.Action)
	assert.Equal(t, "Discovery disc would be replaced: REPLACE(discoveryType, ipAddressList)", result.Msg)
	assert.Zero(t, writes(mock))
}

func TestRead(t *testing.T) {
	devices := make([]interface{}, 0, 7)
	for i := 0; i < 7; i++ {
		devices = append(devices, map[string]interface{}{"id": fmt.Sprintf("DEV-%d", i), "hostname": fmt.Sprintf("sw%d", i)})
	}
	mock := dnac_client.NewMockClient()
	mock.Handler = func(req *dnac_client.Request) (*dnac_client.Response, error) {
		offset := req.Query.Get("offset")
		limit := req.Query.Get("limit")
		var start, size int
		_, _ = fmt.Sscan(offset, &start)
		_, _ = fmt.Sscan(limit, &size)
		end := start - 1 + size
		if end > len(devices) {
			end = len(devices)
		}
		page := []interface{}{}
		if start-1 < len(devices) {
			page = devices[start-1 : end]
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"response": page}), nil
	}
	session, err := dnac_client.NewSession(mock, logger.NewTestLogger(), dnac_client.SessionConfig{
		Catalog: descriptor.MustBuiltin(), Credentials: dnac_client.Credentials{Token: "tok"}, MaxPageSize: 3,
	})
	require.NoError(t, err)
	r := New(session, logger.NewTestLogger())

	d, _ := descriptor.MustBuiltin().Get("network_device")

	t.Run("walks every page", func(t *testing.T) {
		mock.Reset()
		task, err := validator.ValidateTask(d, descriptor.ModeRead, "", map[string]interface{}{})
		require.NoError(t, err)
		result, err := r.Read(context.Background(), task)
		require.NoError(t, err)
		assert.False(t, result.Changed)
		assert.Len(t, result.Response, 7)
		assert.Len(t, mock.Requests, 3)
		assert.Equal(t, "7 Network Device record(s) found", result.Msg)
	})

	t.Run("explicit page", func(t *testing.T) {
		mock.Reset()
		task, err := validator.ValidateTask(d, descriptor.ModeRead, "", map[string]interface{}{"offset": 4, "limit": 2})
		require.NoError(t, err)
		result, err := r.Read(context.Background(), task)
		require.NoError(t, err)
		assert.Len(t, result.Response, 2)
		assert.Len(t, mock.Requests, 1)
	})
}

const profilePath = "/dna/intent/api/v1/wireless/profile"

// fakeProfiles is an in-memory wireless profile controller
type fakeProfiles struct {
	profile map[string]interface{}
	puts    []map[string]interface{}
}

func (f *fakeProfiles) handle(req *dnac_client.Request) (*dnac_client.Response, error) {
	switch {
	case strings.HasPrefix(req.URL, "/dna/intent/api/v1/task/"):
		return jsonResponse(http.StatusOK, map[string]interface{}{
			"response": map[string]interface{}{"isError": false, "progress": "done", "endTime": 1700000000000},
		}), nil

	case req.URL == profilePath && req.Method == http.MethodGet:
		records := []interface{}{}
		if f.profile != nil && f.profile["name"] == req.Query.Get("profileName") {
			records = append(records, map[string]interface{}{"profileDetails": f.profile})
		}
		return jsonResponse(http.StatusOK, records), nil

	case req.URL == profilePath && req.Method == http.MethodPut:
		var body map[string]interface{}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, err
		}
		f.puts = append(f.puts, body)
		details, _ := body["profileDetails"].(map[string]interface{})
		f.profile = details
		return jsonResponse(http.StatusAccepted, taskHandle("T-profile")), nil
	}
	return nil, &apperrors.APIError{Method: req.Method, URL: req.URL, StatusCode: http.StatusNotFound}
}

func branchProfile() map[string]interface{} {
	return map[string]interface{}{
		"name":  "P1",
		"sites": []interface{}{"Global/Madrid", "Global/Paris"},
		"ssidDetails": []interface{}{
			map[string]interface{}{"name": "corp", "interfaceName": "management"},
			map[string]interface{}{"name": "guest", "enableFabric": false, "wlanProfileName": "guest_profile"},
		},
	}
}

func ssidNames(t *testing.T, details map[string]interface{}) []string {
	t.Helper()
	items, ok := details["ssidDetails"].([]interface{})
	require.True(t, ok, "ssidDetails is a list")
	names := make([]string, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		require.True(t, ok)
		names = append(names, m["name"].(string))
	}
	return names
}

func profileTask(t *testing.T, d *descriptor.Descriptor, ssids ...map[string]interface{}) *validator.Task {
	t.Helper()
	list := make([]interface{}, 0, len(ssids))
	for _, s := range ssids {
		list = append(list, s)
	}
	task, err := validator.ValidateTask(d, descriptor.ModeReconcile, "merged", map[string]interface{}{
		"name": "P1", "ssidDetails": list,
	})
	require.NoError(t, err)
	return task
}

func TestReconcileWirelessProfileMembers(t *testing.T) {
	builtinProfile, ok := descriptor.MustBuiltin().Get("wireless_profile")
	require.True(t, ok)
	purging := *builtinProfile
	purging.ListMembers = map[string]descriptor.ListMember{}
	for path, rule := range builtinProfile.ListMembers {
		purging.ListMembers[path] = rule
	}
	rule := purging.ListMembers["ssidDetails"]
	rule.Purge = true
	purging.ListMembers["ssidDetails"] = rule

	tests := []struct {
		name        string
		descriptor  *descriptor.Descriptor
		wantAdded   []string
		wantUpdated []string
		wantRemoved []string
		wantSSIDs   []string
	}{
		{
			name:        "observed members are kept",
			descriptor:  builtinProfile,
			wantAdded:   []string{"iot"},
			wantUpdated: []string{"guest"},
			wantSSIDs:   []string{"corp", "guest", "iot"},
		},
		{
			name:        "purge removes undeclared members",
			descriptor:  &purging,
			wantAdded:   []string{"iot"},
			wantUpdated: []string{"guest"},
			wantRemoved: []string{"corp"},
			wantSSIDs:   []string{"guest", "iot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProfiles{profile: branchProfile()}
			mock := dnac_client.NewMockClient()
			mock.Handler = fake.handle
			r := newReconciler(t, mock, dnac_client.SessionConfig{})

			guest := map[string]interface{}{"name": "guest", "enableFabric": true}
			iot := map[string]interface{}{"name": "iot"}
			result, err := r.Reconcile(context.Background(), profileTask(t, tt.descriptor, guest, iot), false)
			require.NoError(t, err)
			assert.True(t, result.Changed)
			assert.Equal(t, "Wireless Profile P1 updated", result.Msg)

			require.NotNil(t, result.Diff)
			members := result.Diff.Members["ssidDetails"]
			require.NotNil(t, members)
			assert.Equal(t, tt.wantAdded, members.Added)
			assert.Equal(t, tt.wantUpdated, members.Updated)
			assert.Equal(t, tt.wantRemoved, members.Removed)

			require.Len(t, fake.puts, 1)
			details, ok := fake.puts[0]["profileDetails"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, []interface{}{"Global/Madrid", "Global/Paris"}, details["sites"], "site assignments survive the update")
			assert.Equal(t, tt.wantSSIDs, ssidNames(t, details))
			for _, item := range details["ssidDetails"].([]interface{}) {
				if m := item.(map[string]interface{}); m["name"] == "guest" {
					assert.Equal(t, true, m["enableFabric"])
					assert.Equal(t, "guest_profile", m["wlanProfileName"])
				}
			}

			again, err := r.Reconcile(context.Background(), profileTask(t, tt.descriptor, iot, guest), false)
			require.NoError(t, err)
			assert.False(t, again.Changed, "same members in another order")
			assert.Len(t, fake.puts, 1)
		})
	}
}
