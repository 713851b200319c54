package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/sicko7947/flowstate"
	"github.com/sicko7947/flowstate/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*fiber.App, *tracker.Manager) {
	t.Helper()

	manager := tracker.NewManager(tracker.WithLogger(zerolog.Nop()))
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })

	return New(manager, zerolog.Nop()).App(), manager
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, respBody
}

func createExecution(t *testing.T, app *fiber.App, workflowID string) string {
	t.Helper()

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/executions", CreateExecutionRequest{
		WorkflowID:   workflowID,
		WorkflowName: "Test workflow",
		Input:        json.RawMessage(`{"n":1}`),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created CreateExecutionResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ExecutionID)

	return created.ExecutionID
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()
	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))
	typ, _ := problem["type"].(string)
	return typ
}

func TestHealth(t *testing.T) {
	app, manager := setupTestServer(t)

	resp, body := doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected_fallback", health.Connection)
	assert.Equal(t, "memory", health.Backend)

	require.NoError(t, manager.Disconnect())

	resp, _ = doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	app, _ := setupTestServer(t)
	createExecution(t, app, "wf")

	resp, body := doRequest(t, app, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "flowstate_executions_created_total")
}

func TestCreateExecution(t *testing.T) {
	app, _ := setupTestServer(t)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			body:           CreateExecutionRequest{WorkflowID: "wf", WorkflowName: "Workflow", UserID: "u1"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing workflow id",
			body:           CreateExecutionRequest{WorkflowName: "Workflow"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing workflow name",
			body:           CreateExecutionRequest{WorkflowID: "wf"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, app, http.MethodPost, "/api/v1/executions", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
		})
	}
}

func TestCreateExecution_InvalidJSON(t *testing.T) {
	app, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetExecution(t *testing.T) {
	app, _ := setupTestServer(t)
	id := createExecution(t, app, "wf")

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/executions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	record, err := flowstate.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, id, record.ExecutionID)
	assert.Equal(t, flowstate.ExecutionPending, record.State)
	assert.JSONEq(t, `{"n":1}`, string(record.InputData))

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", problemType(t, body))
}

func TestUpdateState(t *testing.T) {
	app, manager := setupTestServer(t)
	id := createExecution(t, app, "wf")

	resp, body := doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/state", UpdateStateRequest{
		State:         "running",
		CurrentVertex: flowstate.ToPtr("fetch"),
		Progress:      flowstate.ToPtr(30.0),
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	record, err := manager.GetExecutionStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, flowstate.ExecutionRunning, record.State)
	assert.Equal(t, "fetch", record.CurrentVertex)
	assert.Equal(t, 30.0, record.ProgressPercentage)

	tests := []struct {
		name           string
		path           string
		body           UpdateStateRequest
		expectedStatus int
		expectedType   string
	}{
		{"unknown state", id, UpdateStateRequest{State: "paused"}, http.StatusBadRequest, "validation_error"},
		{"progress out of range", id, UpdateStateRequest{State: "running", Progress: flowstate.ToPtr(150.0)}, http.StatusBadRequest, "validation_error"},
		{"forbidden transition", id, UpdateStateRequest{State: "pending"}, http.StatusConflict, "invalid_transition"},
		{"missing execution", "missing", UpdateStateRequest{State: "running"}, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, app, http.MethodPut, "/api/v1/executions/"+tt.path+"/state", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
			assert.Equal(t, tt.expectedType, problemType(t, body))
		})
	}
}

func TestUpdateVertex(t *testing.T) {
	app, manager := setupTestServer(t)
	id := createExecution(t, app, "wf")

	resp, body := doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/vertices/fetch", UpdateVertexRequest{
		State:  "completed",
		Output: json.RawMessage(`{"rows":3}`),
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	record, err := manager.GetExecutionStatus(context.Background(), id)
	require.NoError(t, err)
	vertex := record.Vertex("fetch")
	require.NotNil(t, vertex)
	assert.Equal(t, flowstate.VertexCompleted, vertex.State)
	assert.JSONEq(t, `{"rows":3}`, string(vertex.OutputData))

	resp, _ = doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/vertices/fetch", UpdateVertexRequest{State: "cancelled"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetOutputAndError(t *testing.T) {
	app, manager := setupTestServer(t)
	id := createExecution(t, app, "wf")

	resp, body := doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/output", SetOutputRequest{
		Output: json.RawMessage(`{"done":true}`),
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	resp, _ = doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/output", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/error", SetErrorRequest{Message: "boom"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	record, err := manager.GetExecutionStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, flowstate.ExecutionFailed, record.State)
	assert.Equal(t, "boom", record.ErrorMessage)
	assert.JSONEq(t, `{"done":true}`, string(record.OutputData))
	assert.NotNil(t, record.EndTime)

	resp, _ = doRequest(t, app, http.MethodPut, "/api/v1/executions/"+id+"/error", SetErrorRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancel(t *testing.T) {
	app, manager := setupTestServer(t)
	id := createExecution(t, app, "wf")

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/executions/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancel CancelResponse
	require.NoError(t, json.Unmarshal(body, &cancel))
	assert.False(t, cancel.Cancelled, "pending executions are not cancellable")

	require.NoError(t, manager.UpdateExecutionState(context.Background(), id, flowstate.ExecutionRunning))

	_, body = doRequest(t, app, http.MethodPost, "/api/v1/executions/"+id+"/cancel", nil)
	require.NoError(t, json.Unmarshal(body, &cancel))
	assert.True(t, cancel.Cancelled)
	assert.Equal(t, id, cancel.ExecutionID)

	_, body = doRequest(t, app, http.MethodPost, "/api/v1/executions/missing/cancel", nil)
	require.NoError(t, json.Unmarshal(body, &cancel))
	assert.False(t, cancel.Cancelled)
}

func TestListEndpoints(t *testing.T) {
	app, manager := setupTestServer(t)
	ctx := context.Background()

	first := createExecution(t, app, "wf")
	second := createExecution(t, app, "wf")
	require.NoError(t, manager.UpdateExecutionState(ctx, second, flowstate.ExecutionRunning))

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/executions/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var active struct {
		Executions []json.RawMessage `json:"executions"`
		Count      int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &active))
	require.Equal(t, 1, active.Count)
	record, err := flowstate.Decode(active.Executions[0])
	require.NoError(t, err)
	assert.Equal(t, second, record.ExecutionID)

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/workflows/wf/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history struct {
		Executions []json.RawMessage `json:"executions"`
		Count      int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	require.Equal(t, 2, history.Count)

	latest, err := flowstate.Decode(history.Executions[0])
	require.NoError(t, err)
	assert.Equal(t, second, latest.ExecutionID)
	oldest, err := flowstate.Decode(history.Executions[1])
	require.NoError(t, err)
	assert.Equal(t, first, oldest.ExecutionID)

	_, body = doRequest(t, app, http.MethodGet, "/api/v1/workflows/wf/executions?limit=1", nil)
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Equal(t, 1, history.Count)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/workflows/wf/executions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = doRequest(t, app, http.MethodGet, "/api/v1/workflows/unknown/executions", nil)
	assert.JSONEq(t, `{"executions":[],"count":0}`, string(body))
}

func TestNotConnected(t *testing.T) {
	app, manager := setupTestServer(t)
	require.NoError(t, manager.Disconnect())

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/executions/active", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "backend_unavailable", problemType(t, body))
}
