package server

import (
	"encoding/json"

	"github.com/sicko7947/flowstate"
)

// CreateExecutionRequest is the body of POST /api/v1/executions
type CreateExecutionRequest struct {
	WorkflowID   string          `json:"workflow_id"       validate:"required,max=256"`
	WorkflowName string          `json:"workflow_name"     validate:"required"`
	UserID       string          `json:"user_id,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
}

// CreateExecutionResponse carries the id of a new execution
type CreateExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// UpdateStateRequest is the body of PUT /api/v1/executions/:id/state
type UpdateStateRequest struct {
	State         string   `json:"state"                    validate:"required,oneof=pending running completed failed cancelled"`
	CurrentVertex *string  `json:"current_vertex,omitempty"`
	Progress      *float64 `json:"progress_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// UpdateVertexRequest is the body of PUT /api/v1/executions/:id/vertices/:vertexId
type UpdateVertexRequest struct {
	State  string          `json:"state"            validate:"required,oneof=pending running completed failed skipped"`
	Output json.RawMessage `json:"output,omitempty"`
}

// SetOutputRequest is the body of PUT /api/v1/executions/:id/output
type SetOutputRequest struct {
	Output json.RawMessage `json:"output" validate:"required"`
}

// SetErrorRequest is the body of PUT /api/v1/executions/:id/error
type SetErrorRequest struct {
	Message string `json:"message" validate:"required"`
}

// CancelResponse reports whether a cancel request changed the execution
type CancelResponse struct {
	ExecutionID string `json:"execution_id"`
	Cancelled   bool   `json:"cancelled"`
}

// ExecutionListResponse wraps a list of execution records
type ExecutionListResponse struct {
	Executions []*flowstate.ExecutionRecord `json:"executions"`
	Count      int                          `json:"count"`
}

// HealthResponse describes the tracker connection
type HealthResponse struct {
	Status     string `json:"status"`
	Connection string `json:"connection"`
	Backend    string `json:"backend,omitempty"`
}

func newExecutionList(records []*flowstate.ExecutionRecord) ExecutionListResponse {
	if records == nil {
		records = []*flowstate.ExecutionRecord{}
	}
	return ExecutionListResponse{Executions: records, Count: len(records)}
}
