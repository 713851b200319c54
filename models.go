package flowstate

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionState represents the lifecycle state of a workflow execution
type ExecutionState int

const (
	ExecutionPending ExecutionState = iota + 1
	ExecutionRunning
	ExecutionCompleted
	ExecutionFailed
	ExecutionCancelled
)

var executionStateNames = map[ExecutionState]string{
	ExecutionPending:   "pending",
	ExecutionRunning:   "running",
	ExecutionCompleted: "completed",
	ExecutionFailed:    "failed",
	ExecutionCancelled: "cancelled",
}

// ParseExecutionState converts a lowercase state name into an ExecutionState
func ParseExecutionState(name string) (ExecutionState, error) {
	for s, n := range executionStateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown execution state %q", name)
}

// IsTerminal returns true if the state is a final state
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// IsValid reports whether s is one of the declared states
func (s ExecutionState) IsValid() bool {
	_, ok := executionStateNames[s]
	return ok
}

// String returns the string representation
func (s ExecutionState) String() string {
	if name, ok := executionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ExecutionState(%d)", int(s))
}

// MarshalText encodes the state as its lowercase name
func (s ExecutionState) MarshalText() ([]byte, error) {
	name, ok := executionStateNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid execution state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a lowercase state name
func (s *ExecutionState) UnmarshalText(text []byte) error {
	parsed, err := ParseExecutionState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransition reports whether an execution may move from s to next.
// Re-asserting a non-terminal state is allowed so running executions can
// report progress. Cancellation is only reachable through CancelExecution.
func (s ExecutionState) CanTransition(next ExecutionState) bool {
	if s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case ExecutionPending:
		return next == ExecutionRunning || next == ExecutionFailed
	case ExecutionRunning:
		return next == ExecutionCompleted || next == ExecutionFailed
	}
	return false
}

// VertexState represents the state of a single vertex within an execution
type VertexState int

const (
	VertexPending VertexState = iota + 1
	VertexRunning
	VertexCompleted
	VertexFailed
	VertexSkipped
)

var vertexStateNames = map[VertexState]string{
	VertexPending:   "pending",
	VertexRunning:   "running",
	VertexCompleted: "completed",
	VertexFailed:    "failed",
	VertexSkipped:   "skipped",
}

// ParseVertexState converts a lowercase state name into a VertexState
func ParseVertexState(name string) (VertexState, error) {
	for s, n := range vertexStateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown vertex state %q", name)
}

// IsTerminal returns true if the state is a final state
func (s VertexState) IsTerminal() bool {
	return s == VertexCompleted || s == VertexFailed || s == VertexSkipped
}

// IsValid reports whether s is one of the declared states
func (s VertexState) IsValid() bool {
	_, ok := vertexStateNames[s]
	return ok
}

// String returns the string representation
func (s VertexState) String() string {
	if name, ok := vertexStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("VertexState(%d)", int(s))
}

// MarshalText encodes the state as its lowercase name
func (s VertexState) MarshalText() ([]byte, error) {
	name, ok := vertexStateNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid vertex state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a lowercase state name
func (s *VertexState) UnmarshalText(text []byte) error {
	parsed, err := ParseVertexState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ExecutionRecord is the stored state of one workflow execution attempt
type ExecutionRecord struct {
	// Identity
	ExecutionID  string `json:"execution_id"`
	WorkflowID   string `json:"workflow_id"`
	WorkflowName string `json:"workflow_name"`
	UserID       string `json:"user_id,omitempty"`

	// Status
	State              ExecutionState `json:"state"`
	CurrentVertex      string         `json:"current_vertex,omitempty"`
	ProgressPercentage float64        `json:"progress_percentage"`

	// Timing
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Payloads (raw JSON)
	InputData  json.RawMessage `json:"input_data,omitempty"`
	OutputData json.RawMessage `json:"output_data,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	VertexStates map[string]*VertexRecord `json:"vertex_states"`
}

// Vertex returns the record for vertexID, or nil if it never reported
func (r *ExecutionRecord) Vertex(vertexID string) *VertexRecord {
	if r.VertexStates == nil {
		return nil
	}
	return r.VertexStates[vertexID]
}

// VertexRecord tracks the last reported state of a vertex
type VertexRecord struct {
	State      VertexState     `json:"state"`
	UpdatedAt  time.Time       `json:"updated_at"`
	OutputData json.RawMessage `json:"output_data,omitempty"`
}
