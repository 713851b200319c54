package flowstate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionKey(t *testing.T) {
	assert.Equal(t, "workflow:execution:wf_exec_a_1_deadbeef", ExecutionKey("wf_exec_a_1_deadbeef"))
}

func TestWorkflowIndexKey(t *testing.T) {
	assert.Equal(t, "workflow:executions:report", WorkflowIndexKey("report"))
}

func TestIndexKeysDoNotMatchRecordScan(t *testing.T) {
	assert.False(t, strings.HasPrefix(WorkflowIndexKey("wf"), ExecutionKeyPrefix))
}

func TestExecutionIDFromKey(t *testing.T) {
	tests := []struct {
		key    string
		wantID string
		wantOK bool
	}{
		{"workflow:execution:e1", "e1", true},
		{"workflow:execution:", "", false},
		{"workflow:executions:wf", "", false},
		{"other", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			id, ok := ExecutionIDFromKey(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
