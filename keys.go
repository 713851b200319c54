package flowstate

// Key prefixes are load-bearing: ScanKeys relies on them to enumerate records
const (
	ExecutionKeyPrefix     = "workflow:execution:"
	WorkflowIndexKeyPrefix = "workflow:executions:"
)

// ExecutionKey returns the record key: workflow:execution:{executionID}
func ExecutionKey(executionID string) string {
	return ExecutionKeyPrefix + executionID
}

// WorkflowIndexKey returns the per-workflow list key: workflow:executions:{workflowID}
func WorkflowIndexKey(workflowID string) string {
	return WorkflowIndexKeyPrefix + workflowID
}

// ExecutionIDFromKey strips the record prefix from a scanned key
func ExecutionIDFromKey(key string) (string, bool) {
	if len(key) <= len(ExecutionKeyPrefix) || key[:len(ExecutionKeyPrefix)] != ExecutionKeyPrefix {
		return "", false
	}
	return key[len(ExecutionKeyPrefix):], true
}
