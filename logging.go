package flowstate

import (
	"github.com/rs/zerolog"
)

// Log event names
const (
	// Execution-level events
	EventExecutionCreated      = "execution_created"
	EventExecutionStateChanged = "execution_state_changed"
	EventExecutionOutputSet    = "execution_output_set"
	EventExecutionFailed       = "execution_failed"
	EventExecutionCancelled    = "execution_cancelled"

	// Vertex-level events
	EventVertexStateChanged = "vertex_state_changed"

	// Backend events
	EventBackendConnected    = "backend_connected"
	EventBackendFallback     = "backend_fallback"
	EventBackendDisconnected = "backend_disconnected"
	EventRecordDecodeFailed  = "record_decode_failed"
	EventPersistenceError    = "persistence_error"
)

// LogExecutionCreated logs when an execution record is created
func LogExecutionCreated(logger zerolog.Logger, executionID, workflowID, backend string) {
	logger.Info().
		Str("event", EventExecutionCreated).
		Str("execution_id", executionID).
		Str("workflow_id", workflowID).
		Str("backend", backend).
		Msg("Execution created")
}

// LogExecutionStateChanged logs an execution-level state update
func LogExecutionStateChanged(logger zerolog.Logger, executionID string, from, to ExecutionState, progress float64) {
	logger.Debug().
		Str("event", EventExecutionStateChanged).
		Str("execution_id", executionID).
		Stringer("from", from).
		Stringer("to", to).
		Float64("progress", progress).
		Msg("Execution state updated")
}

// LogExecutionOutputSet logs when an execution output is stored
func LogExecutionOutputSet(logger zerolog.Logger, executionID string, size int) {
	logger.Debug().
		Str("event", EventExecutionOutputSet).
		Str("execution_id", executionID).
		Int("bytes", size).
		Msg("Execution output stored")
}

// LogExecutionFailed logs when an execution is marked failed
func LogExecutionFailed(logger zerolog.Logger, executionID, message string) {
	logger.Warn().
		Str("event", EventExecutionFailed).
		Str("execution_id", executionID).
		Str("error_message", message).
		Msg("Execution failed")
}

// LogExecutionCancelled logs execution cancellation
func LogExecutionCancelled(logger zerolog.Logger, executionID string) {
	logger.Warn().
		Str("event", EventExecutionCancelled).
		Str("execution_id", executionID).
		Msg("Execution cancelled")
}

// LogVertexStateChanged logs a vertex update
func LogVertexStateChanged(logger zerolog.Logger, executionID, vertexID string, state VertexState) {
	logger.Debug().
		Str("event", EventVertexStateChanged).
		Str("execution_id", executionID).
		Str("vertex_id", vertexID).
		Stringer("state", state).
		Msg("Vertex state updated")
}

// LogBackendConnected logs a successful connection to the remote backend
func LogBackendConnected(logger zerolog.Logger, backend string) {
	logger.Info().
		Str("event", EventBackendConnected).
		Str("backend", backend).
		Msg("Connected to remote backend")
}

// LogBackendFallback logs activation of the in-memory fallback
func LogBackendFallback(logger zerolog.Logger, err error) {
	logger.Warn().
		Str("event", EventBackendFallback).
		Err(err).
		Msg("Remote backend unavailable, using in-memory fallback")
}

// LogBackendDisconnected logs release of the backend
func LogBackendDisconnected(logger zerolog.Logger, backend string) {
	logger.Info().
		Str("event", EventBackendDisconnected).
		Str("backend", backend).
		Msg("Backend disconnected")
}

// LogRecordDecodeFailed logs a stored record that could not be parsed
func LogRecordDecodeFailed(logger zerolog.Logger, key string, err error) {
	logger.Warn().
		Str("event", EventRecordDecodeFailed).
		Str("key", key).
		Err(err).
		Msg("Skipping undecodable record")
}

// LogPersistenceError logs errors during persistence operations
func LogPersistenceError(logger zerolog.Logger, executionID, operation string, err error) {
	logger.Error().
		Str("event", EventPersistenceError).
		Str("execution_id", executionID).
		Str("operation", operation).
		Err(err).
		Msg("Persistence error")
}
