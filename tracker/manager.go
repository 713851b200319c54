package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sicko7947/flowstate"
	"github.com/sicko7947/flowstate/store"
)

// ConnectionStatus describes which backend, if any, the manager is using
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnectedRemote
	StatusConnectedFallback
)

var allStatuses = []ConnectionStatus{
	StatusDisconnected,
	StatusConnecting,
	StatusConnectedRemote,
	StatusConnectedFallback,
}

// String returns the string representation
func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnectedRemote:
		return "connected_remote"
	case StatusConnectedFallback:
		return "connected_fallback"
	default:
		return "disconnected"
	}
}

// Manager tracks workflow executions in the active backend.
// All record mutations are read-modify-write cycles serialized per
// execution id within this manager; concurrent writers in other processes
// are not coordinated.
type Manager struct {
	config flowstate.Config
	logger zerolog.Logger
	dial   Dialer
	now    func() time.Time

	// fallback outlives reconnects so records written in fallback mode
	// stay readable for the lifetime of the manager
	fallback *store.MemoryBackend
	locks    *keyLocks

	mu     sync.RWMutex
	status ConnectionStatus
	remote flowstate.Backend
	active flowstate.Backend
}

// NewManager creates a new execution state manager with optional configuration.
// If no logger is provided, a default stdout logger with Info level is used.
// If no config is provided, flowstate.DefaultConfig is used.
func NewManager(opts ...Option) *Manager {
	// Default logger: pretty console output, Info level
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	m := &Manager{
		config: flowstate.DefaultConfig,
		logger: defaultLogger,
		dial:   defaultDialer,
		now:    time.Now,
		locks:  newKeyLocks(),
	}

	// Apply options
	for _, opt := range opts {
		opt(m)
	}

	m.fallback = store.NewMemoryBackend(store.WithMemoryClock(m.now))
	return m
}

// Config returns the effective configuration
func (m *Manager) Config() flowstate.Config {
	return m.config
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

func (m *Manager) setStatus(status ConnectionStatus) {
	m.status = status
	setConnectionMode(status)
}

// Connect selects the active backend. The remote backend is used when it
// answers a ping; otherwise the in-memory fallback is activated if enabled,
// or a connection error is returned and the manager stays disconnected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseRemote()
	m.active = nil
	m.setStatus(StatusConnecting)

	err := m.connectRemote(ctx)
	if err == nil {
		m.active = m.remote
		m.setStatus(StatusConnectedRemote)
		flowstate.LogBackendConnected(m.logger, m.remote.Name())
		return nil
	}

	if !m.config.EnableFallback {
		m.setStatus(StatusDisconnected)
		return flowstate.NewConnectionError("remote backend unavailable", err)
	}

	flowstate.LogBackendFallback(m.logger, err)
	m.active = instrument(m.fallback)
	m.setStatus(StatusConnectedFallback)
	return nil
}

func (m *Manager) connectRemote(ctx context.Context) error {
	if m.config.RemoteURL == "" {
		return errors.New("no remote backend configured")
	}

	remote, err := m.dial(ctx, m.config.RemoteURL, m.config.ScanBatchSize)
	if err != nil {
		return err
	}

	remote = instrument(remote)
	if err := remote.Ping(ctx); err != nil {
		if closeErr := remote.Close(); closeErr != nil {
			m.logger.Debug().Err(closeErr).Msg("Failed to close unreachable backend")
		}
		return err
	}

	m.remote = remote
	return nil
}

func (m *Manager) releaseRemote() error {
	if m.remote == nil {
		return nil
	}
	err := m.remote.Close()
	m.remote = nil
	return err
}

// Disconnect releases the remote client handle if held. Safe to call repeatedly.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasConnected := m.active != nil
	name := ""
	if wasConnected {
		name = m.active.Name()
	}

	err := m.releaseRemote()
	m.active = nil
	m.setStatus(StatusDisconnected)

	if wasConnected {
		flowstate.LogBackendDisconnected(m.logger, name)
	}
	if err != nil {
		return fmt.Errorf("failed to close remote backend: %w", err)
	}
	return nil
}

// IsConnected reports whether a backend (remote or fallback) is active
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == StatusConnectedRemote || m.status == StatusConnectedFallback
}

// Status returns the current connection status
func (m *Manager) Status() ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// BackendName returns the name of the active backend, or "" when disconnected
func (m *Manager) BackendName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.Name()
}

func (m *Manager) backend() (flowstate.Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, flowstate.NewConnectionError("manager is not connected", nil)
	}
	return m.active, nil
}

// PurgeExpired drops expired keys from the in-memory fallback
func (m *Manager) PurgeExpired() int {
	return m.fallback.PurgeExpired()
}

// newExecutionID builds wf_exec_{workflowID}_{unix millis}_{random}
func newExecutionID(workflowID string, now time.Time) string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("wf_exec_%s_%d_%s", workflowID, now.UnixMilli(), token)
}

// Record persistence

func (m *Manager) load(ctx context.Context, b flowstate.Backend, executionID string) (*flowstate.ExecutionRecord, error) {
	data, err := b.Get(ctx, flowstate.ExecutionKey(executionID))
	if err != nil {
		if errors.Is(err, flowstate.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return flowstate.Decode(data)
}

func (m *Manager) save(ctx context.Context, b flowstate.Backend, record *flowstate.ExecutionRecord) error {
	data, err := flowstate.Encode(record)
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", record.ExecutionID, err)
	}
	if err := b.SetWithTTL(ctx, flowstate.ExecutionKey(record.ExecutionID), data, m.config.DefaultTTL); err != nil {
		flowstate.LogPersistenceError(m.logger, record.ExecutionID, "save", err)
		return err
	}
	return nil
}

// mutate runs a serialized read-modify-write cycle. fn reports whether the
// record changed; unchanged records are not written back.
func (m *Manager) mutate(
	ctx context.Context,
	executionID string,
	fn func(record *flowstate.ExecutionRecord, now time.Time) (bool, error),
) (*flowstate.ExecutionRecord, error) {
	b, err := m.backend()
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(executionID)
	defer unlock()

	record, err := m.load(ctx, b, executionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, flowstate.NewNotFoundError(executionID)
	}

	now := m.clock()
	changed, err := fn(record, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return record, nil
	}

	record.UpdatedAt = now
	if err := m.save(ctx, b, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Execution operations

// CreateExecution stores a new pending execution and indexes it under its
// workflow. The record write and the index push are not atomic.
func (m *Manager) CreateExecution(
	ctx context.Context,
	workflowID, workflowName string,
	input any,
	opts ...flowstate.CreateOption,
) (string, error) {
	if workflowID == "" {
		return "", flowstate.NewValidationError("workflow id is required")
	}

	b, err := m.backend()
	if err != nil {
		return "", err
	}

	// Apply options
	options := &flowstate.CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	inputData, err := flowstate.MarshalPayload(input)
	if err != nil {
		return "", &flowstate.StateError{Code: flowstate.ErrCodeValidation, Message: "invalid input data", Err: err}
	}

	now := m.clock()
	record := &flowstate.ExecutionRecord{
		ExecutionID:  newExecutionID(workflowID, now),
		WorkflowID:   workflowID,
		WorkflowName: workflowName,
		UserID:       options.UserID,
		State:        flowstate.ExecutionPending,
		StartTime:    now,
		UpdatedAt:    now,
		InputData:    inputData,
		VertexStates: make(map[string]*flowstate.VertexRecord),
	}

	if err := m.save(ctx, b, record); err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	indexKey := flowstate.WorkflowIndexKey(workflowID)
	if _, err := b.ListPush(ctx, indexKey, record.ExecutionID); err != nil {
		flowstate.LogPersistenceError(m.logger, record.ExecutionID, "index", err)
		return "", fmt.Errorf("failed to index execution: %w", err)
	}
	if err := b.Expire(ctx, indexKey, m.config.DefaultTTL); err != nil {
		flowstate.LogPersistenceError(m.logger, record.ExecutionID, "index_expire", err)
		return "", fmt.Errorf("failed to refresh index ttl: %w", err)
	}

	executionsCreated.WithLabelValues(b.Name()).Inc()
	flowstate.LogExecutionCreated(m.logger, record.ExecutionID, workflowID, b.Name())

	return record.ExecutionID, nil
}

// UpdateExecutionState moves an execution to state and applies the optional
// current vertex and progress. Entering a terminal state stamps end_time once.
func (m *Manager) UpdateExecutionState(
	ctx context.Context,
	executionID string,
	state flowstate.ExecutionState,
	opts ...flowstate.UpdateOption,
) error {
	if !state.IsValid() {
		return flowstate.NewValidationError(fmt.Sprintf("invalid execution state %d", int(state)))
	}

	options := &flowstate.UpdateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Progress != nil && (*options.Progress < 0 || *options.Progress > 100) {
		return flowstate.NewValidationError(fmt.Sprintf("progress %.2f outside 0-100", *options.Progress))
	}

	var from flowstate.ExecutionState
	record, err := m.mutate(ctx, executionID, func(r *flowstate.ExecutionRecord, now time.Time) (bool, error) {
		from = r.State
		if m.config.StrictTransitions && !from.CanTransition(state) {
			return false, flowstate.NewTransitionError(executionID, from, state)
		}

		r.State = state
		if options.CurrentVertex != nil {
			r.CurrentVertex = *options.CurrentVertex
		}
		if options.Progress != nil {
			r.ProgressPercentage = *options.Progress
		}
		if state.IsTerminal() && r.EndTime == nil {
			r.EndTime = flowstate.ToPtr(now)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	flowstate.LogExecutionStateChanged(m.logger, executionID, from, state, record.ProgressPercentage)
	return nil
}

// UpdateVertexState creates or overwrites the record of one vertex
func (m *Manager) UpdateVertexState(
	ctx context.Context,
	executionID, vertexID string,
	state flowstate.VertexState,
	output any,
) error {
	if vertexID == "" {
		return flowstate.NewValidationError("vertex id is required")
	}
	if !state.IsValid() {
		return flowstate.NewValidationError(fmt.Sprintf("invalid vertex state %d", int(state)))
	}

	outputData, err := flowstate.MarshalPayload(output)
	if err != nil {
		return &flowstate.StateError{Code: flowstate.ErrCodeValidation, Message: "invalid vertex output", Err: err}
	}

	_, err = m.mutate(ctx, executionID, func(r *flowstate.ExecutionRecord, now time.Time) (bool, error) {
		if r.VertexStates == nil {
			r.VertexStates = make(map[string]*flowstate.VertexRecord)
		}
		r.VertexStates[vertexID] = &flowstate.VertexRecord{
			State:      state,
			UpdatedAt:  now,
			OutputData: outputData,
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	flowstate.LogVertexStateChanged(m.logger, executionID, vertexID, state)
	return nil
}

// SetExecutionOutput stores the final output of an execution. It does not
// change the state or stamp end_time.
func (m *Manager) SetExecutionOutput(ctx context.Context, executionID string, output any) error {
	outputData, err := flowstate.MarshalPayload(output)
	if err != nil {
		return &flowstate.StateError{Code: flowstate.ErrCodeValidation, Message: "invalid output data", Err: err}
	}

	_, err = m.mutate(ctx, executionID, func(r *flowstate.ExecutionRecord, now time.Time) (bool, error) {
		if m.config.StrictTransitions && (r.State == flowstate.ExecutionFailed || r.State == flowstate.ExecutionCancelled) {
			return false, &flowstate.StateError{
				Code:        flowstate.ErrCodeInvalidTransition,
				Message:     fmt.Sprintf("cannot set output on %s execution", r.State),
				ExecutionID: executionID,
			}
		}
		r.OutputData = outputData
		return true, nil
	})
	if err != nil {
		return err
	}

	flowstate.LogExecutionOutputSet(m.logger, executionID, len(outputData))
	return nil
}

// SetExecutionError marks the execution failed with message and stamps end_time
func (m *Manager) SetExecutionError(ctx context.Context, executionID, message string) error {
	_, err := m.mutate(ctx, executionID, func(r *flowstate.ExecutionRecord, now time.Time) (bool, error) {
		if m.config.StrictTransitions && !r.State.CanTransition(flowstate.ExecutionFailed) {
			return false, flowstate.NewTransitionError(executionID, r.State, flowstate.ExecutionFailed)
		}

		r.State = flowstate.ExecutionFailed
		r.ErrorMessage = message
		if r.EndTime == nil {
			r.EndTime = flowstate.ToPtr(now)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	flowstate.LogExecutionFailed(m.logger, executionID, message)
	return nil
}

// GetExecutionStatus returns the record, or nil when it does not exist,
// has expired or cannot be decoded
func (m *Manager) GetExecutionStatus(ctx context.Context, executionID string) (*flowstate.ExecutionRecord, error) {
	b, err := m.backend()
	if err != nil {
		return nil, err
	}

	record, err := m.load(ctx, b, executionID)
	if err != nil {
		if flowstate.IsDecodeError(err) {
			flowstate.LogRecordDecodeFailed(m.logger, flowstate.ExecutionKey(executionID), err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get execution %s: %w", executionID, err)
	}
	return record, nil
}

// GetWorkflowExecutions returns up to limit executions of a workflow, most
// recent first. A limit of zero or less returns every indexed execution.
// Expired or undecodable records are skipped.
func (m *Manager) GetWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*flowstate.ExecutionRecord, error) {
	b, err := m.backend()
	if err != nil {
		return nil, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := b.ListRange(ctx, flowstate.WorkflowIndexKey(workflowID), 0, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to read executions of workflow %s: %w", workflowID, err)
	}

	records := make([]*flowstate.ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		record, err := m.load(ctx, b, id)
		if err != nil {
			if flowstate.IsDecodeError(err) {
				flowstate.LogRecordDecodeFailed(m.logger, flowstate.ExecutionKey(id), err)
				continue
			}
			return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
		}
		if record == nil {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// GetActiveExecutions scans every record key and returns the running ones,
// oldest first. The scan is linear in the number of stored records.
func (m *Manager) GetActiveExecutions(ctx context.Context) ([]*flowstate.ExecutionRecord, error) {
	b, err := m.backend()
	if err != nil {
		return nil, err
	}

	var active []*flowstate.ExecutionRecord
	seen := make(map[string]struct{})
	for key, err := range b.ScanKeys(ctx, flowstate.ExecutionKeyPrefix) {
		if err != nil {
			return nil, fmt.Errorf("failed to scan executions: %w", err)
		}

		// SCAN may return a key more than once
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		data, err := b.Get(ctx, key)
		if err != nil {
			if errors.Is(err, flowstate.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get %s: %w", key, err)
		}

		record, err := flowstate.Decode(data)
		if err != nil {
			flowstate.LogRecordDecodeFailed(m.logger, key, err)
			continue
		}

		if record.State == flowstate.ExecutionRunning {
			active = append(active, record)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].StartTime.Equal(active[j].StartTime) {
			return active[i].ExecutionID < active[j].ExecutionID
		}
		return active[i].StartTime.Before(active[j].StartTime)
	})

	return active, nil
}

// CancelExecution marks a running execution cancelled. It returns false
// without writing when the execution is unknown or not running. Only the
// tracked state changes; the caller must stop the actual work.
func (m *Manager) CancelExecution(ctx context.Context, executionID string) (bool, error) {
	cancelled := false
	_, err := m.mutate(ctx, executionID, func(r *flowstate.ExecutionRecord, now time.Time) (bool, error) {
		if r.State != flowstate.ExecutionRunning {
			return false, nil
		}

		r.State = flowstate.ExecutionCancelled
		if r.EndTime == nil {
			r.EndTime = flowstate.ToPtr(now)
		}
		cancelled = true
		return true, nil
	})
	if err != nil {
		switch {
		case flowstate.IsNotFound(err):
			return false, nil
		case flowstate.IsDecodeError(err):
			flowstate.LogRecordDecodeFailed(m.logger, flowstate.ExecutionKey(executionID), err)
			return false, nil
		}
		return false, err
	}

	if cancelled {
		flowstate.LogExecutionCancelled(m.logger, executionID)
	}
	return cancelled, nil
}
