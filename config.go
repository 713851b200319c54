package flowstate

import "time"

// Config holds tracker-level configuration
type Config struct {
	// RemoteURL selects the remote backend (redis://, rediss://, unix://,
	// dynamodb://table). Empty means fallback-only operation.
	RemoteURL string

	// EnableFallback switches to the in-memory backend when the remote
	// backend cannot be reached during Connect
	EnableFallback bool

	// DefaultTTL is the retention window applied on every record write
	DefaultTTL time.Duration

	// ScanBatchSize is the page size hint for key scans
	ScanBatchSize int64

	// StrictTransitions rejects state changes the state machine forbids
	StrictTransitions bool
}

// DefaultConfig provides sensible defaults
var DefaultConfig = Config{
	RemoteURL:         "",
	EnableFallback:    true,
	DefaultTTL:        24 * time.Hour,
	ScanBatchSize:     100,
	StrictTransitions: true,
}

// CreateOption allows functional configuration of CreateExecution
type CreateOption func(*CreateOptions)

// CreateOptions holds options for creating an execution
type CreateOptions struct {
	UserID string
}

// WithUserID records the user that started the execution
func WithUserID(id string) CreateOption {
	return func(opts *CreateOptions) {
		opts.UserID = id
	}
}

// UpdateOption allows functional configuration of UpdateExecutionState
type UpdateOption func(*UpdateOptions)

// UpdateOptions holds the optional fields of an execution state update
type UpdateOptions struct {
	CurrentVertex *string
	Progress      *float64
}

// WithCurrentVertex sets the vertex currently executing
func WithCurrentVertex(vertexID string) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.CurrentVertex = &vertexID
	}
}

// WithProgress sets the progress percentage (0-100)
func WithProgress(percentage float64) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.Progress = &percentage
	}
}
