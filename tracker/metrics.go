package tracker

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sicko7947/flowstate"
)

var (
	backendOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowstate_backend_operations_total",
			Help: "Total number of backend operations",
		},
		[]string{"backend", "operation", "result"},
	)

	executionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowstate_executions_created_total",
			Help: "Total number of execution records created",
		},
		[]string{"backend"},
	)

	connectionMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowstate_connection_mode",
			Help: "1 for the current connection status of the manager, 0 otherwise",
		},
		[]string{"mode"},
	)
)

func recordBackendOperation(backend, operation string, err error) {
	result := "ok"
	if err != nil && !errors.Is(err, flowstate.ErrKeyNotFound) {
		result = "error"
	}
	backendOperations.WithLabelValues(backend, operation, result).Inc()
}

func setConnectionMode(status ConnectionStatus) {
	for _, s := range allStatuses {
		value := 0.0
		if s == status {
			value = 1
		}
		connectionMode.WithLabelValues(s.String()).Set(value)
	}
}

// instrumented counts every call made through the wrapped backend
type instrumented struct {
	flowstate.Backend
}

func instrument(b flowstate.Backend) flowstate.Backend {
	return &instrumented{Backend: b}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := i.Backend.Get(ctx, key)
	recordBackendOperation(i.Name(), "get", err)
	return data, err
}

func (i *instrumented) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := i.Backend.SetWithTTL(ctx, key, value, ttl)
	recordBackendOperation(i.Name(), "set", err)
	return err
}

func (i *instrumented) ListPush(ctx context.Context, key, value string) (int64, error) {
	n, err := i.Backend.ListPush(ctx, key, value)
	recordBackendOperation(i.Name(), "list_push", err)
	return n, err
}

func (i *instrumented) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	items, err := i.Backend.ListRange(ctx, key, start, stop)
	recordBackendOperation(i.Name(), "list_range", err)
	return items, err
}

func (i *instrumented) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := i.Backend.Expire(ctx, key, ttl)
	recordBackendOperation(i.Name(), "expire", err)
	return err
}

func (i *instrumented) ScanKeys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var scanErr error
		defer func() { recordBackendOperation(i.Name(), "scan", scanErr) }()

		for key, err := range i.Backend.ScanKeys(ctx, prefix) {
			if err != nil {
				scanErr = err
			}
			if !yield(key, err) {
				return
			}
		}
	}
}

func (i *instrumented) Ping(ctx context.Context) error {
	err := i.Backend.Ping(ctx)
	recordBackendOperation(i.Name(), "ping", err)
	return err
}
