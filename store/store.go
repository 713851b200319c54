// Package store provides backend implementations for the execution tracker.
// The Backend interface is defined in the parent flowstate package
// (../backend.go) to avoid import cycles between flowstate and store.
//
// This package contains concrete implementations:
//   - RedisBackend: remote backend over a Redis server
//   - DynamoDBBackend: remote backend over an AWS DynamoDB table
//   - MemoryBackend: in-process fallback backend
//
// The DynamoDB item layout is defined in schema.go.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sicko7947/flowstate"
)

// Open creates the remote backend named by rawURL without contacting it:
//
//	redis://[user:pass@]host:port/db, rediss://..., unix:///path.sock
//	dynamodb://table[?region=us-east-1&endpoint=http://localhost:8000]
func Open(ctx context.Context, rawURL string, scanBatchSize int64) (flowstate.Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss", "unix":
		return NewRedisBackendFromURL(rawURL, scanBatchSize)
	case "dynamodb":
		return openDynamoDB(ctx, u, scanBatchSize)
	default:
		return nil, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
}

func openDynamoDB(ctx context.Context, u *url.URL, scanBatchSize int64) (*DynamoDBBackend, error) {
	table := u.Host
	if table == "" {
		table = strings.TrimPrefix(u.Path, "/")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamodb url has no table name")
	}

	var loadOpts []func(*config.LoadOptions) error
	if region := u.Query().Get("region"); region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := u.Query().Get("endpoint")
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewDynamoDBBackend(client, table, scanBatchSize), nil
}
