package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sicko7947/flowstate"
)

// DynamoDBBackend implements flowstate.Backend using AWS DynamoDB.
// Each backend key is one item; expiry is stored in the table's TTL
// attribute and also checked on read because DynamoDB deletes expired
// items lazily.
type DynamoDBBackend struct {
	client    DynamoDBClient
	tableName string
	scanLimit int32
	now       func() time.Time
}

// NewDynamoDBBackend creates a new DynamoDB-backed store
func NewDynamoDBBackend(client DynamoDBClient, tableName string, scanLimit int64) *DynamoDBBackend {
	if scanLimit <= 0 {
		scanLimit = 100
	}
	return &DynamoDBBackend{
		client:    client,
		tableName: tableName,
		scanLimit: int32(scanLimit),
		now:       time.Now,
	}
}

var _ flowstate.Backend = (*DynamoDBBackend)(nil)

// Name returns the backend name
func (s *DynamoDBBackend) Name() string {
	return "dynamodb"
}

func (s *DynamoDBBackend) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoDBBackend) ttlValue(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).Unix()
}

func (s *DynamoDBBackend) live(item *dynamoItem) bool {
	return item.TTL == 0 || item.TTL > s.now().Unix()
}

func (s *DynamoDBBackend) load(ctx context.Context, key string) (*dynamoItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	if !s.live(&item) {
		return nil, nil
	}
	return &item, nil
}

// Scalar operations

func (s *DynamoDBBackend) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Kind != KindValue {
		return nil, flowstate.ErrKeyNotFound
	}
	return item.Value, nil
}

func (s *DynamoDBBackend) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:    key,
		Kind:  KindValue,
		Value: value,
		TTL:   s.ttlValue(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

// List operations

// ListPush prepends value with list_append. An expired list is replaced
// by a fresh one holding only value.
func (s *DynamoDBBackend) ListPush(ctx context.Context, key, value string) (int64, error) {
	now := strconv.FormatInt(s.now().Unix(), 10)

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(key),
		UpdateExpression:    aws.String("SET #items = list_append(:new, if_not_exists(#items, :empty)), #kind = :kind"),
		ConditionExpression: aws.String("attribute_not_exists(#ttl) OR #ttl > :now"),
		ExpressionAttributeNames: expressionNames(nameItems, nameKind, nameTTL),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: value},
			}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":kind":  &types.AttributeValueMemberS{Value: KindList},
			":now":   &types.AttributeValueMemberN{Value: now},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return s.resetList(ctx, key, value)
		}
		return 0, fmt.Errorf("failed to push onto %s: %w", key, err)
	}

	items, ok := result.Attributes[AttrItems].(*types.AttributeValueMemberL)
	if !ok {
		return 0, fmt.Errorf("push onto %s returned no items", key)
	}
	return int64(len(items.Value)), nil
}

func (s *DynamoDBBackend) resetList(ctx context.Context, key, value string) (int64, error) {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:    key,
		Kind:  KindList,
		Items: []string{value},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset list %s: %w", key, err)
	}
	return 1, nil
}

func (s *DynamoDBBackend) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	item, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Kind != KindList {
		return []string{}, nil
	}

	lo, hi, ok := normalizeRange(int64(len(item.Items)), start, stop)
	if !ok {
		return []string{}, nil
	}
	return item.Items[lo : hi+1], nil
}

func (s *DynamoDBBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := strconv.FormatInt(s.now().Unix(), 10)
	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(key),
		ConditionExpression:      aws.String("attribute_exists(#pk) AND (attribute_not_exists(#ttl) OR #ttl > :now)"),
		ExpressionAttributeNames: expressionNames(namePK, nameTTL),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: now},
		},
	}

	if ttl <= 0 {
		input.UpdateExpression = aws.String("REMOVE #ttl")
	} else {
		input.UpdateExpression = aws.String("SET #ttl = :ttl")
		input.ExpressionAttributeValues[":ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.ttlValue(ttl), 10)}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return nil
}

// ScanKeys pages through a filtered table scan. Only live scalar items
// whose key starts with prefix are yielded.
func (s *DynamoDBBackend) ScanKeys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:                aws.String(s.tableName),
			FilterExpression:         aws.String("begins_with(#pk, :prefix) AND #kind = :kind AND (attribute_not_exists(#ttl) OR #ttl > :now)"),
			ProjectionExpression:     aws.String(namePK),
			ExpressionAttributeNames: expressionNames(namePK, nameKind, nameTTL),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: prefix},
				":kind":   &types.AttributeValueMemberS{Value: KindValue},
				":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
			},
			Limit: aws.Int32(s.scanLimit),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("failed to scan %s*: %w", prefix, err))
				return
			}

			for _, item := range page.Items {
				pk, ok := item[AttrPK].(*types.AttributeValueMemberS)
				if !ok {
					continue
				}
				if !yield(pk.Value, nil) {
					return
				}
			}
		}
	}
}

// Lifecycle

func (s *DynamoDBBackend) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", s.tableName, err)
	}
	return nil
}

func (s *DynamoDBBackend) Close() error {
	return nil
}
