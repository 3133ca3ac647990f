package callhistory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/caresync/telehealth-ivr/pkg/logging"
)

const recordTTL = 90 * 24 * time.Hour

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore persists records in a table keyed by callSid with a TTL on
// expiresAt.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
	logger    *logging.Logger
}

func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) (*DynamoStore, error) {
	if client == nil {
		return nil, errors.New("callhistory: dynamodb client cannot be nil")
	}
	if tableName == "" {
		return nil, errors.New("callhistory: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, now: time.Now, logger: logger}, nil
}

func (s *DynamoStore) Put(ctx context.Context, rec Record) error {
	if rec.CallSid == "" {
		return errors.New("callhistory: call sid required")
	}
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = s.now().Add(recordTTL).Unix()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("callhistory: marshal record: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("callhistory: put record: %w", err)
	}
	s.logger.Debug("call record stored", "call_sid", rec.CallSid, "outcome", rec.Outcome)
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, callSid string) (*Record, error) {
	if callSid == "" {
		return nil, errors.New("callhistory: call sid required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"callSid": &types.AttributeValueMemberS{Value: callSid},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("callhistory: get record: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("callhistory: decode record: %w", err)
	}
	return &rec, nil
}
