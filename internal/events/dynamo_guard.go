package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// processedMessage is one DynamoDB item; the table TTL attribute is expiresAt.
type processedMessage struct {
	Key         string `dynamodbav:"messageKey"`
	Sender      string `dynamodbav:"sender"`
	MessageID   string `dynamodbav:"messageId"`
	State       string `dynamodbav:"state"`
	ProcessedAt string `dynamodbav:"processedAt"`
	ExpiresAt   int64  `dynamodbav:"expiresAt"`
}

// DynamoGuard records processed messages with a conditional PutItem.
type DynamoGuard struct {
	client    dynamoAPI
	tableName string
	window    time.Duration
	pending   time.Duration
	now       func() time.Time
}

var _ Guard = (*DynamoGuard)(nil)

func NewDynamoGuard(client dynamoAPI, tableName string, window time.Duration, opts ...GuardOption) *DynamoGuard {
	if client == nil {
		panic("events: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("events: table name cannot be empty")
	}
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	o := applyGuardOptions(window, opts)
	return &DynamoGuard{client: client, tableName: tableName, window: window, pending: o.pending, now: time.Now}
}

func (g *DynamoGuard) item(sender, messageID, state string, ttl time.Duration) (map[string]types.AttributeValue, time.Time, error) {
	now := g.now().UTC()
	item, err := attributevalue.MarshalMap(processedMessage{
		Key:         dedupeKey(sender, messageID),
		Sender:      sender,
		MessageID:   messageID,
		State:       state,
		ProcessedAt: now.Format(time.RFC3339Nano),
		ExpiresAt:   now.Add(ttl).Unix(),
	})
	if err != nil {
		return nil, now, fmt.Errorf("events: marshal processed message: %w", err)
	}
	return item, now, nil
}

// IsDuplicate inserts the item unless an unexpired one exists. DynamoDB TTL
// deletion lags, so expired items are overwritten explicitly.
func (g *DynamoGuard) IsDuplicate(ctx context.Context, sender, messageID string) (bool, error) {
	if err := validate(sender, messageID); err != nil {
		return false, err
	}
	item, now, err := g.item(sender, messageID, statePending, g.pending)
	if err != nil {
		return false, err
	}

	_, err = g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(g.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(messageKey) OR expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			var existing processedMessage
			if ccf.Item != nil {
				if err := attributevalue.UnmarshalMap(ccf.Item, &existing); err != nil {
					return false, fmt.Errorf("events: unmarshal processed message: %w", err)
				}
			}
			return claimResult(existing.State)
		}
		return false, fmt.Errorf("events: put processed message: %w", err)
	}
	return false, nil
}

func (g *DynamoGuard) Confirm(ctx context.Context, sender, messageID string) error {
	item, _, err := g.item(sender, messageID, stateDone, g.window)
	if err != nil {
		return err
	}
	if _, err := g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(g.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("events: confirm processed message: %w", err)
	}
	return nil
}

func (g *DynamoGuard) Forget(ctx context.Context, sender, messageID string) error {
	_, err := g.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(g.tableName),
		Key: map[string]types.AttributeValue{
			"messageKey": &types.AttributeValueMemberS{Value: dedupeKey(sender, messageID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: delete processed message: %w", err)
	}
	return nil
}
