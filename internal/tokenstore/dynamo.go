package tokenstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/dynamo"
)

// tokensDynamoDB is the narrow set of DynamoDB calls the store needs.
// *dynamodb.Client satisfies it.
type tokensDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

// tokenItem is the item shape of the tokens table, keyed by client_id.
type tokenItem struct {
	ClientID     string `dynamodbav:"client_id"`
	AccessToken  string `dynamodbav:"access_token"`
	RefreshToken string `dynamodbav:"refresh_token"`
	UpdatedAt    string `dynamodbav:"updated_at"`
	TTL          int64  `dynamodbav:"ttl,omitempty"`
}

// DynamoStore keeps one item per client in a DynamoDB table.
type DynamoStore struct {
	db        tokensDynamoDB
	tableName string
	clientID  string
	ttl       time.Duration
	clock     domain.Clock
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for clientID. A positive ttl sets the
// item's ttl attribute so DynamoDB expires abandoned pairs.
func NewDynamoStore(db tokensDynamoDB, tableName, clientID string, ttl time.Duration, clock domain.Clock) *DynamoStore {
	return &DynamoStore{
		db:        db,
		tableName: tableName,
		clientID:  clientID,
		ttl:       ttl,
		clock:     clock,
	}
}

func (s *DynamoStore) key() map[string]dynamo.AttributeValue {
	return dynamo.StringKey("client_id", s.clientID)
}

// Save replaces the client's item.
func (s *DynamoStore) Save(ctx context.Context, pair domain.CredentialPair) error {
	ctx, span := tracer.Start(ctx, "dynamo.tokens.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", "PutItem"),
	)

	now := s.clock.Now().UTC()
	item := tokenItem{
		ClientID:     s.clientID,
		AccessToken:  pair.AccessToken.Expose(),
		RefreshToken: pair.RefreshToken.Expose(),
		UpdatedAt:    now.Format(time.RFC3339),
	}
	if s.ttl > 0 {
		item.TTL = now.Add(s.ttl).Unix()
	}

	av, err := dynamo.MarshalMap(item)
	if err != nil {
		return failSpan(span, unavailable("save tokens: marshal", err))
	}

	_, err = s.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	})
	if err != nil {
		return failSpan(span, unavailable("save tokens", err))
	}
	return nil
}

// Clear deletes the client's item. Deleting a missing item succeeds.
func (s *DynamoStore) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "dynamo.tokens.clear")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", "DeleteItem"),
	)

	_, err := s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.key(),
	})
	if err != nil {
		return failSpan(span, unavailable("clear tokens", err))
	}
	return nil
}

// AccessToken reads the item with a strongly consistent read.
func (s *DynamoStore) AccessToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "dynamo.tokens.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", "GetItem"),
	)

	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(),
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		return "", failSpan(span, unavailable("read access token", err))
	}
	if out.Item == nil {
		return "", nil
	}

	var item tokenItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return "", failSpan(span, unavailable("read access token: unmarshal", err))
	}

	// Past its ttl but not yet reaped by DynamoDB.
	if item.TTL > 0 && item.TTL <= s.clock.Now().Unix() {
		return "", nil
	}
	return item.AccessToken, nil
}
