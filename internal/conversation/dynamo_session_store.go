package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoTurn struct {
	ID        string `dynamodbav:"id"`
	Role      string `dynamodbav:"role"`
	Text      string `dynamodbav:"text"`
	CreatedAt string `dynamodbav:"createdAt"`
}

type dynamoSessionItem struct {
	SessionID          string       `dynamodbav:"sessionId"`
	Turns              []dynamoTurn `dynamodbav:"turns"`
	CatalogFingerprint string       `dynamodbav:"catalogFingerprint"`
	CreatedAt          string       `dynamodbav:"createdAt"`
	UpdatedAt          string       `dynamodbav:"updatedAt"`
	ExpiresAt          int64        `dynamodbav:"expiresAt"`
}

// DynamoSessionStore keeps one item per session keyed by sessionId. The
// expiresAt attribute is meant for the table's TTL setting; Load also
// treats past-due items as missing since DynamoDB expiry is lazy.
type DynamoSessionStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewDynamoSessionStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoSessionStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &DynamoSessionStore{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

func (s *DynamoSessionStore) Save(ctx context.Context, session StoredSession) error {
	item := dynamoSessionItem{
		SessionID:          session.ID,
		Turns:              make([]dynamoTurn, 0, len(session.Turns)),
		CatalogFingerprint: session.CatalogFingerprint,
		CreatedAt:          session.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:          session.UpdatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:          s.now().Add(s.ttl).Unix(),
	}
	for _, turn := range session.Turns {
		item.Turns = append(item.Turns, dynamoTurn{
			ID:        string(turn.ID),
			Role:      string(turn.Role),
			Text:      turn.Text,
			CreatedAt: turn.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) Load(ctx context.Context, id string) (StoredSession, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            sessionItemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return StoredSession{}, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	if out.Item == nil {
		return StoredSession{}, ErrSessionNotFound
	}

	var item dynamoSessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return StoredSession{}, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	if item.ExpiresAt > 0 && s.now().Unix() >= item.ExpiresAt {
		return StoredSession{}, ErrSessionNotFound
	}

	session := StoredSession{
		ID:                 item.SessionID,
		Turns:              make([]Turn, 0, len(item.Turns)),
		CatalogFingerprint: item.CatalogFingerprint,
		CreatedAt:          parseStoredTime(item.CreatedAt),
		UpdatedAt:          parseStoredTime(item.UpdatedAt),
	}
	for _, turn := range item.Turns {
		session.Turns = append(session.Turns, Turn{
			ID:        TurnID(turn.ID),
			Role:      Role(turn.Role),
			Text:      turn.Text,
			CreatedAt: parseStoredTime(turn.CreatedAt),
		})
	}
	return session, nil
}

func (s *DynamoSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       sessionItemKey(id),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to delete session: %w", err)
	}
	return nil
}

func sessionItemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: id},
	}
}

func parseStoredTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
