package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"hostel-agent/internal/domain"
)

const (
	skState          = "STATE#"
	defaultRetention = 24 * time.Hour // DynamoDB TTL horizon for idle conversations
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps a DynamoDB table holding one item per conversation.
type Client struct {
	api       dynamodbAPI
	tableName string
	retention time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetention sets how long after its last activity an item is kept before
// DynamoDB TTL removes it.
func WithRetention(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.retention = d
		}
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...ClientOption) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, retention: defaultRetention}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(key string) string {
	return "CONV#" + key
}

// Upsert writes or replaces the state item for state.Key.
func (c *Client) Upsert(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.Key == "" {
		return errors.New("repository: Upsert: state key is required")
	}
	item, err := c.stateItem(state)
	if err != nil {
		return fmt.Errorf("repository: Upsert: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Upsert: %w", err)
	}
	return nil
}

// LoadActive scans for state items active at or after since, following
// pagination until the table is exhausted.
func (c *Client) LoadActive(ctx context.Context, since time.Time) ([]*domain.ConversationState, error) {
	in := &dynamodb.ScanInput{
		TableName:        aws.String(c.tableName),
		FilterExpression: aws.String("SK = :sk AND lastActive >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk":    &types.AttributeValueMemberS{Value: skState},
			":since": &types.AttributeValueMemberN{Value: strconv.FormatInt(since.UnixMilli(), 10)},
		},
	}

	var states []*domain.ConversationState
	for {
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: LoadActive scan: %w", err)
		}
		for _, item := range out.Items {
			st, err := itemToState(item)
			if err != nil {
				return nil, fmt.Errorf("repository: LoadActive unmarshal: %w", err)
			}
			states = append(states, st)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return states, nil
}

// Delete removes the state item for key. Deleting a missing item is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(key)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func (c *Client) stateItem(state *domain.ConversationState) (map[string]types.AttributeValue, error) {
	body, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	lastActive := state.LastActiveAt
	if lastActive.IsZero() {
		lastActive = time.Now()
	}
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(state.Key)},
		"SK":             &types.AttributeValueMemberS{Value: skState},
		"conversationId": &types.AttributeValueMemberS{Value: state.Key},
		"state":          &types.AttributeValueMemberS{Value: string(body)},
		"lastActive":     &types.AttributeValueMemberN{Value: strconv.FormatInt(lastActive.UnixMilli(), 10)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(lastActive.Add(c.retention).Unix(), 10)},
	}, nil
}

// itemToState converts a DynamoDB attribute map to a ConversationState.
func itemToState(item map[string]types.AttributeValue) (*domain.ConversationState, error) {
	key, err := strAttr(item, "conversationId")
	if err != nil {
		return nil, err
	}
	body, err := strAttr(item, "state")
	if err != nil {
		return nil, err
	}
	var st domain.ConversationState
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		return nil, fmt.Errorf("repository: decode state %q: %w", key, err)
	}
	st.Key = key
	if ms, err := int64Attr(item, "lastActive"); err == nil && st.LastActiveAt.IsZero() {
		st.LastActiveAt = time.UnixMilli(ms).UTC()
	}
	return &st, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
