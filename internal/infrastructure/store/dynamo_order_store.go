package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/domain/pricing"
)

// DynamoOrderStore persists orders in DynamoDB. The table uses id as the
// partition key plus a GSI1 index keyed by stripe_payment_intent_id for
// the webhook lookup path.
type DynamoOrderStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoOrder represents the DynamoDB item structure. Nested snapshots are
// stored as JSON strings to match the relational JSONB columns.
type dynamoOrder struct {
	ID              string  `dynamodbav:"id"`
	Songs           string  `dynamodbav:"songs"`
	CampaignTiers   string  `dynamodbav:"campaign_tiers"`
	SelectedAddons  string  `dynamodbav:"selected_addons"`
	UserEmail       string  `dynamodbav:"user_email"`
	UserFirstName   string  `dynamodbav:"user_first_name"`
	UserLastName    string  `dynamodbav:"user_last_name"`
	TotalAmount     float64 `dynamodbav:"total_amount"`
	PaymentIntentID string  `dynamodbav:"stripe_payment_intent_id,omitempty"`
	Status          string  `dynamodbav:"status"`
	CreatedAt       string  `dynamodbav:"created_at"`
	UpdatedAt       string  `dynamodbav:"updated_at"`
}

func NewDynamoOrderStore(client *dynamodb.Client, tableName string) *DynamoOrderStore {
	return &DynamoOrderStore{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoOrderStore) Insert(ctx context.Context, o *order.Order) (string, error) {
	songs, err := json.Marshal(o.Songs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal songs: %w", err)
	}
	tiers, err := json.Marshal(o.Tiers)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tiers: %w", err)
	}
	addons, err := json.Marshal(o.Addons)
	if err != nil {
		return "", fmt.Errorf("failed to marshal addons: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().Format(time.RFC3339Nano)

	item := dynamoOrder{
		ID:             id,
		Songs:          string(songs),
		CampaignTiers:  string(tiers),
		SelectedAddons: string(addons),
		UserEmail:      o.Contact.Email,
		UserFirstName:  o.Contact.FirstName,
		UserLastName:   o.Contact.LastName,
		TotalAmount:    o.TotalAmount,
		Status:         string(order.StatusPending),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert order: %w", err)
	}
	return id, nil
}

func (s *DynamoOrderStore) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:    aws.String("SET stripe_payment_intent_id = :pi, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pi":  &types.AttributeValueMemberS{Value: intentID},
			":now": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return order.ErrNotFound
		}
		return fmt.Errorf("failed to attach payment intent: %w", err)
	}
	return nil
}

// UpdateStatusByIntentID performs a conditional, last-write-wins transition.
// A conditional check failure means the order was already at the target
// status, reported as zero affected rows so webhook replays stay idempotent.
func (s *DynamoOrderStore) UpdateStatusByIntentID(ctx context.Context, intentID string, status order.Status) (int64, error) {
	o, err := s.GetByPaymentIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: o.ID},
		},
		UpdateExpression:    aws.String("SET #status = :status, updated_at = :now"),
		ConditionExpression: aws.String("stripe_payment_intent_id = :pi AND #status <> :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pi":     &types.AttributeValueMemberS{Value: intentID},
			":now":    &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to update order status: %w", err)
	}
	return 1, nil
}

func (s *DynamoOrderStore) GetByPaymentIntentID(ctx context.Context, intentID string) (*order.Order, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("stripe_payment_intent_id = :pi"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pi": &types.AttributeValueMemberS{Value: intentID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query order by intent id: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, order.ErrNotFound
	}
	return unmarshalOrder(result.Items[0])
}

func (s *DynamoOrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if result.Item == nil {
		return nil, order.ErrNotFound
	}
	return unmarshalOrder(result.Item)
}

func (s *DynamoOrderStore) List(ctx context.Context) ([]*order.Order, error) {
	var orders []*order.Order
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list orders: %w", err)
		}
		for _, item := range page.Items {
			o, err := unmarshalOrder(item)
			if err != nil {
				return nil, err
			}
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func unmarshalOrder(item map[string]types.AttributeValue) (*order.Order, error) {
	var do dynamoOrder
	if err := attributevalue.UnmarshalMap(item, &do); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	o := order.Order{
		ID:              do.ID,
		Contact:         checkout.BuyerContact{Email: do.UserEmail, FirstName: do.UserFirstName, LastName: do.UserLastName},
		TotalAmount:     do.TotalAmount,
		PaymentIntentID: do.PaymentIntentID,
		Status:          order.Status(do.Status),
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, do.CreatedAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, do.UpdatedAt)

	if err := json.Unmarshal([]byte(do.Songs), &o.Songs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal songs: %w", err)
	}
	if err := json.Unmarshal([]byte(do.CampaignTiers), &o.Tiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tiers: %w", err)
	}
	if err := json.Unmarshal([]byte(do.SelectedAddons), &o.Addons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal addons: %w", err)
	}
	if o.Songs == nil {
		o.Songs = []checkout.LineItem{}
	}
	if o.Tiers == nil {
		o.Tiers = map[string]pricing.Tier{}
	}

	return &o, nil
}
