package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-restaurant-api/internal/domain"
)

// WatermarkRepo persists the dashboard watermark singleton.
type WatermarkRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewWatermarkRepo(client *dynamodb.Client, tableName string) *WatermarkRepo {
	return &WatermarkRepo{client: client, tableName: tableName}
}

// Get returns the singleton, ErrNotFound if it was never created.
func (r *WatermarkRepo) Get(ctx context.Context) (*domain.Watermark, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldWatermarkID, globalWatermarkKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("watermark: %w", domain.ErrNotFound)
	}
	var w domain.Watermark
	if err := attributevalue.UnmarshalMap(out.Item, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create stores w as the singleton. A concurrent creator that got there first
// yields ErrConflict.
func (r *WatermarkRepo) Create(ctx context.Context, w *domain.Watermark) error {
	w.WatermarkID = globalWatermarkKey
	item, err := attributevalue.MarshalMap(w)
	if err != nil {
		return fmt.Errorf("marshal watermark: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldWatermarkID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("watermark: %w", domain.ErrConflict)
	}
	return err
}

// SetSeen moves one category's watermark to at.
func (r *WatermarkRepo) SetSeen(ctx context.Context, c domain.Category, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{c.Field(): at.UTC()})
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldWatermarkID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldWatermarkID, globalWatermarkKey),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("watermark: %w", domain.ErrNotFound)
	}
	return err
}
