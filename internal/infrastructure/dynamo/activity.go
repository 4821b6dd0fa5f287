package dynamo

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-restaurant-api/internal/domain"
)

// ActivityRepo reads the dashboard activity table (hash category, range created_at_ns).
// Rows are written by the order, reservation and catalog services; here they are only counted.
type ActivityRepo struct {
	client    queryAPI
	tableName string
}

type queryAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

func NewActivityRepo(client *dynamodb.Client, tableName string) *ActivityRepo {
	return &ActivityRepo{client: client, tableName: tableName}
}

// CountSince counts events of category c strictly after since.
func (r *ActivityRepo) CountSince(ctx context.Context, c domain.Category, since time.Time) (int64, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#c = :c AND #t > :t"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldCategory,
			"#t": fieldCreatedAtNs,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: string(c)},
			":t": &types.AttributeValueMemberN{Value: strconv.FormatInt(since.UnixNano(), 10)},
		},
		Select: types.SelectCount,
	}
	var total int64
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return 0, err
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
