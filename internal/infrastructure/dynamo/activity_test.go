package dynamo

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-restaurant-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedQuery serves one canned page per call and records every input.
type pagedQuery struct {
	pages  []*dynamodb.QueryOutput
	err    error
	inputs []dynamodb.QueryInput
}

func (q *pagedQuery) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	q.inputs = append(q.inputs, *in)
	if q.err != nil {
		return nil, q.err
	}
	out := q.pages[0]
	q.pages = q.pages[1:]
	return out, nil
}

func TestActivityRepo_CountSince_StrictlyAfterWatermark(t *testing.T) {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := &pagedQuery{pages: []*dynamodb.QueryOutput{{Count: 3}}}
	repo := &ActivityRepo{client: q, tableName: "activity"}

	n, err := repo.CountSince(context.Background(), domain.CategoryOrders, seen)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, q.inputs, 1)
	in := q.inputs[0]
	assert.Equal(t, "activity", *in.TableName)
	assert.Equal(t, "#c = :c AND #t > :t", *in.KeyConditionExpression)
	assert.Equal(t, map[string]string{"#c": "category", "#t": "created_at_ns"}, in.ExpressionAttributeNames)
	assert.Equal(t, types.SelectCount, in.Select)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "orders"}, in.ExpressionAttributeValues[":c"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: strconv.FormatInt(seen.UnixNano(), 10)}, in.ExpressionAttributeValues[":t"])
	assert.Nil(t, in.ExclusiveStartKey)
}

func TestActivityRepo_CountSince_SumsPages(t *testing.T) {
	cursor := map[string]types.AttributeValue{
		"category":      &types.AttributeValueMemberS{Value: "messages"},
		"created_at_ns": &types.AttributeValueMemberN{Value: "42"},
	}
	q := &pagedQuery{pages: []*dynamodb.QueryOutput{
		{Count: 100, LastEvaluatedKey: cursor},
		{Count: 7},
	}}
	repo := &ActivityRepo{client: q, tableName: "activity"}

	n, err := repo.CountSince(context.Background(), domain.CategoryMessages, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(107), n)
	require.Len(t, q.inputs, 2)
	assert.Nil(t, q.inputs[0].ExclusiveStartKey)
	assert.Equal(t, cursor, q.inputs[1].ExclusiveStartKey)
}

func TestActivityRepo_CountSince_Error(t *testing.T) {
	q := &pagedQuery{err: errors.New("throttled")}
	repo := &ActivityRepo{client: q, tableName: "activity"}

	_, err := repo.CountSince(context.Background(), domain.CategoryOrders, time.Now())
	assert.ErrorContains(t, err, "throttled")
}
