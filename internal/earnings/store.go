// Package earnings records instructor revenue for paid course orders.
package earnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/course-orderflow/internal/aws"
)

// PlatformFeeBps is the platform's share of a course sale in basis points.
const PlatformFeeBps int64 = 2000

const (
	TypeCourseSale = "course_sale"
	StatusEarned   = "earned"
)

// Earning is one instructor's revenue line for one paid order.
type Earning struct {
	OrderID      string    `dynamodbav:"order_id" json:"order_id"` // PK, at most one earning per order
	EarningID    string    `dynamodbav:"earning_id" json:"earning_id"`
	InstructorID int64     `dynamodbav:"instructor_id" json:"instructor_id"`
	CourseID     int64     `dynamodbav:"course_id" json:"course_id"`
	Amount       int64     `dynamodbav:"amount" json:"amount"`
	PlatformFee  int64     `dynamodbav:"platform_fee" json:"platform_fee"`
	NetAmount    int64     `dynamodbav:"net_amount" json:"net_amount"`
	Type         string    `dynamodbav:"type" json:"type"`
	Status       string    `dynamodbav:"status" json:"status"`
	CreatedAt    time.Time `dynamodbav:"created_at" json:"created_at"`
}

// Split returns the platform fee and the instructor's net for amount minor units.
// The fee rounds half up, so fee + net always equals amount.
func Split(amount int64) (fee, net int64) {
	fee = (amount*PlatformFeeBps + 5000) / 10000
	return fee, amount - fee
}

// New builds the earning for a course order.
func New(orderID string, instructorID, courseID, amount int64) Earning {
	fee, net := Split(amount)
	return Earning{
		OrderID:      orderID,
		EarningID:    uuid.NewString(),
		InstructorID: instructorID,
		CourseID:     courseID,
		Amount:       amount,
		PlatformFee:  fee,
		NetAmount:    net,
		Type:         TypeCourseSale,
		Status:       StatusEarned,
	}
}

// Store persists earnings in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new earnings Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Record inserts e unless an earning already exists for its order. It returns
// true when this call wrote the row.
func (s *Store) Record(ctx context.Context, e Earning) (bool, error) {
	if e.OrderID == "" {
		return false, errors.New("earning order id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.nowFunc().UTC()
	}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return false, fmt.Errorf("marshal earning: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("put earning: %w", err)
	}
	return true, nil
}

// Get returns the earning for orderID, or (nil, nil).
func (s *Store) Get(ctx context.Context, orderID string) (*Earning, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: orderID}},
	})
	if err != nil {
		return nil, fmt.Errorf("get earning: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var e Earning
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, fmt.Errorf("unmarshal earning: %w", err)
	}
	return &e, nil
}

func awsString(s string) *string { return &s }
