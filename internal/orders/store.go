package orders

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/course-orderflow/internal/aws"
)

// Index names on the orders table. Both are sparse: gateway guard items carry
// neither kind nor user_id.
const (
	UserIndex = "user_id-created_ms-index"
	KindIndex = "kind-created_ms-index"
)

const (
	kindOrder   = "order"
	guardPrefix = "gateway#"
)

var (
	// ErrStatusMismatch is returned when a conditional status transition fails.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateOrder is returned when the order id or gateway order ref already exists.
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrNotFound is returned by mutations on a missing order.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidCursor is returned for a page cursor this store did not issue.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// orderItem is the persisted shape of an Order.
type orderItem struct {
	OrderID         string     `dynamodbav:"order_id"` // PK
	Kind            string     `dynamodbav:"kind"`
	UserID          int64      `dynamodbav:"user_id"`
	CourseID        *int64     `dynamodbav:"course_id,omitempty"`
	ProjectID       *int64     `dynamodbav:"project_id,omitempty"`
	ApplicationID   *int64     `dynamodbav:"application_id,omitempty"`
	GatewayOrderRef string     `dynamodbav:"gateway_order_ref"`
	Receipt         string     `dynamodbav:"receipt,omitempty"`
	Amount          int64      `dynamodbav:"amount"`
	Currency        string     `dynamodbav:"currency"`
	Status          string     `dynamodbav:"status"`
	IsMock          bool       `dynamodbav:"is_mock"`
	PaymentDetails  string     `dynamodbav:"payment_details,omitempty"` // JSON
	FailureReason   string     `dynamodbav:"failure_reason,omitempty"`
	CreatedAt       time.Time  `dynamodbav:"created_at"`
	CreatedMs       int64      `dynamodbav:"created_ms"` // GSI sort key
	UpdatedAt       time.Time  `dynamodbav:"updated_at"`
	PaidAt          *time.Time `dynamodbav:"paid_at,omitempty"`
}

// gatewayRefItem reserves a gateway order ref and points at the owning order.
type gatewayRefItem struct {
	OrderID       string    `dynamodbav:"order_id"` // "gateway#<ref>"
	TargetOrderID string    `dynamodbav:"target_order_id"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
}

func toItem(o Order) orderItem {
	return orderItem{
		OrderID:         o.OrderID,
		Kind:            kindOrder,
		UserID:          o.UserID,
		CourseID:        o.CourseID,
		ProjectID:       o.ProjectID,
		ApplicationID:   o.ApplicationID,
		GatewayOrderRef: o.GatewayOrderRef,
		Receipt:         o.Receipt,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Status:          string(o.Status),
		IsMock:          o.IsMock,
		PaymentDetails:  string(o.PaymentDetails),
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt,
		CreatedMs:       o.CreatedAt.UnixMilli(),
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
	}
}

func (it orderItem) toOrder() Order {
	o := Order{
		OrderID:         it.OrderID,
		UserID:          it.UserID,
		CourseID:        it.CourseID,
		ProjectID:       it.ProjectID,
		ApplicationID:   it.ApplicationID,
		GatewayOrderRef: it.GatewayOrderRef,
		Receipt:         it.Receipt,
		Amount:          it.Amount,
		Currency:        it.Currency,
		Status:          Status(it.Status),
		IsMock:          it.IsMock,
		FailureReason:   it.FailureReason,
		CreatedAt:       it.CreatedAt,
		UpdatedAt:       it.UpdatedAt,
		PaidAt:          it.PaidAt,
	}
	if it.PaymentDetails != "" {
		o.PaymentDetails = json.RawMessage(it.PaymentDetails)
	}
	return o
}

// Create persists a new order together with a guard item reserving its gateway
// order ref, in one transaction. Either both are written or neither.
func (s *Store) Create(ctx context.Context, o Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(toItem(o))
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	guardMap, err := attributevalue.MarshalMap(gatewayRefItem{
		OrderID:       guardPrefix + o.GatewayOrderRef,
		TargetOrderID: o.OrderID,
		CreatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("marshal gateway ref item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                guardMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("%w: order=%s gateway_order_ref=%s", ErrDuplicateOrder, o.OrderID, o.GatewayOrderRef)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// conditionFailed reports whether a transaction was canceled by a failed
// condition. Conflicts and throttling cancel it too and are not duplicates.
func conditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, nil
	}
	item, err := s.getItem(ctx, orderID)
	if err != nil || item == nil {
		return nil, err
	}
	var it orderItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	if it.Kind != kindOrder {
		// gateway guard items share the table
		return nil, nil
	}
	o := it.toOrder()
	return &o, nil
}

// GetByGatewayRef resolves an order from the gateway's order id. Returns (nil, nil) if not found.
func (s *Store) GetByGatewayRef(ctx context.Context, ref string) (*Order, error) {
	if ref == "" {
		return nil, nil
	}
	item, err := s.getItem(ctx, guardPrefix+ref)
	if err != nil || item == nil {
		return nil, err
	}
	var guard gatewayRefItem
	if err := attributevalue.UnmarshalMap(item, &guard); err != nil {
		return nil, fmt.Errorf("unmarshal gateway ref: %w", err)
	}
	return s.Get(ctx, guard.TargetOrderID)
}

func (s *Store) getItem(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: pk}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// MarkPaid moves an order to paid and records details, unless it is already paid.
// It returns true only for the call that performed the transition, so callers
// racing on the same order (client verify and webhook) see exactly one winner.
// Payment details are written once, by the winner.
func (s *Store) MarkPaid(ctx context.Context, orderID string, details json.RawMessage) (bool, error) {
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :paid, payment_details = :pd, paid_at = :ua, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(order_id) AND #k = :kind AND #s <> :paid"),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#k": "kind"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid": &types.AttributeValueMemberS{Value: string(StatusPaid)},
			":pd":   &types.AttributeValueMemberS{Value: string(details)},
			":ua":   &types.AttributeValueMemberS{Value: now},
			":kind": &types.AttributeValueMemberS{Value: kindOrder},
		},
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err == nil {
		return true, nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return false, fmt.Errorf("update item (mark paid): %w", err)
	}
	// either missing or already paid
	o, getErr := s.Get(ctx, orderID)
	if getErr != nil {
		return false, getErr
	}
	if o == nil {
		return false, ErrNotFound
	}
	return false, nil
}

// MarkFailed moves a created order to failed. A paid or already failed order is
// left untouched and ErrStatusMismatch is returned.
func (s *Store) MarkFailed(ctx context.Context, orderID, reason string) error {
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :failed, failure_reason = :r, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":   &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":r":        &types.AttributeValueMemberS{Value: reason},
			":ua":       &types.AttributeValueMemberS{Value: now},
			":expected": &types.AttributeValueMemberS{Value: string(StatusCreated)},
		},
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

// ListByUser returns a user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID int64, limit int, cursor string) (*Page, error) {
	return s.queryIndex(ctx, UserIndex, "user_id", &types.AttributeValueMemberN{Value: strconv.FormatInt(userID, 10)}, limit, cursor)
}

// ListAll returns every order, newest first.
func (s *Store) ListAll(ctx context.Context, limit int, cursor string) (*Page, error) {
	return s.queryIndex(ctx, KindIndex, "kind", &types.AttributeValueMemberS{Value: kindOrder}, limit, cursor)
}

// pageCursor is the opaque continuation token handed to API clients.
type pageCursor struct {
	OrderID   string `json:"id"`
	CreatedMs int64  `json:"ts"`
}

func (s *Store) queryIndex(ctx context.Context, index, pkAttr string, pkValue types.AttributeValue, limit int, cursor string) (*Page, error) {
	if limit <= 0 {
		limit = 10
	}
	input := &dyn.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 awsString(index),
		KeyConditionExpression:    awsString("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": pkAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": pkValue},
		ScanIndexForward:          awsBool(false),
		Limit:                     awsInt32(int32(limit)),
	}
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"order_id":   &types.AttributeValueMemberS{Value: c.OrderID},
			"created_ms": &types.AttributeValueMemberN{Value: strconv.FormatInt(c.CreatedMs, 10)},
			pkAttr:       pkValue,
		}
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}

	var items []orderItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	page := &Page{Orders: make([]Order, 0, len(items))}
	for _, it := range items {
		page.Orders = append(page.Orders, it.toOrder())
	}
	if len(out.LastEvaluatedKey) > 0 && len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(pageCursor{OrderID: last.OrderID, CreatedMs: last.CreatedMs})
	}
	return page, nil
}

func encodeCursor(c pageCursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (pageCursor, error) {
	var c pageCursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(b, &c); err != nil || c.OrderID == "" {
		return c, ErrInvalidCursor
	}
	return c, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
