// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Index describes a global secondary index of a Table.
type Index struct {
	PartitionKey string
	SortKey      string
}

// Table describes the key schema MemoryDynamo enforces for one table.
type Table struct {
	Name         string
	PartitionKey string
	Indexes      map[string]Index
}

// MemoryDynamo is an in-memory DynamoDB good enough for the stores' expressions:
// OR of AND clauses over attribute_exists, attribute_not_exists, =, <> and < in
// conditions, plain "SET a = :v" updates, and GSI queries with paging.
type MemoryDynamo struct {
	mu      sync.Mutex
	schemas map[string]Table
	tables  map[string]map[string]map[string]types.AttributeValue
	errs    map[string]error
	calls   map[string]int
}

// NewMemoryDynamo returns an empty store knowing the given tables.
func NewMemoryDynamo(tables ...Table) *MemoryDynamo {
	m := &MemoryDynamo{
		schemas: map[string]Table{},
		tables:  map[string]map[string]map[string]types.AttributeValue{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
	for _, t := range tables {
		m.schemas[t.Name] = t
		m.tables[t.Name] = map[string]map[string]types.AttributeValue{}
	}
	return m
}

// FailOn makes every call of op ("PutItem", "GetItem", ...) return err.
func (m *MemoryDynamo) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

// Calls returns how many times op was invoked.
func (m *MemoryDynamo) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Item returns a copy of the stored item or nil.
func (m *MemoryDynamo) Item(table, pk string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.tables[table][pk]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of items stored in table.
func (m *MemoryDynamo) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// Seed writes item unconditionally.
func (m *MemoryDynamo) Seed(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema := m.schemas[table]
	m.tables[table][scalar(item[schema.PartitionKey])] = copyItem(item)
}

func (m *MemoryDynamo) enter(op string) (func(), error) {
	m.mu.Lock()
	m.calls[op]++
	return m.mu.Unlock, m.errs[op]
}

func (m *MemoryDynamo) schema(table *string) (Table, error) {
	if table == nil {
		return Table{}, errors.New("table name is required")
	}
	s, ok := m.schemas[*table]
	if !ok {
		return Table{}, &types.ResourceNotFoundException{Message: table}
	}
	return s, nil
}

func (m *MemoryDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	unlock, injected := m.enter("PutItem")
	defer unlock()
	if injected != nil {
		return nil, injected
	}
	schema, err := m.schema(params.TableName)
	if err != nil {
		return nil, err
	}
	pk := scalar(params.Item[schema.PartitionKey])
	if pk == "" {
		return nil, fmt.Errorf("missing partition key %s", schema.PartitionKey)
	}
	existing := m.tables[schema.Name][pk]
	if params.ConditionExpression != nil && !evalCondition(existing, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: params.ConditionExpression}
	}
	m.tables[schema.Name][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *MemoryDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	unlock, injected := m.enter("GetItem")
	defer unlock()
	if injected != nil {
		return nil, injected
	}
	schema, err := m.schema(params.TableName)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[schema.Name][scalar(params.Key[schema.PartitionKey])]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *MemoryDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	unlock, injected := m.enter("UpdateItem")
	defer unlock()
	if injected != nil {
		return nil, injected
	}
	schema, err := m.schema(params.TableName)
	if err != nil {
		return nil, err
	}
	pk := scalar(params.Key[schema.PartitionKey])
	existing := m.tables[schema.Name][pk]
	if params.ConditionExpression != nil && !evalCondition(existing, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: params.ConditionExpression}
	}
	item := copyItem(existing)
	if item == nil {
		item = copyItem(params.Key)
	}
	if params.UpdateExpression != nil {
		if err := applySet(item, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	m.tables[schema.Name][pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (m *MemoryDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	unlock, injected := m.enter("Query")
	defer unlock()
	if injected != nil {
		return nil, injected
	}
	schema, err := m.schema(params.TableName)
	if err != nil {
		return nil, err
	}
	idx := Index{PartitionKey: schema.PartitionKey}
	if params.IndexName != nil {
		var ok bool
		if idx, ok = schema.Indexes[*params.IndexName]; !ok {
			return nil, fmt.Errorf("unknown index %s", *params.IndexName)
		}
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("key condition is required")
	}
	left, right, ok := strings.Cut(*params.KeyConditionExpression, " = ")
	if !ok || resolveName(strings.TrimSpace(left), params.ExpressionAttributeNames) != idx.PartitionKey {
		return nil, fmt.Errorf("unsupported key condition %q", *params.KeyConditionExpression)
	}
	want := scalar(params.ExpressionAttributeValues[strings.TrimSpace(right)])

	var matched []map[string]types.AttributeValue
	for _, item := range m.tables[schema.Name] {
		if scalar(item[idx.PartitionKey]) != want {
			continue
		}
		if idx.SortKey != "" {
			if _, ok := item[idx.SortKey]; !ok {
				continue
			}
		}
		matched = append(matched, item)
	}
	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := sortValue(matched[i][idx.SortKey]), sortValue(matched[j][idx.SortKey])
		if a == b {
			return scalar(matched[i][schema.PartitionKey]) < scalar(matched[j][schema.PartitionKey])
		}
		if forward {
			return a < b
		}
		return a > b
	})

	if params.ExclusiveStartKey != nil {
		start := scalar(params.ExclusiveStartKey[schema.PartitionKey])
		for i, item := range matched {
			if scalar(item[schema.PartitionKey]) == start {
				matched = matched[i+1:]
				break
			}
		}
	}

	out := &dyn.QueryOutput{}
	limit := len(matched)
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	for _, item := range matched[:limit] {
		out.Items = append(out.Items, copyItem(item))
	}
	out.Count = int32(len(out.Items))
	if limit < len(matched) && limit > 0 {
		last := matched[limit-1]
		lek := map[string]types.AttributeValue{schema.PartitionKey: last[schema.PartitionKey]}
		lek[idx.PartitionKey] = last[idx.PartitionKey]
		if idx.SortKey != "" {
			lek[idx.SortKey] = last[idx.SortKey]
		}
		out.LastEvaluatedKey = lek
	}
	return out, nil
}

func (m *MemoryDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	unlock, injected := m.enter("TransactWriteItems")
	defer unlock()
	if injected != nil {
		return nil, injected
	}
	type write struct {
		table, pk string
		item      map[string]types.AttributeValue
	}
	var writes []write
	// one reason per item, in order, as DynamoDB reports them
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	canceled := false
	for i, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			return nil, errors.New("only Put is supported in transactions")
		}
		schema, err := m.schema(p.TableName)
		if err != nil {
			return nil, err
		}
		pk := scalar(p.Item[schema.PartitionKey])
		reasons[i].Code = awsString("None")
		if p.ConditionExpression != nil && !evalCondition(m.tables[schema.Name][pk], *p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
			reasons[i].Code = awsString("ConditionalCheckFailed")
			canceled = true
		}
		writes = append(writes, write{table: schema.Name, pk: pk, item: p.Item})
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             awsString("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		m.tables[w.table][w.pk] = copyItem(w.item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func evalCondition(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, disjunct := range strings.Split(expr, " OR ") {
		if evalConjunction(item, disjunct, names, values) {
			return true
		}
	}
	return false
}

func evalConjunction(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists("):
			name := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if _, ok := item[name]; ok {
				return false
			}
		case strings.HasPrefix(clause, "attribute_exists("):
			name := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if _, ok := item[name]; !ok {
				return false
			}
		case strings.Contains(clause, " <> "):
			left, right, _ := strings.Cut(clause, " <> ")
			got, ok := item[resolveName(strings.TrimSpace(left), names)]
			if ok && typed(got) == typed(values[strings.TrimSpace(right)]) {
				return false
			}
		case strings.Contains(clause, " < "):
			left, right, _ := strings.Cut(clause, " < ")
			got, ok := item[resolveName(strings.TrimSpace(left), names)]
			if !ok || sortValue(got) >= sortValue(values[strings.TrimSpace(right)]) {
				return false
			}
		case strings.Contains(clause, " = "):
			left, right, _ := strings.Cut(clause, " = ")
			got, ok := item[resolveName(strings.TrimSpace(left), names)]
			if !ok || typed(got) != typed(values[strings.TrimSpace(right)]) {
				return false
			}
		default:
			panic(fmt.Sprintf("testutil: unsupported condition clause %q", clause))
		}
	}
	return true
}

func applySet(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, assignment := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		left, right, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("bad assignment %q", assignment)
		}
		v, ok := values[strings.TrimSpace(right)]
		if !ok {
			return fmt.Errorf("missing value %s", strings.TrimSpace(right))
		}
		item[resolveName(strings.TrimSpace(left), names)] = v
	}
	return nil
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		return names[name]
	}
	return name
}

func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func typed(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberBOOL:
		return "BOOL:" + strconv.FormatBool(v.Value)
	case nil:
		return ""
	}
	return fmt.Sprintf("%T", av)
}

func sortValue(av types.AttributeValue) float64 {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		f, _ := strconv.ParseFloat(n.Value, 64)
		return f
	}
	return 0
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func awsString(s string) *string { return &s }
