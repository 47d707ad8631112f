package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableMock is an in-memory payments table that understands the
// expressions issued by Store.
type tableMock struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	order    []string
	pageSize int
}

func newTableMock() *tableMock {
	return &tableMock{items: map[string]map[string]types.AttributeValue{}, pageSize: 2}
}

func str(m map[string]types.AttributeValue, name string) string {
	v, _ := m[name].(*types.AttributeValueMemberS)
	if v == nil {
		return ""
	}
	return v.Value
}

func keyOf(m map[string]types.AttributeValue) (string, error) {
	k := str(m, "payment_id")
	if k == "" {
		return "", errors.New("missing payment_id key")
	}
	return k, nil
}

func (m *tableMock) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	if _, exists := m.items[k]; exists && *in.ConditionExpression == condCreate {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if _, exists := m.items[k]; !exists {
		m.order = append(m.order, k)
	}
	m.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *tableMock) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: m.items[k]}, nil
}

func (m *tableMock) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	if *in.ConditionExpression != condPending {
		return nil, fmt.Errorf("unexpected condition %q", *in.ConditionExpression)
	}
	item, exists := m.items[k]
	vals := in.ExpressionAttributeValues
	if !exists || str(item, "status") != str(vals, ":pending") {
		return nil, &types.ConditionalCheckFailedException{}
	}

	item["status"] = vals[":new"]
	item["updated_at"] = vals[":ua"]
	if strings.Contains(*in.UpdateExpression, "transaction_id = :tx") {
		item["transaction_id"] = vals[":tx"]
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *tableMock) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	if _, exists := m.items[k]; !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(m.items, k)
	for i, o := range m.order {
		if o == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return &dyn.DeleteItemOutput{}, nil
}

// Query serves the order index in a single page.
func (m *tableMock) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.IndexName == nil || *in.IndexName != OrderIndex {
		return nil, errors.New("query requires the order index")
	}
	orderID := str(in.ExpressionAttributeValues, ":o")
	out := &dyn.QueryOutput{}
	for _, k := range m.order {
		if str(m.items[k], "order_id") == orderID {
			out.Items = append(out.Items, m.items[k])
		}
	}
	return out, nil
}

// Scan pages through items in insertion order.
func (m *tableMock) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if in.ExclusiveStartKey != nil {
		k, err := keyOf(in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, o := range m.order {
			if o == k {
				start = i + 1
			}
		}
	}
	end := start + m.pageSize
	if end > len(m.order) {
		end = len(m.order)
	}

	out := &dyn.ScanOutput{}
	for _, k := range m.order[start:end] {
		out.Items = append(out.Items, m.items[k])
	}
	if end < len(m.order) {
		out.LastEvaluatedKey = paymentKey(m.order[end-1])
	}
	return out, nil
}

func (m *tableMock) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("payments are not written transactionally")
}
