package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory idempotency table for unit tests.
// It evaluates ClaimCondition and applies the SET expressions used by Store.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numberAttr(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

// claimable mirrors ClaimCondition for the stored item (nil when absent).
func claimable(existing, values map[string]types.AttributeValue) bool {
	if existing == nil {
		return true
	}
	if stringAttr(existing, "status") == stringAttr(values, ":failed") {
		return true
	}
	return numberAttr(existing, "expires_at") < numberAttr(values, ":now")
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	k := stringAttr(params.Item, "idempotency_key")
	if k == "" {
		return nil, errors.New("missing key")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == ClaimCondition {
		if !claimable(m.table[k], params.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k := stringAttr(params.Key, "idempotency_key")
	if k == "" {
		return nil, errors.New("missing key")
	}
	return &dyn.GetItemOutput{Item: m.table[k]}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k := stringAttr(params.Key, "idempotency_key")
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	set := map[string]string{
		":rb": "response_body", ":rs": "response_status", ":ua": "updated_at",
		":done": "status", ":failed": "status", ":n": "note", ":exp": "expires_at",
	}
	for placeholder, attr := range set {
		if v, ok := params.ExpressionAttributeValues[placeholder]; ok {
			item[attr] = v
		}
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, stringAttr(params.Key, "idempotency_key"))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("query not supported")
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("scan not supported")
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			return nil, errors.New("only puts are supported")
		}
		if !claimable(m.table[stringAttr(p.Item, "idempotency_key")], p.ExpressionAttributeValues) {
			return nil, &types.TransactionCanceledException{}
		}
	}
	for _, it := range params.TransactItems {
		m.table[stringAttr(it.Put.Item, "idempotency_key")] = it.Put.Item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
