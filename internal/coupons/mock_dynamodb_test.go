package coupons

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableMock is a small in-memory coupons table. It understands exactly the
// condition and update expressions issued by Store.
type tableMock struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	order    []string
	pageSize int
}

func newTableMock() *tableMock {
	return &tableMock{items: map[string]map[string]types.AttributeValue{}, pageSize: 2}
}

func keyOf(m map[string]types.AttributeValue) (string, error) {
	v, ok := m["code"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing code key")
	}
	return v.Value, nil
}

func num(item map[string]types.AttributeValue, name string) (int64, bool) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	return n, err == nil
}

func boolean(item map[string]types.AttributeValue, name string) bool {
	v, ok := item[name].(*types.AttributeValueMemberBOOL)
	return ok && v.Value
}

func live(item map[string]types.AttributeValue, now int64) bool {
	start, _ := num(item, "start_date")
	end, _ := num(item, "end_date")
	return boolean(item, "is_active") && start <= now && end >= now
}

func (m *tableMock) put(k string, item map[string]types.AttributeValue) {
	if _, exists := m.items[k]; !exists {
		m.order = append(m.order, k)
	}
	m.items[k] = item
}

func (m *tableMock) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	if in.ConditionExpression != nil && *in.ConditionExpression == condNotExists {
		if _, exists := m.items[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.put(k, in.Item)
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

// applyUpdate evaluates cond against the stored item and applies expr.
func (m *tableMock) applyUpdate(key map[string]types.AttributeValue, expr, cond string, vals map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	k, err := keyOf(key)
	if err != nil {
		return nil, err
	}
	item, exists := m.items[k]

	switch cond {
	case condExists:
		if !exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case condRelease:
		used, _ := num(item, "used_count")
		if !exists || used <= 0 {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case condRedeem:
		now, _ := num(vals, ":now")
		if !exists || !live(item, now) {
			return nil, &types.ConditionalCheckFailedException{}
		}
		if limit, ok := num(item, "usage_limit"); ok {
			if used, _ := num(item, "used_count"); used >= limit {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	default:
		return nil, fmt.Errorf("unexpected condition %q", cond)
	}

	switch expr {
	case "SET is_active = :a":
		item["is_active"] = vals[":a"]
	case "ADD used_count :one", "ADD used_count :neg":
		delta := int64(1)
		if expr == "ADD used_count :neg" {
			delta = -1
		}
		used, _ := num(item, "used_count")
		item["used_count"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(used+delta, 10)}
	default:
		return nil, fmt.Errorf("unexpected update %q", expr)
	}
	return item, nil
}

func (m *tableMock) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.applyUpdate(in.Key, *in.UpdateExpression, *in.ConditionExpression, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
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

func (m *tableMock) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("query not supported on coupons table")
}

// Scan pages through items in insertion order. Like DynamoDB, the filter
// is applied after the page is read, so pages may come back short.
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
		item := m.items[k]
		if in.FilterExpression != nil && *in.FilterExpression == filterActive {
			now, _ := num(in.ExpressionAttributeValues, ":now")
			if !live(item, now) {
				continue
			}
		}
		out.Items = append(out.Items, item)
	}
	if end < len(m.order) {
		out.LastEvaluatedKey = codeKey(m.order[end-1])
	}
	return out, nil
}

// TransactWriteItems applies Update entries all-or-nothing.
func (m *tableMock) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := map[string]map[string]types.AttributeValue{}
	for k, v := range m.items {
		cp := map[string]types.AttributeValue{}
		for a, av := range v {
			cp[a] = av
		}
		snapshot[k] = cp
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		u := it.Update
		if u == nil {
			return nil, errors.New("only updates are supported")
		}
		if _, err := m.applyUpdate(u.Key, *u.UpdateExpression, *u.ConditionExpression, u.ExpressionAttributeValues); err != nil {
			var cf *types.ConditionalCheckFailedException
			if !errors.As(err, &cf) {
				return nil, err
			}
			reasons[i].Code = awsString("ConditionalCheckFailed")
			failed = true
			continue
		}
		reasons[i].Code = awsString("None")
	}
	if failed {
		m.items = snapshot
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
