package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
)

const (
	ordersTable      = "orders"
	couponsTable     = "coupons"
	idempotencyTable = "idempotency"

	// condTestRedeem is the condition issued by fakeRedeemer.
	condTestRedeem = "is_active = true AND used_count < usage_limit"
)

// mockDynamo keeps orders, coupons and idempotency items in memory:
// table -> pk -> item. It evaluates only the conditions this package issues.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{
		ordersTable:      {},
		couponsTable:     {},
		idempotencyTable: {},
	}}
}

// keyNames is the partition key attribute of each table. Idempotency
// records also carry order_id, so the key must be chosen by table.
var keyNames = map[string]string{
	ordersTable:      "order_id",
	couponsTable:     "code",
	idempotencyTable: "idempotency_key",
}

func pkOf(table string, item map[string]types.AttributeValue) (string, error) {
	name, ok := keyNames[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value, nil
	}
	return "", fmt.Errorf("%s: missing key attribute %s", table, name)
}

func str(item map[string]types.AttributeValue, name string) string {
	v, _ := item[name].(*types.AttributeValueMemberS)
	if v == nil {
		return ""
	}
	return v.Value
}

func num(item map[string]types.AttributeValue, name string) int64 {
	v, _ := item[name].(*types.AttributeValueMemberN)
	if v == nil {
		return 0
	}
	n, _ := strconv.ParseInt(v.Value, 10, 64)
	return n
}

func (m *mockDynamo) seed(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, _ := pkOf(table, item)
	m.tables[table][pk] = item
}

func (m *mockDynamo) item(table, pk string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][pk]
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return nil, errors.New("orders are only written through TransactWriteItems")
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: m.tables[*in.TableName][pk]}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.tables[*in.TableName][pk]
	vals := in.ExpressionAttributeValues

	switch *in.ConditionExpression {
	case condUpdatable:
		s := str(item, "status")
		if !exists || s == str(vals, ":cancelled") || s == str(vals, ":delivered") {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case condPending:
		if !exists || str(item, "status") != str(vals, ":pending") {
			return nil, &types.ConditionalCheckFailedException{}
		}
	default:
		return nil, fmt.Errorf("unexpected condition %q", *in.ConditionExpression)
	}

	updated := make(map[string]types.AttributeValue, len(item)+1)
	for k, v := range item {
		updated[k] = v
	}
	updated["status"] = vals[":new"]
	updated["updated_at"] = vals[":ua"]
	if r, ok := vals[":r"]; ok {
		updated["cancel_reason"] = r
	}
	m.tables[*in.TableName][pk] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	return nil, errors.New("delete not supported")
}

// Query serves the user index in created_at descending order.
func (m *mockDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.IndexName == nil || *in.IndexName != UserIndex {
		return nil, errors.New("query requires the user index")
	}
	email := str(in.ExpressionAttributeValues, ":e")

	var out []map[string]types.AttributeValue
	for _, item := range m.tables[*in.TableName] {
		if str(item, "user_email") == email {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return str(out[i], "created_at") > str(out[j], "created_at") })
	return &dyn.QueryOutput{Items: out}, nil
}

// Scan returns one item per page to exercise pagination.
func (m *mockDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.tables[*in.TableName]))
	for k := range m.tables[*in.TableName] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		last, err := pkOf(*in.TableName, in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, last) + 1
	}
	if start >= len(keys) {
		return &dyn.ScanOutput{}, nil
	}
	item := m.tables[*in.TableName][keys[start]]
	out := &dyn.ScanOutput{Items: []map[string]types.AttributeValue{item}}
	if start+1 < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: keys[start]},
		}
	}
	return out, nil
}

// TransactWriteItems checks every condition before applying anything and
// reports per-item CancellationReasons like DynamoDB does.
func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		ok, err := m.check(ti)
		if err != nil {
			return nil, err
		}
		code := "None"
		if !ok {
			code = "ConditionalCheckFailed"
			failed = true
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			pk, _ := pkOf(*ti.Put.TableName, ti.Put.Item)
			m.tables[*ti.Put.TableName][pk] = ti.Put.Item
		case ti.Update != nil:
			pk, _ := pkOf(*ti.Update.TableName, ti.Update.Key)
			item := m.tables[*ti.Update.TableName][pk]
			item["used_count"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(num(item, "used_count")+1, 10)}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *mockDynamo) check(ti types.TransactWriteItem) (bool, error) {
	switch {
	case ti.Put != nil:
		pk, err := pkOf(*ti.Put.TableName, ti.Put.Item)
		if err != nil {
			return false, err
		}
		existing, exists := m.tables[*ti.Put.TableName][pk]
		switch *ti.Put.ConditionExpression {
		case condCreate:
			return !exists, nil
		case idempotency.ClaimCondition:
			vals := ti.Put.ExpressionAttributeValues
			return !exists ||
				str(existing, "status") == str(vals, ":failed") ||
				num(existing, "expires_at") < num(vals, ":now"), nil
		}
		return false, fmt.Errorf("unexpected put condition %q", *ti.Put.ConditionExpression)
	case ti.Update != nil:
		if *ti.Update.ConditionExpression != condTestRedeem {
			return false, fmt.Errorf("unexpected update condition %q", *ti.Update.ConditionExpression)
		}
		pk, err := pkOf(*ti.Update.TableName, ti.Update.Key)
		if err != nil {
			return false, err
		}
		item, exists := m.tables[*ti.Update.TableName][pk]
		active, _ := item["is_active"].(*types.AttributeValueMemberBOOL)
		return exists && active != nil && active.Value && num(item, "used_count") < num(item, "usage_limit"), nil
	}
	return false, errors.New("unsupported transact item")
}
