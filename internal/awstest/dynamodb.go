// Package awstest provides in-memory stand-ins for the AWS service
// interfaces so store packages can be tested without the real SDK clients.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB is an in-memory fake that understands the condition and update
// expressions issued by the stores in this module. It is not a general
// DynamoDB implementation.
type DynamoDB struct {
	mu sync.Mutex
	// table name -> primary key attribute
	keys map[string]string
	// table name -> pk value -> item
	tables map[string]map[string]map[string]types.AttributeValue
}

// NewDynamoDB creates a fake with the given table -> primary-key-attribute map.
func NewDynamoDB(keys map[string]string) *DynamoDB {
	tables := make(map[string]map[string]map[string]types.AttributeValue, len(keys))
	for t := range keys {
		tables[t] = map[string]map[string]types.AttributeValue{}
	}
	return &DynamoDB{keys: keys, tables: tables}
}

// Item returns the raw stored item, for test assertions.
func (d *DynamoDB) Item(table, pk string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables[table][pk]
}

// Seed stores an item directly, bypassing conditions.
func (d *DynamoDB) Seed(table, pk string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[table][pk] = item
}

func (d *DynamoDB) pkOf(table string, attrs map[string]types.AttributeValue) (string, error) {
	keyAttr, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	v, ok := attrs[keyAttr]
	if !ok {
		return "", fmt.Errorf("missing key attribute %q for table %q", keyAttr, table)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("key attribute %q is not a string", keyAttr)
	}
	return s.Value, nil
}

func (d *DynamoDB) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	pk, err := d.pkOf(table, params.Item)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	d.tables[table][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *DynamoDB) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	pk, err := d.pkOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *DynamoDB) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	pk, err := d.pkOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := d.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	var old map[string]types.AttributeValue
	if exists {
		old = copyItem(item)
	} else {
		// DynamoDB upserts on update when no condition prevents it
		item = map[string]types.AttributeValue{}
		for k, v := range params.Key {
			item[k] = v
		}
		d.tables[table][pk] = item
	}
	if params.UpdateExpression != nil {
		if err := applyUpdate(*params.UpdateExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	out := &dyn.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllOld:
		out.Attributes = old
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(item)
	}
	return out, nil
}

func (d *DynamoDB) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	pk, err := d.pkOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	item := d.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(d.tables[table], pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (d *DynamoDB) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	items := make([]map[string]types.AttributeValue, 0, len(d.tables[table]))
	for _, it := range d.tables[table] {
		items = append(items, copyItem(it))
	}
	count := int32(len(items))
	return &dyn.ScanOutput{Items: items, Count: count}, nil
}

func (d *DynamoDB) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// check every condition before applying anything
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		table := *p.TableName
		pk, err := d.pkOf(table, p.Item)
		if err != nil {
			return nil, err
		}
		if p.ConditionExpression != nil {
			ok, err := evalCondition(*p.ConditionExpression, d.tables[table][pk], p.ExpressionAttributeNames, p.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		table := *p.TableName
		pk, _ := d.pkOf(table, p.Item)
		d.tables[table][pk] = copyItem(p.Item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// --- expression evaluation ---

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if real, ok := names[name]; ok {
			return real
		}
	}
	return name
}

func numOf(v types.AttributeValue) (float64, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	return f, err == nil
}

func formatNum(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// evalCondition supports the forms issued by this module's stores:
// attribute_exists(a), attribute_not_exists(a), a = :v, a <> :v,
// a > :v, a >= :v, size(a) > :v, joined by AND / OR (no parentheses).
func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, orTerm := range strings.Split(expr, " OR ") {
		all := true
		for _, term := range strings.Split(orTerm, " AND ") {
			ok, err := evalTerm(strings.TrimSpace(term), item, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if strings.HasPrefix(term, "attribute_exists(") {
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(term, "attribute_exists("), ")"), names)
		if item == nil {
			return false, nil
		}
		_, ok := item[attr]
		return ok, nil
	}
	if strings.HasPrefix(term, "attribute_not_exists(") {
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(term, "attribute_not_exists("), ")"), names)
		if item == nil {
			return true, nil
		}
		_, ok := item[attr]
		return !ok, nil
	}
	for _, op := range []string{" <> ", " >= ", " > ", " = "} {
		idx := strings.Index(term, op)
		if idx < 0 {
			continue
		}
		lhs := strings.TrimSpace(term[:idx])
		rhs := strings.TrimSpace(term[idx+len(op):])
		val, ok := values[rhs]
		if !ok {
			return false, fmt.Errorf("unbound value %q in condition %q", rhs, term)
		}
		var cur types.AttributeValue
		if strings.HasPrefix(lhs, "size(") {
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(lhs, "size("), ")"), names)
			if item == nil {
				return false, nil
			}
			l, ok := item[attr].(*types.AttributeValueMemberL)
			if !ok {
				return false, nil
			}
			cur = &types.AttributeValueMemberN{Value: strconv.Itoa(len(l.Value))}
		} else {
			if item == nil {
				return false, nil
			}
			cur = item[resolveName(lhs, names)]
			if cur == nil {
				return false, nil
			}
		}
		return compare(cur, val, strings.TrimSpace(op))
	}
	return false, fmt.Errorf("unsupported condition term %q", term)
}

func compare(a, b types.AttributeValue, op string) (bool, error) {
	if an, aok := numOf(a); aok {
		bn, bok := numOf(b)
		if !bok {
			return false, errors.New("type mismatch in numeric comparison")
		}
		switch op {
		case "=":
			return an == bn, nil
		case "<>":
			return an != bn, nil
		case ">":
			return an > bn, nil
		case ">=":
			return an >= bn, nil
		}
	}
	as, aok := a.(*types.AttributeValueMemberS)
	bs, bok := b.(*types.AttributeValueMemberS)
	if aok && bok {
		switch op {
		case "=":
			return as.Value == bs.Value, nil
		case "<>":
			return as.Value != bs.Value, nil
		}
	}
	ab, aok := a.(*types.AttributeValueMemberBOOL)
	bb, bok := b.(*types.AttributeValueMemberBOOL)
	if aok && bok {
		switch op {
		case "=":
			return ab.Value == bb.Value, nil
		case "<>":
			return ab.Value != bb.Value, nil
		}
	}
	return false, fmt.Errorf("unsupported comparison %q", op)
}

// applyUpdate supports SET clauses of the forms
// a = :v | a = a + :v | a = a - :v | a = if_not_exists(a, :z) + :v |
// a = list_append(a, :v), and REMOVE a[0].
func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	rest := expr
	for rest != "" {
		var clause string
		if i := strings.Index(rest, "REMOVE "); i > 0 {
			clause, rest = strings.TrimSpace(rest[:i]), rest[i:]
		} else {
			clause, rest = strings.TrimSpace(rest), ""
		}
		switch {
		case strings.HasPrefix(clause, "SET "):
			for _, assign := range splitTopLevel(strings.TrimPrefix(clause, "SET "), ',') {
				if err := applyAssign(strings.TrimSpace(assign), item, names, values); err != nil {
					return err
				}
			}
		case strings.HasPrefix(clause, "REMOVE "):
			target := strings.TrimSpace(strings.TrimPrefix(clause, "REMOVE "))
			if !strings.HasSuffix(target, "[0]") {
				return fmt.Errorf("unsupported REMOVE target %q", target)
			}
			attr := resolveName(strings.TrimSuffix(target, "[0]"), names)
			l, ok := item[attr].(*types.AttributeValueMemberL)
			if !ok || len(l.Value) == 0 {
				return fmt.Errorf("REMOVE %s[0] on empty or missing list", attr)
			}
			item[attr] = &types.AttributeValueMemberL{Value: l.Value[1:]}
		default:
			return fmt.Errorf("unsupported update clause %q", clause)
		}
	}
	return nil
}

// splitTopLevel splits s on sep, ignoring separators inside parentheses so
// function-call arguments like list_append(a, :v) stay in one piece.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func applyAssign(assign string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	parts := strings.SplitN(assign, " = ", 2)
	if len(parts) != 2 {
		return fmt.Errorf("unsupported assignment %q", assign)
	}
	attr := resolveName(strings.TrimSpace(parts[0]), names)
	rhs := strings.TrimSpace(parts[1])

	if strings.HasPrefix(rhs, "list_append(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(rhs, "list_append("), ")")
		args := strings.SplitN(inner, ",", 2)
		src := resolveName(strings.TrimSpace(args[0]), names)
		app, ok := values[strings.TrimSpace(args[1])].(*types.AttributeValueMemberL)
		if !ok {
			return fmt.Errorf("list_append value in %q is not a list", assign)
		}
		cur, _ := item[src].(*types.AttributeValueMemberL)
		var merged []types.AttributeValue
		if cur != nil {
			merged = append(merged, cur.Value...)
		}
		merged = append(merged, app.Value...)
		item[attr] = &types.AttributeValueMemberL{Value: merged}
		return nil
	}

	// arithmetic: <operand> (+|-) :v
	for _, op := range []string{" + ", " - "} {
		idx := strings.Index(rhs, op)
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(rhs[:idx])
		right := strings.TrimSpace(rhs[idx+len(op):])
		var base float64
		if strings.HasPrefix(left, "if_not_exists(") {
			inner := strings.TrimSuffix(strings.TrimPrefix(left, "if_not_exists("), ")")
			args := strings.SplitN(inner, ",", 2)
			src := resolveName(strings.TrimSpace(args[0]), names)
			if cur, ok := numOf(item[src]); ok {
				base = cur
			} else if dflt, ok := numOf(values[strings.TrimSpace(args[1])]); ok {
				base = dflt
			} else {
				return fmt.Errorf("unresolvable if_not_exists in %q", assign)
			}
		} else {
			cur, ok := numOf(item[resolveName(left, names)])
			if !ok {
				return fmt.Errorf("non-numeric operand %q in %q", left, assign)
			}
			base = cur
		}
		delta, ok := numOf(values[right])
		if !ok {
			return fmt.Errorf("unbound numeric value %q in %q", right, assign)
		}
		if op == " - " {
			delta = -delta
		}
		item[attr] = &types.AttributeValueMemberN{Value: formatNum(base + delta)}
		return nil
	}

	val, ok := values[rhs]
	if !ok {
		return fmt.Errorf("unbound value %q in %q", rhs, assign)
	}
	item[attr] = val
	return nil
}
