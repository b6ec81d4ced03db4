package dynamo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// updateExpr is a SET expression with its placeholder maps.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET
// expression. Fields are numbered in sorted order so output is stable.
func buildUpdateExpr(updates map[string]any) (*updateExpr, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ue := &updateExpr{
		Names:  make(map[string]string, len(keys)),
		Values: make(map[string]types.AttributeValue, len(keys)),
	}
	parts := make([]string, 0, len(keys))
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(updates[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		ue.Names[nameKey] = k
		ue.Values[valueKey] = av
		parts = append(parts, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	ue.Expr = "SET " + strings.Join(parts, ", ")
	return ue, nil
}

// conditionExpr requires the item to exist and, when condField is set, the
// stored condField to equal condValue.
func (ue *updateExpr) conditionExpr(keyAttr, condField string, condValue any) (string, error) {
	ue.Names["#pk"] = keyAttr
	expr := "attribute_exists(#pk)"
	if condField == "" {
		return expr, nil
	}
	av, err := attributevalue.Marshal(condValue)
	if err != nil {
		return "", fmt.Errorf("marshal condition %s: %w", condField, err)
	}
	ue.Names["#c"] = condField
	ue.Values[":c"] = av
	return expr + " AND #c = :c", nil
}

// projectionExpr turns attribute names into a ProjectionExpression.
func projectionExpr(fields []string, names map[string]string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		ph := fmt.Sprintf("#p%d", i)
		names[ph] = f
		parts[i] = ph
	}
	return strings.Join(parts, ", ")
}

func nilIfEmpty[V any](m map[string]V) map[string]V {
	if len(m) == 0 {
		return nil
	}
	return m
}
