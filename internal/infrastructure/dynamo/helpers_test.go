package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]any{"status": "completed"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "status"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]any{
		"status":         "completed",
		"gateway":        "sepay",
		"transaction_id": "tx1",
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)

	// gateway < status < transaction_id
	assert.Equal(t, "gateway", ue1.Names["#f0"])
	assert.Equal(t, "status", ue1.Names["#f1"])
	assert.Equal(t, "transaction_id", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]any{"verified": true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]any{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestConditionExpr_ExistsOnly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]any{"attempts": 1})
	require.NoError(t, err)
	cond, err := ue.conditionExpr("email", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "attribute_exists(#pk)", cond)
	assert.Equal(t, "email", ue.Names["#pk"])
	_, hasC := ue.Values[":c"]
	assert.False(t, hasC)
}

func TestConditionExpr_FieldEquals(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]any{"status": "completed"})
	require.NoError(t, err)
	cond, err := ue.conditionExpr("order_id", "status", "pending")
	require.NoError(t, err)
	assert.Equal(t, "attribute_exists(#pk) AND #c = :c", cond)
	assert.Equal(t, "status", ue.Names["#c"])
	s, ok := ue.Values[":c"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "pending", s.Value)
}

func TestProjectionExpr(t *testing.T) {
	names := map[string]string{}
	expr := projectionExpr([]string{"product_id", "name"}, names)
	assert.Equal(t, "#p0, #p1", expr)
	assert.Equal(t, map[string]string{"#p0": "product_id", "#p1": "name"}, names)
}
