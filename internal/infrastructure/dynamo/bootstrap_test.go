package dynamo

import (
	"testing"

	"github.com/shopacc-api/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableInput_OrdersHasCodeIndex(t *testing.T) {
	in := tableInput("orders", docstore.Orders)

	assert.Equal(t, "orders", *in.TableName)
	require.Len(t, in.KeySchema, 1)
	assert.Equal(t, "order_id", *in.KeySchema[0].AttributeName)
	require.Len(t, in.GlobalSecondaryIndexes, 1)
	assert.Equal(t, "order_code-index", *in.GlobalSecondaryIndexes[0].IndexName)
	assert.Len(t, in.AttributeDefinitions, 2)
}

func TestTableInput_OTPsKeyedByEmail(t *testing.T) {
	in := tableInput("otps", docstore.OTPs)

	assert.Equal(t, "email", *in.KeySchema[0].AttributeName)
	assert.Empty(t, in.GlobalSecondaryIndexes)
}

func TestGSI_WithSortKey(t *testing.T) {
	g := gsi("a-b-index", "a", "b")
	require.Len(t, g.KeySchema, 2)
	assert.Equal(t, "b", *g.KeySchema[1].AttributeName)
}
