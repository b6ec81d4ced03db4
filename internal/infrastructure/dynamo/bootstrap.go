package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/docstore"
	"go.uber.org/zap"
)

// Bootstrap creates every collection table and its GSIs if missing.
// Safe to call on every startup: existing tables are skipped.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables, logger *zap.Logger) {
	names := tableMap(tables)
	for _, c := range docstore.Collections {
		createTable(ctx, client, tableInput(names[c], c), logger)
	}
}

// tableInput derives a table definition from the collection's key and
// indexed fields. Every key attribute is a string.
func tableInput(tableName string, c docstore.Collection) *dynamodb.CreateTableInput {
	key := docstore.KeyAttr(c)
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
		},
	}
	for _, field := range docstore.Indexed[c] {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(field), AttributeType: types.ScalarAttributeTypeS,
		})
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, gsi(field+"-index", field, ""))
	}
	return in
}

// gsi builds a GSI descriptor. If sortKey is empty, only a hash key is added.
func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput, logger *zap.Logger) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			logger.Warn("could not create table", zap.String("table", *input.TableName), zap.Error(err))
		}
		return
	}
	logger.Info("created table", zap.String("table", *input.TableName))
}
