package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/docstore"
)

// Store implements docstore.Store on DynamoDB, one table per collection.
// Indexed fields are queried through "<field>-index" GSIs.
type Store struct {
	client *dynamodb.Client
	tables map[docstore.Collection]string
}

var _ docstore.Store = (*Store)(nil)

func NewStore(client *dynamodb.Client, tables config.DynamoTables) *Store {
	return &Store{client: client, tables: tableMap(tables)}
}

func tableMap(t config.DynamoTables) map[docstore.Collection]string {
	return map[docstore.Collection]string{
		docstore.OTPs:                t.OTPs,
		docstore.Users:               t.Users,
		docstore.Products:            t.Products,
		docstore.Orders:              t.Orders,
		docstore.FulfillmentFailures: t.FulfillmentFailures,
	}
}

func (s *Store) table(c docstore.Collection) (*string, error) {
	name, ok := s.tables[c]
	if !ok || name == "" {
		return nil, fmt.Errorf("no table configured for collection %q", c)
	}
	return aws.String(name), nil
}

func (s *Store) Get(ctx context.Context, c docstore.Collection, key string, out any, opts ...docstore.ReadOption) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	ro := docstore.Apply(opts)
	in := &dynamodb.GetItemInput{
		TableName:      table,
		Key:            strKey(docstore.KeyAttr(c), key),
		ConsistentRead: aws.Bool(true),
	}
	if len(ro.Fields) > 0 {
		names := map[string]string{}
		in.ProjectionExpression = aws.String(projectionExpr(ro.Fields, names))
		in.ExpressionAttributeNames = names
	}
	res, err := s.client.GetItem(ctx, in)
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", c, key, err)
	}
	if res.Item == nil {
		return docstore.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", c, err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, c docstore.Collection, doc any) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c, err)
	}
	if _, ok := item[docstore.KeyAttr(c)]; !ok {
		return fmt.Errorf("put %s: document has no %s", c, docstore.KeyAttr(c))
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: table,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", c, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, c docstore.Collection, key string, fields map[string]any) error {
	return s.update(ctx, c, key, nil, fields)
}

func (s *Store) UpdateIf(ctx context.Context, c docstore.Collection, key string, cond docstore.Condition, fields map[string]any) error {
	return s.update(ctx, c, key, &cond, fields)
}

func (s *Store) update(ctx context.Context, c docstore.Collection, key string, cond *docstore.Condition, fields map[string]any) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	ue, err := buildUpdateExpr(fields)
	if err != nil {
		return err
	}
	var condExpr string
	if cond != nil {
		condExpr, err = ue.conditionExpr(docstore.KeyAttr(c), cond.Field, cond.Value)
	} else {
		condExpr, err = ue.conditionExpr(docstore.KeyAttr(c), "", nil)
	}
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           table,
		Key:                                 strKey(docstore.KeyAttr(c), key),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(condExpr),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	return conditionalErr("update", c, key, err)
}

// conditionalErr maps a failed conditional write onto the docstore errors.
func conditionalErr(op string, c docstore.Collection, key string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		// No old item means the key does not exist.
		if len(ccf.Item) == 0 {
			return docstore.ErrNotFound
		}
		return docstore.ErrConditionFailed
	}
	return fmt.Errorf("%s %s/%s: %w", op, c, key, err)
}

func (s *Store) Delete(ctx context.Context, c docstore.Collection, key string) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: table,
		Key:       strKey(docstore.KeyAttr(c), key),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, key, err)
	}
	return nil
}

func (s *Store) DeleteIf(ctx context.Context, c docstore.Collection, key string, cond docstore.Condition) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	ue := &updateExpr{Names: map[string]string{}, Values: map[string]types.AttributeValue{}}
	condExpr, err := ue.conditionExpr(docstore.KeyAttr(c), cond.Field, cond.Value)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                           table,
		Key:                                 strKey(docstore.KeyAttr(c), key),
		ConditionExpression:                 aws.String(condExpr),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	return conditionalErr("delete", c, key, err)
}

// QueryEqual queries the table for key lookups, the field's GSI when one
// exists, and falls back to a filtered scan otherwise.
func (s *Store) QueryEqual(ctx context.Context, c docstore.Collection, field string, value any, out any, opts ...docstore.ReadOption) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	ro := docstore.Apply(opts)
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", field, err)
	}
	names := map[string]string{"#q": field}
	values := map[string]types.AttributeValue{":q": av}
	var projection *string
	if len(ro.Fields) > 0 {
		projection = aws.String(projectionExpr(ro.Fields, names))
	}

	if field != docstore.KeyAttr(c) && !slices.Contains(docstore.Indexed[c], field) {
		return s.scan(ctx, c, &dynamodb.ScanInput{
			TableName:                 table,
			FilterExpression:          aws.String("#q = :q"),
			ProjectionExpression:      projection,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}, ro.Limit, out)
	}

	in := &dynamodb.QueryInput{
		TableName:                 table,
		KeyConditionExpression:    aws.String("#q = :q"),
		ProjectionExpression:      projection,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if field != docstore.KeyAttr(c) {
		in.IndexName = aws.String(field + "-index")
	}
	if ro.Limit > 0 {
		in.Limit = aws.Int32(int32(ro.Limit))
	}

	var items []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query %s by %s: %w", c, field, err)
		}
		items = append(items, page.Items...)
		if ro.Limit > 0 && len(items) >= ro.Limit {
			items = items[:ro.Limit]
			break
		}
	}
	return unmarshalList(c, items, out)
}

func (s *Store) List(ctx context.Context, c docstore.Collection, out any, opts ...docstore.ReadOption) error {
	table, err := s.table(c)
	if err != nil {
		return err
	}
	ro := docstore.Apply(opts)
	in := &dynamodb.ScanInput{TableName: table}
	if len(ro.Fields) > 0 {
		names := map[string]string{}
		in.ProjectionExpression = aws.String(projectionExpr(ro.Fields, names))
		in.ExpressionAttributeNames = names
	}
	return s.scan(ctx, c, in, ro.Limit, out)
}

func (s *Store) scan(ctx context.Context, c docstore.Collection, in *dynamodb.ScanInput, limit int, out any) error {
	in.ExpressionAttributeNames = nilIfEmpty(in.ExpressionAttributeNames)
	var items []map[string]types.AttributeValue
	p := dynamodb.NewScanPaginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", c, err)
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= limit {
			items = items[:limit]
			break
		}
	}
	return unmarshalList(c, items, out)
}

func unmarshalList(c docstore.Collection, items []map[string]types.AttributeValue, out any) error {
	if items == nil {
		items = []map[string]types.AttributeValue{}
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", c, err)
	}
	return nil
}
