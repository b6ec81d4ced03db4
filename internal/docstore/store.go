// Package docstore defines the document store contract shared by the
// DynamoDB and in-memory backends.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrConditionFailed = errors.New("condition not met")
)

// Collection names a group of documents with a common key attribute.
type Collection string

const (
	OTPs                Collection = "otps"
	Users               Collection = "users"
	Products            Collection = "products"
	Orders              Collection = "orders"
	FulfillmentFailures Collection = "fulfillment_failures"
)

// Collections lists every collection the service uses.
var Collections = []Collection{OTPs, Users, Products, Orders, FulfillmentFailures}

var keyAttrs = map[Collection]string{
	OTPs:                "email",
	Users:               "user_id",
	Products:            "product_id",
	Orders:              "order_id",
	FulfillmentFailures: "order_code",
}

// Indexed lists the non-key attributes each collection can be queried by
// without a scan.
var Indexed = map[Collection][]string{
	Users:    {"email"},
	Products: {"product_code"},
	Orders:   {"order_code"},
}

// KeyAttr returns the primary key attribute of a collection.
func KeyAttr(c Collection) string { return keyAttrs[c] }

// Condition guards a write: the stored Field must equal Value.
type Condition struct {
	Field string
	Value any
}

func Eq(field string, value any) Condition { return Condition{Field: field, Value: value} }

// Store is the document store. Documents are structs tagged with dynamodbav;
// the collection's key attribute must be one of their fields.
type Store interface {
	// Get loads the document with key into out. Returns ErrNotFound if absent.
	Get(ctx context.Context, c Collection, key string, out any, opts ...ReadOption) error
	// Put creates or replaces a document.
	Put(ctx context.Context, c Collection, doc any) error
	// Update sets fields on an existing document. Returns ErrNotFound if absent.
	Update(ctx context.Context, c Collection, key string, fields map[string]any) error
	// UpdateIf is Update guarded by cond; returns ErrConditionFailed when the
	// stored value differs. The check and write are atomic.
	UpdateIf(ctx context.Context, c Collection, key string, cond Condition, fields map[string]any) error
	Delete(ctx context.Context, c Collection, key string) error
	// DeleteIf removes the document only while cond holds. Returns
	// ErrNotFound if absent and ErrConditionFailed when the stored value
	// differs.
	DeleteIf(ctx context.Context, c Collection, key string, cond Condition) error
	// QueryEqual loads every document whose field equals value into out,
	// which must point to a slice.
	QueryEqual(ctx context.Context, c Collection, field string, value any, out any, opts ...ReadOption) error
	// List loads every document of a collection into out.
	List(ctx context.Context, c Collection, out any, opts ...ReadOption) error
}

// ReadOptions narrows a read.
type ReadOptions struct {
	Fields []string // projection; empty reads whole documents
	Limit  int      // 0 means no limit
}

type ReadOption func(*ReadOptions)

// Project restricts a read to the named attributes.
func Project(fields ...string) ReadOption {
	return func(o *ReadOptions) { o.Fields = append(o.Fields, fields...) }
}

// Limit caps the number of documents returned.
func Limit(n int) ReadOption {
	return func(o *ReadOptions) { o.Limit = n }
}

// Apply folds opts into a ReadOptions value.
func Apply(opts []ReadOption) ReadOptions {
	var o ReadOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
