package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
)

// ProductRepo is the product catalogue. Reads through GetSnapshot never
// request the game_account attribute.
type ProductRepo struct {
	store docstore.Store
}

func NewProductRepo(store docstore.Store) *ProductRepo { return &ProductRepo{store: store} }

// GetSnapshot loads the credential-free view by product code.
func (r *ProductRepo) GetSnapshot(ctx context.Context, code string) (*domain.ProductSnapshot, error) {
	var snaps []domain.ProductSnapshot
	err := r.store.QueryEqual(ctx, docstore.Products, "product_code", code, &snaps,
		docstore.Project(domain.SnapshotFields...), docstore.Limit(1))
	if err != nil {
		return nil, translate("query", "product snapshot", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("product %s not found: %w", code, domain.ErrNotFound)
	}
	return &snaps[0], nil
}

// GetByCode loads the full document, credentials included.
func (r *ProductRepo) GetByCode(ctx context.Context, code string) (*domain.Product, error) {
	var products []domain.Product
	err := r.store.QueryEqual(ctx, docstore.Products, "product_code", code, &products, docstore.Limit(1))
	if err != nil {
		return nil, translate("query", "product", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %s not found: %w", code, domain.ErrNotFound)
	}
	return &products[0], nil
}

func (r *ProductRepo) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	if err := r.store.Get(ctx, docstore.Products, productID, &p); err != nil {
		return nil, translate("get", "product", err)
	}
	return &p, nil
}

// IDsByCode returns the ids of every product carrying code.
func (r *ProductRepo) IDsByCode(ctx context.Context, code string) ([]string, error) {
	var products []domain.Product
	err := r.store.QueryEqual(ctx, docstore.Products, "product_code", code, &products,
		docstore.Project("product_id"))
	if err != nil {
		return nil, translate("query", "product ids", err)
	}
	ids := make([]string, len(products))
	for i := range products {
		ids[i] = products[i].ProductID
	}
	return ids, nil
}

func (r *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := r.store.List(ctx, docstore.Products, &products); err != nil {
		return nil, translate("list", "products", err)
	}
	return products, nil
}

func (r *ProductRepo) Put(ctx context.Context, p *domain.Product) error {
	return translate("put", "product", r.store.Put(ctx, docstore.Products, p))
}

func (r *ProductRepo) Update(ctx context.Context, productID string, fields map[string]any) error {
	return translate("update", "product", r.store.Update(ctx, docstore.Products, productID, fields))
}

func (r *ProductRepo) UpdateStatus(ctx context.Context, productID, status string, at time.Time) error {
	return r.Update(ctx, productID, map[string]any{"status": status, "updated_at": at})
}

func (r *ProductRepo) Delete(ctx context.Context, productID string) error {
	return translate("delete", "product", r.store.Delete(ctx, docstore.Products, productID))
}
