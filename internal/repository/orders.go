package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
)

// OrderRepo stores orders keyed by order_id with an order_code GSI.
type OrderRepo struct {
	store docstore.Store
}

func NewOrderRepo(store docstore.Store) *OrderRepo { return &OrderRepo{store: store} }

func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	return translate("put", "order", r.store.Put(ctx, docstore.Orders, o))
}

func (r *OrderRepo) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	var orders []domain.Order
	if err := r.store.QueryEqual(ctx, docstore.Orders, "order_code", code, &orders, docstore.Limit(1)); err != nil {
		return nil, translate("query", "order", err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s not found: %w", code, domain.ErrNotFound)
	}
	return &orders[0], nil
}

func (r *OrderRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var orders []domain.Order
	err := r.store.QueryEqual(ctx, docstore.Orders, "order_code", code, &orders,
		docstore.Project("order_id"), docstore.Limit(1))
	if err != nil {
		return false, translate("query", "order code", err)
	}
	return len(orders) > 0, nil
}

// CompletePending moves a pending order to completed. Exactly one caller can
// win; the others get ErrConcurrentUpdate.
func (r *OrderRepo) CompletePending(ctx context.Context, orderID string, paidAt time.Time, transactionID *string, gateway string) error {
	err := r.store.UpdateIf(ctx, docstore.Orders, orderID,
		docstore.Eq("status", string(domain.OrderPending)),
		map[string]any{
			"status":         string(domain.OrderCompleted),
			"paid_at":        paidAt,
			"transaction_id": transactionID,
			"gateway":        gateway,
		})
	return translate("complete", "order", err)
}
