package repository

import (
	"context"
	"time"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
)

// FailureRepo is the queue of paid orders whose delivery did not finish.
type FailureRepo struct {
	store docstore.Store
}

func NewFailureRepo(store docstore.Store) *FailureRepo { return &FailureRepo{store: store} }

func (r *FailureRepo) Get(ctx context.Context, orderCode string) (*domain.FulfillmentFailure, error) {
	var f domain.FulfillmentFailure
	if err := r.store.Get(ctx, docstore.FulfillmentFailures, orderCode, &f); err != nil {
		return nil, translate("get", "fulfillment failure", err)
	}
	return &f, nil
}

func (r *FailureRepo) Put(ctx context.Context, f *domain.FulfillmentFailure) error {
	return translate("put", "fulfillment failure", r.store.Put(ctx, docstore.FulfillmentFailures, f))
}

// Claim marks the failure as being retried and counts the attempt, but only
// if attempts still holds the value the caller read. Losing the race
// returns ErrConcurrentUpdate.
func (r *FailureRepo) Claim(ctx context.Context, orderCode string, observedAttempts int, at time.Time) error {
	err := r.store.UpdateIf(ctx, docstore.FulfillmentFailures, orderCode, docstore.Eq("attempts", observedAttempts),
		map[string]any{
			"attempts":   observedAttempts + 1,
			"status":     domain.FailureRetrying,
			"updated_at": at,
		})
	return translate("claim", "fulfillment failure", err)
}

func (r *FailureRepo) Delete(ctx context.Context, orderCode string) error {
	return translate("delete", "fulfillment failure", r.store.Delete(ctx, docstore.FulfillmentFailures, orderCode))
}

func (r *FailureRepo) List(ctx context.Context) ([]domain.FulfillmentFailure, error) {
	var fs []domain.FulfillmentFailure
	if err := r.store.List(ctx, docstore.FulfillmentFailures, &fs); err != nil {
		return nil, translate("list", "fulfillment failures", err)
	}
	return fs, nil
}
