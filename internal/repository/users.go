package repository

import (
	"context"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
)

// UserRepo reads accounts created by the account-finalization flow.
type UserRepo struct {
	store docstore.Store
}

func NewUserRepo(store docstore.Store) *UserRepo { return &UserRepo{store: store} }

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	if err := r.store.Get(ctx, docstore.Users, userID, &u); err != nil {
		return nil, translate("get", "user", err)
	}
	return &u, nil
}

// ExistsByEmail uses the email-index GSI.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var users []domain.User
	err := r.store.QueryEqual(ctx, docstore.Users, "email", email, &users,
		docstore.Project("user_id"), docstore.Limit(1))
	if err != nil {
		return false, translate("query", "users by email", err)
	}
	return len(users) > 0, nil
}

func (r *UserRepo) Put(ctx context.Context, u *domain.User) error {
	return translate("put", "user", r.store.Put(ctx, docstore.Users, u))
}
