// Package product is the catalogue. Buyer-facing reads go through Snapshot,
// which never touches the credential blob; owner reads return everything.
package product

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/pkg/credcrypt"
	"github.com/shopacc-api/internal/pkg/id"
	"github.com/shopacc-api/internal/pkg/logging"
	"github.com/shopacc-api/internal/pkg/validate"
	"go.uber.org/zap"
)

type Service interface {
	Snapshot(ctx context.Context, code string) (*domain.ProductSnapshot, error)
	IsAvailable(p *domain.ProductSnapshot) bool

	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, productID string) (*domain.Product, error)
	GetByCode(ctx context.Context, code string) (*domain.Product, error)
	Create(ctx context.Context, ownerID string, req domain.CreateProductRequest) (*domain.Product, error)
	Update(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error)
	Delete(ctx context.Context, productID string) (*domain.Product, error)
}

// ProductStore is satisfied by *repository.ProductRepo.
type ProductStore interface {
	GetSnapshot(ctx context.Context, code string) (*domain.ProductSnapshot, error)
	GetByCode(ctx context.Context, code string) (*domain.Product, error)
	Get(ctx context.Context, productID string) (*domain.Product, error)
	IDsByCode(ctx context.Context, code string) ([]string, error)
	List(ctx context.Context) ([]domain.Product, error)
	Put(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, productID string, fields map[string]any) error
	Delete(ctx context.Context, productID string) error
}

type Encrypter interface {
	Encrypt(plaintext, keyID string) (string, error)
}

type ServiceDeps struct {
	ProductRepo ProductStore
	Cipher      Encrypter
	Logger      *zap.Logger
	Now         func() time.Time
}

type service struct {
	products ProductStore
	cipher   Encrypter
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(d ServiceDeps) Service {
	s := &service{products: d.ProductRepo, cipher: d.Cipher, logger: d.Logger, now: d.Now}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Snapshot(ctx context.Context, code string) (*domain.ProductSnapshot, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrMissingFields
	}
	p, err := s.products.GetSnapshot(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProductNotFound
	}
	return p, err
}

func (s *service) IsAvailable(p *domain.ProductSnapshot) bool {
	return p != nil && p.Available()
}

func (s *service) List(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

func (s *service) Get(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := s.products.Get(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProductNotFound
	}
	return p, err
}

func (s *service) GetByCode(ctx context.Context, code string) (*domain.Product, error) {
	p, err := s.products.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProductNotFound
	}
	return p, err
}

func (s *service) Create(ctx context.Context, ownerID string, req domain.CreateProductRequest) (*domain.Product, error) {
	req.ProductCode = strings.TrimSpace(req.ProductCode)
	if err := validate.Struct(req); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	if err := s.ensureCodeFree(ctx, req.ProductCode, ""); err != nil {
		return nil, err
	}
	account, err := s.sealAccount(req.GameAccount)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &domain.Product{
		ProductID:   id.At(now),
		ProductCode: req.ProductCode,
		Name:        req.Name,
		Price:       req.Price,
		Type:        orDefault(req.Type, domain.ProductTypeAvailable),
		Status:      orDefault(req.Status, domain.ProductInStock),
		ImageURL:    req.ImageURL,
		Description: req.Description,
		GameAccount: account,
		CreatedBy:   ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Put(ctx, p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("product created",
		zap.String("product_id", p.ProductID), zap.String("product_code", p.ProductCode), zap.String("owner", ownerID))
	return p, nil
}

func (s *service) Update(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error) {
	if err := validate.Struct(req); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	if _, err := s.Get(ctx, productID); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.ProductCode != nil {
		code := strings.TrimSpace(*req.ProductCode)
		if code == "" {
			return nil, domain.Invalid("productCode must not be empty")
		}
		if err := s.ensureCodeFree(ctx, code, productID); err != nil {
			return nil, err
		}
		fields["product_code"] = code
	}
	setIf(fields, "name", req.Name)
	setIf(fields, "price", req.Price)
	setIf(fields, "type", req.Type)
	setIf(fields, "status", req.Status)
	setIf(fields, "image_url", req.ImageURL)
	setIf(fields, "description", req.Description)
	if req.GameAccount != nil {
		account, err := s.sealAccount(req.GameAccount)
		if err != nil {
			return nil, err
		}
		fields["game_account"] = account
	}
	fields["updated_at"] = s.now().UTC()

	if err := s.products.Update(ctx, productID, fields); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("product updated", zap.String("product_id", productID))
	return s.Get(ctx, productID)
}

func (s *service) Delete(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("product deleted",
		zap.String("product_id", productID), zap.String("product_code", p.ProductCode))
	return p, nil
}

// ensureCodeFree fails when a product other than self already uses code.
func (s *service) ensureCodeFree(ctx context.Context, code, self string) error {
	ids, err := s.products.IDsByCode(ctx, code)
	if err != nil {
		return err
	}
	for _, other := range ids {
		if other != self {
			return domain.ErrProductCodeTaken
		}
	}
	return nil
}

// sealAccount encrypts plaintext credentials. Accounts that already name a
// key version were encrypted by the caller and are stored as given.
func (s *service) sealAccount(a *domain.GameAccount) (*domain.GameAccount, error) {
	if a == nil || a.EncryptionKeyID != "" {
		return a, nil
	}
	if a.Username == "" || a.Password == "" {
		return nil, domain.Invalid("gameAccount requires username and password")
	}
	if s.cipher == nil {
		return nil, domain.Upstream("encrypt credentials", credcrypt.ErrNoSecret)
	}
	user, err := s.cipher.Encrypt(a.Username, credcrypt.CurrentKey)
	if err != nil {
		return nil, domain.Upstream("encrypt credentials", err)
	}
	pass, err := s.cipher.Encrypt(a.Password, credcrypt.CurrentKey)
	if err != nil {
		return nil, domain.Upstream("encrypt credentials", err)
	}
	return &domain.GameAccount{Username: user, Password: pass, EncryptionKeyID: credcrypt.CurrentKey}, nil
}

func setIf[T any](fields map[string]any, name string, v *T) {
	if v != nil {
		fields[name] = *v
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
