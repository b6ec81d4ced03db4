package domain

import "time"

const (
	ProductTypeAvailable = "available"

	ProductInStock    = "in_stock"
	ProductOutOfStock = "out_of_stock"
)

// GameAccount holds ciphertexts only. Both fields are encrypted with the key
// version named by EncryptionKeyID.
type GameAccount struct {
	Username        string `json:"username" dynamodbav:"username"`
	Password        string `json:"password" dynamodbav:"password"`
	EncryptionKeyID string `json:"encryptionKeyId" dynamodbav:"encryption_key_id"`
}

// Product is the full catalogue document. Key: product_id.
type Product struct {
	ProductID   string       `json:"productId" dynamodbav:"product_id"`
	ProductCode string       `json:"productCode" dynamodbav:"product_code"`
	Name        string       `json:"name" dynamodbav:"name"`
	Price       int64        `json:"price" dynamodbav:"price"`
	Type        string       `json:"type" dynamodbav:"type"`
	Status      string       `json:"status" dynamodbav:"status"`
	ImageURL    string       `json:"imageUrl,omitempty" dynamodbav:"image_url,omitempty"`
	Description string       `json:"description,omitempty" dynamodbav:"description,omitempty"`
	GameAccount *GameAccount `json:"gameAccount,omitempty" dynamodbav:"game_account,omitempty"`
	CreatedBy   string       `json:"createdBy,omitempty" dynamodbav:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" dynamodbav:"updated_at"`
}

// ProductSnapshot is the credential-free view of a product. It has no field
// for the credential blob, so it cannot leak one.
type ProductSnapshot struct {
	ProductID   string `json:"productId" dynamodbav:"product_id"`
	ProductCode string `json:"productCode" dynamodbav:"product_code"`
	Name        string `json:"name" dynamodbav:"name"`
	Price       int64  `json:"price" dynamodbav:"price"`
	Type        string `json:"type" dynamodbav:"type"`
	Status      string `json:"status" dynamodbav:"status"`
	ImageURL    string `json:"imageUrl,omitempty" dynamodbav:"image_url,omitempty"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
}

// SnapshotFields lists the stored attributes a snapshot read may touch.
var SnapshotFields = []string{
	"product_id", "product_code", "name", "price", "type", "status", "image_url", "description",
}

// Available reports whether the product can be ordered.
func (p ProductSnapshot) Available() bool {
	return p.Type == ProductTypeAvailable && p.Status == ProductInStock
}

type CreateProductRequest struct {
	ProductCode string       `json:"productCode" validate:"required"`
	Name        string       `json:"name" validate:"required"`
	Price       int64        `json:"price" validate:"required,gt=0"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	ImageURL    string       `json:"imageUrl"`
	Description string       `json:"description"`
	GameAccount *GameAccount `json:"gameAccount"`
}

type UpdateProductRequest struct {
	ProductCode *string      `json:"productCode"`
	Name        *string      `json:"name"`
	Price       *int64       `json:"price" validate:"omitempty,gt=0"`
	Type        *string      `json:"type"`
	Status      *string      `json:"status"`
	ImageURL    *string      `json:"imageUrl"`
	Description *string      `json:"description"`
	GameAccount *GameAccount `json:"gameAccount"`
}
