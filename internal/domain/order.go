package domain

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

const (
	PaymentMethodBankTransfer = "bank_transfer"
	GatewayManual             = "manual"
)

// Order is a purchase of one product. Key: order_id; order_code is the
// human-facing reference and is unique.
type Order struct {
	OrderID       string      `json:"orderId" dynamodbav:"order_id"`
	OrderCode     string      `json:"orderCode" dynamodbav:"order_code"`
	ProductCode   string      `json:"productCode" dynamodbav:"product_code"`
	ProductID     string      `json:"productId" dynamodbav:"product_id"`
	ProductName   string      `json:"productName" dynamodbav:"product_name"`
	Email         string      `json:"email" dynamodbav:"email"`
	Amount        int64       `json:"amount" dynamodbav:"amount"`
	Status        OrderStatus `json:"status" dynamodbav:"status"`
	PaymentMethod string      `json:"paymentMethod" dynamodbav:"payment_method"`
	CreatedAt     time.Time   `json:"createdAt" dynamodbav:"created_at"`
	ExpiresAt     time.Time   `json:"expiresAt" dynamodbav:"expires_at"`
	PaidAt        *time.Time  `json:"paidAt,omitempty" dynamodbav:"paid_at,omitempty"`
	TransactionID *string     `json:"transactionId,omitempty" dynamodbav:"transaction_id,omitempty"`
	Gateway       string      `json:"gateway,omitempty" dynamodbav:"gateway,omitempty"`
}

// Expired reports whether a pending order has outlived its payment window.
// Nothing ever writes this state; it is derived at read time.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == OrderPending && now.After(o.ExpiresAt)
}

// BankInfo tells the buyer where to transfer and which reference to use.
type BankInfo struct {
	BankName    string `json:"bankName"`
	AccountName string `json:"accountName"`
	AccountNo   string `json:"accountNo"`
	Amount      int64  `json:"amount"`
	Content     string `json:"content"`
}
