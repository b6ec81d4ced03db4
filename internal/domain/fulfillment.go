package domain

import "time"

// FulfillmentStep names the stage a fulfilment stopped at.
type FulfillmentStep string

const (
	StepFetchProduct FulfillmentStep = "fetch_product"
	StepDecrypt      FulfillmentStep = "decrypt"
	StepSendEmail    FulfillmentStep = "send_email"
	StepMarkSold     FulfillmentStep = "mark_sold"
)

const (
	FailureOpen      = "open"
	FailureRetrying  = "retrying"
	FailureAbandoned = "abandoned"
)

// FulfillmentFailure queues a paid order whose delivery did not finish.
// Key: order_code.
type FulfillmentFailure struct {
	OrderCode   string          `json:"orderCode" dynamodbav:"order_code"`
	OrderID     string          `json:"orderId" dynamodbav:"order_id"`
	ProductCode string          `json:"productCode" dynamodbav:"product_code"`
	ProductID   string          `json:"productId" dynamodbav:"product_id"`
	ProductName string          `json:"productName" dynamodbav:"product_name"`
	Email       string          `json:"email" dynamodbav:"email"`
	Amount      int64           `json:"amount" dynamodbav:"amount"`
	Step        FulfillmentStep `json:"step" dynamodbav:"step"`
	LastError   string          `json:"lastError" dynamodbav:"last_error"`
	Attempts    int             `json:"attempts" dynamodbav:"attempts"`
	Status      string          `json:"status" dynamodbav:"status"`
	CreatedAt   time.Time       `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" dynamodbav:"updated_at"`
}

// Order rebuilds enough of the paid order to rerun delivery.
func (f *FulfillmentFailure) Order() *Order {
	return &Order{
		OrderID:     f.OrderID,
		OrderCode:   f.OrderCode,
		ProductCode: f.ProductCode,
		ProductID:   f.ProductID,
		ProductName: f.ProductName,
		Email:       f.Email,
		Amount:      f.Amount,
		Status:      OrderCompleted,
	}
}
