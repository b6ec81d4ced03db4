package order

import (
	"fmt"
	"net/url"

	"github.com/shopacc-api/internal/domain"
)

// PaymentAccount describes the receiving bank account shown to buyers.
type PaymentAccount struct {
	QRBaseURL   string
	AccountNo   string
	BankCode    string
	BankName    string
	AccountName string
}

// QRCodeURL builds the SePay QR image URL. The gateway matches the
// transfer to the order by the des parameter.
func (a PaymentAccount) QRCodeURL(amount int64, orderCode string) string {
	return fmt.Sprintf("%s?acc=%s&bank=%s&amount=%d&des=%s&template=compact",
		a.QRBaseURL,
		url.QueryEscape(a.AccountNo),
		url.QueryEscape(a.BankCode),
		amount,
		url.QueryEscape(orderCode),
	)
}

func (a PaymentAccount) BankInfo(amount int64, orderCode string) domain.BankInfo {
	return domain.BankInfo{
		BankName:    a.BankName,
		AccountName: a.AccountName,
		AccountNo:   a.AccountNo,
		Amount:      amount,
		Content:     orderCode,
	}
}
