package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQRCodeURL(t *testing.T) {
	a := PaymentAccount{QRBaseURL: "https://qr.sepay.vn/img", AccountNo: "96247ABC", BankCode: "BIDV"}
	assert.Equal(t,
		"https://qr.sepay.vn/img?acc=96247ABC&bank=BIDV&amount=100000&des=ORD1234567&template=compact",
		a.QRCodeURL(100000, "ORD1234567"))
}

func TestQRCodeURL_EscapesValues(t *testing.T) {
	a := PaymentAccount{QRBaseURL: "https://qr", AccountNo: "a b", BankCode: "x&y"}
	assert.Equal(t, "https://qr?acc=a+b&bank=x%26y&amount=1&des=ORD1&template=compact", a.QRCodeURL(1, "ORD1"))
}

func TestBankInfo(t *testing.T) {
	a := PaymentAccount{BankName: "BIDV", AccountName: "Sepay VA", AccountNo: "123"}
	info := a.BankInfo(5000, "ORD7654321")
	assert.Equal(t, "BIDV", info.BankName)
	assert.Equal(t, "Sepay VA", info.AccountName)
	assert.Equal(t, "123", info.AccountNo)
	assert.Equal(t, int64(5000), info.Amount)
	assert.Equal(t, "ORD7654321", info.Content)
}
