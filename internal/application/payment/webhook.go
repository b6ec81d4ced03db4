package payment

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// WebhookPayload is the SePay transaction callback body.
type WebhookPayload struct {
	ID              FlexString `json:"id"`
	Gateway         string     `json:"gateway"`
	TransactionDate string     `json:"transactionDate"`
	AccountNumber   string     `json:"accountNumber"`
	Code            string     `json:"code"`
	Content         string     `json:"content"`
	TransferType    string     `json:"transferType"`
	TransferAmount  int64      `json:"transferAmount"`
	Accumulated     int64      `json:"accumulated"`
	SubAccount      string     `json:"subAccount"`
	ReferenceCode   string     `json:"referenceCode"`
	Description     string     `json:"description"`
}

// FlexString accepts a JSON string or number. SePay sends transaction ids as
// numbers; manual callers tend to send strings.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

const transferOut = "out"

var orderCodePattern = regexp.MustCompile(`ORD\d{7}`)

// OrderCode is the explicit code when the gateway parsed one, otherwise the
// first order code found in the transfer content or description.
func (p *WebhookPayload) OrderCode() string {
	if code := strings.TrimSpace(p.Code); code != "" {
		return code
	}
	for _, text := range []string{p.Content, p.Description} {
		if m := orderCodePattern.FindString(strings.ToUpper(text)); m != "" {
			return m
		}
	}
	return ""
}
