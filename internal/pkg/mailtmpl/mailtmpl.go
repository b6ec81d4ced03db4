// Package mailtmpl renders the HTML emails the shop sends.
package mailtmpl

import (
	"bytes"
	"fmt"
	"html/template"
)

type OTPData struct {
	ShopName       string
	Username       string
	Code           string
	ExpiresMinutes int
}

type GameAccountData struct {
	ShopName    string
	OrderCode   string
	ProductName string
	Amount      int64
	Username    string
	Password    string
}

var (
	otpTmpl = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; background:#fdf2f8; padding:24px;">
<div style="max-width:560px; margin:0 auto; background:#fff; border-radius:12px; padding:32px;">
<h2 style="color:#ec4899; margin-top:0;">Hello {{.Username}}!</h2>
<p>Use this code to verify your email at {{.ShopName}}:</p>
<p style="font-size:32px; font-weight:bold; letter-spacing:8px; text-align:center; color:#1f2937;">{{.Code}}</p>
<p>The code expires in {{.ExpiresMinutes}} minutes. If you did not request it, ignore this email.</p>
</div></body></html>`))

	accountTmpl = template.Must(template.New("account").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; background:#fdf2f8; padding:24px;">
<div style="max-width:560px; margin:0 auto; background:#fff; border-radius:12px; padding:32px;">
<h2 style="color:#ec4899; margin-top:0;">Thank you for your purchase!</h2>
<h3 style="color:#1f2937;">Order details</h3>
<table style="width:100%; border-collapse:collapse;">
<tr><td>Order code</td><td><strong>{{.OrderCode}}</strong></td></tr>
<tr><td>Product</td><td>{{.ProductName}}</td></tr>
<tr><td>Amount</td><td>{{.Amount}}</td></tr>
</table>
<h3 style="color:#92400e;">Game account</h3>
<div style="background:#fef3c7; border-radius:8px; padding:16px;">
<p>Username: <code>{{.Username}}</code></p>
<p>Password: <code>{{.Password}}</code></p>
</div>
<p>Change the password after your first login and keep these credentials private.</p>
<p style="color:#ec4899;">{{.ShopName}}</p>
</div></body></html>`))
)

// OTP renders the verification email.
func OTP(d OTPData) (subject, body string, err error) {
	body, err = render(otpTmpl, d)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Your %s verification code", d.ShopName), body, nil
}

// GameAccount renders the credential delivery email.
func GameAccount(d GameAccountData) (subject, body string, err error) {
	body, err = render(accountTmpl, d)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Your game account - Order %s | %s", d.OrderCode, d.ShopName), body, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
