package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/shopacc-api/internal/config"
)

const defaultTimeout = 30 * time.Second

// Mailer sends HTML emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	timeout  time.Duration
	send     sendFunc
}

func NewMailer(cfg *config.Config) Mailer {
	m := &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		timeout:  cfg.SMTPTimeout,
	}
	m.send = m.deliver
	return m
}

func (m *mailer) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	addr := net.JoinHostPort(m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	timeout := m.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.send(ctx, addr, auth, m.from, []string{to}, buildMessage(m.from, to, subject, htmlBody)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// deliver is smtp.SendMail with a context: the dial honours ctx, the
// connection deadline follows ctx's deadline, and cancelling ctx closes
// the connection.
func (m *mailer) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return wrapCtx(ctx, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return wrapCtx(ctx, err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return wrapCtx(ctx, err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return wrapCtx(ctx, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return wrapCtx(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return wrapCtx(ctx, err)
	}
	if _, err := w.Write(msg); err != nil {
		return wrapCtx(ctx, err)
	}
	if err := w.Close(); err != nil {
		return wrapCtx(ctx, err)
	}
	return wrapCtx(ctx, c.Quit())
}

// wrapCtx reports the context error alongside an I/O error caused by the
// deadline or cancellation.
func wrapCtx(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
