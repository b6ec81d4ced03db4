package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/domain"
	jwtinfra "github.com/shopacc-api/internal/infrastructure/jwt"
	"github.com/shopacc-api/internal/infrastructure/memory"
	transporthttp "github.com/shopacc-api/internal/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testConfig() *config.Config {
	return &config.Config{
		StoreDriver:      DriverMemory,
		ShopName:         "Test Shop",
		CredentialSecret: "s3cret-key",
		AllowedOrigins:   []string{"*"},
		RateLimitRPS:     1000,
		RateLimitBurst:   1000,
		Payment: config.Payment{
			QRBaseURL: "https://qr.example.com/img",
			AccountNo: "9612345678",
			BankCode:  "BIDV",
			BankName:  "BIDV",
		},
	}
}

type testServer struct {
	t      *testing.T
	app    *App
	mailer *recordingMailer
	srv    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mailer := &recordingMailer{}
	a, err := New(context.Background(), testConfig(), nil, Options{Store: memory.New(), Mailer: mailer})
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	a.Tokens = jwtinfra.NewProviderFromKeys(key, nil, time.Hour)

	router, stop := transporthttp.NewRouter(a.Config, a.RouterDeps())
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		stop()
	})
	return &testServer{t: t, app: a, mailer: mailer, srv: srv}
}

func (s *testServer) do(method, path, token, body string) (int, map[string]any) {
	s.t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func dataField(t *testing.T, env map[string]any, key string) any {
	t.Helper()
	data, ok := env["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", env)
	return data[key]
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.app.Users.Put(ctx, &domain.User{UserID: "owner-1", Email: "owner@example.com", Role: domain.RoleOwner}))
	token, err := s.app.Tokens.Sign("owner-1", "owner@example.com", domain.RoleOwner)
	require.NoError(t, err)

	status, env := s.do(http.MethodPost, "/api/products", token,
		`{"productCode":"ACC1","name":"Acc1","price":100000,"gameAccount":{"username":"gamer_one","password":"P@ssw0rd!"}}`)
	require.Equal(t, http.StatusCreated, status, env)

	stored, err := s.app.Products.GetByCode(ctx, "ACC1")
	require.NoError(t, err)
	assert.NotEqual(t, "P@ssw0rd!", stored.GameAccount.Password)

	status, env = s.do(http.MethodGet, "/api/products/ACC1", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, dataField(t, env, "available"))
	assert.Nil(t, dataField(t, env, "gameAccount"))

	status, env = s.do(http.MethodPost, "/api/orders", "", `{"productCode":"ACC1","email":"buyer@example.com","amount":"100000"}`)
	require.Equal(t, http.StatusCreated, status, env)
	code, _ := dataField(t, env, "orderCode").(string)
	require.Regexp(t, `^ORD\d{7}$`, code)
	assert.Contains(t, dataField(t, env, "qrCode"), "des="+code)

	webhook := `{"id":92704,"gateway":"BIDV","transferType":"in","transferAmount":100000,"content":"thanh toan ` + code + `"}`
	status, env = s.do(http.MethodPost, "/api/payment-webhook", "", webhook)
	require.Equal(t, http.StatusOK, status, env)
	assert.Equal(t, "payment confirmed", env["message"])

	mail := s.mailer.last(t)
	assert.Equal(t, "buyer@example.com", mail.to)
	assert.Contains(t, mail.body, "gamer_one")
	assert.Contains(t, mail.body, "P@ssw0rd!")

	status, env = s.do(http.MethodPost, "/api/payment-webhook", "", webhook)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "order already processed", env["message"])
	assert.Equal(t, 1, s.mailer.count())

	status, env = s.do(http.MethodGet, "/api/orders/"+code, "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", dataField(t, env, "status"))
	assert.Equal(t, "BIDV", dataField(t, env, "gateway"))
	assert.Equal(t, "92704", dataField(t, env, "transactionId"))

	status, env = s.do(http.MethodGet, "/api/products/ACC1", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, dataField(t, env, "available"))

	status, _ = s.do(http.MethodPost, "/api/orders", "", `{"productCode":"ACC1","email":"late@example.com","amount":100000}`)
	assert.Equal(t, http.StatusConflict, status)
}

var otpInMail = regexp.MustCompile(`>(\d{6})<`)

func TestRegistrationFlow(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/auth/register", "", `{"email":"new@example.com","username":"newbie"}`)
	require.Equal(t, http.StatusOK, status, env)
	assert.Equal(t, false, dataField(t, env, "isResend"))

	m := otpInMail.FindStringSubmatch(s.mailer.last(t).body)
	require.Len(t, m, 2)

	status, env = s.do(http.MethodPost, "/api/auth/complete-registration", "", `{"email":"new@example.com"}`)
	assert.Equal(t, http.StatusConflict, status, env)

	status, env = s.do(http.MethodPost, "/api/auth/verify-otp", "", `{"email":"new@example.com","otp":"`+m[1]+`"}`)
	require.Equal(t, http.StatusOK, status, env)
	assert.Equal(t, "newbie", dataField(t, env, "username"))

	status, env = s.do(http.MethodGet, "/api/auth/check-verification?email=new@example.com", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, dataField(t, env, "verified"))

	status, env = s.do(http.MethodPost, "/api/auth/complete-registration", "", `{"email":"new@example.com"}`)
	require.Equal(t, http.StatusOK, status, env)

	status, env = s.do(http.MethodPost, "/api/auth/register", "", `{"email":"new@example.com","username":"newbie"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_REGISTERED", env["code"])
}

func TestOwnerRoutes_RoleFromAccount(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.app.Users.Put(ctx, &domain.User{UserID: "u1", Email: "u1@example.com", Role: domain.RoleUser}))
	forged, err := s.app.Tokens.Sign("u1", "u1@example.com", domain.RoleOwner)
	require.NoError(t, err)

	status, env := s.do(http.MethodGet, "/api/products/credentials", forged, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env["code"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", dataField(t, env, "status"))

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "postgres"
	_, err := New(context.Background(), cfg, nil, Options{})
	assert.ErrorContains(t, err, "postgres")
}
