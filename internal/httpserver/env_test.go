package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avolkov/market-api/internal/config"
	"github.com/avolkov/market-api/internal/db"
	authmw "github.com/avolkov/market-api/internal/middleware/auth"
	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/payment"
	"github.com/avolkov/market-api/internal/repo"
	"github.com/avolkov/market-api/internal/service"
)

const testWebhookSecret = "whsec_test_secret"

var testDBSeq int64

type fakeCheckout struct {
	mu    sync.Mutex
	calls int
	url   string
}

func (f *fakeCheckout) CreateCheckoutSession(context.Context, uint, []payment.LineItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.url, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Send(_, to, _ string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	T        *testing.T
	E        *echo.Echo
	DB       *gorm.DB
	Repo     *repo.GormRepo
	Cfg      *config.Config
	Checkout *fakeCheckout
	Mailer   *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:http_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := &config.Config{
		UsersPerPage:            10,
		ProductsPerPage:         10,
		AccessExpirationMinutes: 15,
		RefreshExpirationDays:   7,
		RefreshTokenInCookie:    true,
		AdminEmail:              "admin@example.com",
	}

	gormRepo := repo.New(gdb)
	authSvc := &service.AuthService{
		Repo:       gormRepo,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}
	checkout := &fakeCheckout{url: "https://pay.example.com/session/cs_test_1"}
	cartSvc := &service.CartService{
		Repo:     gormRepo,
		Checkout: checkout,
		Currency: "usd",
	}
	verifier := payment.NewClient(&config.Stripe{
		BaseAPIURL:    "https://api.stripe.com",
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
	}, "http://localhost/success", "http://localhost/fail")
	mailer := &fakeNotifier{}
	webhookSvc := &service.WebhookService{
		Repo:       gormRepo,
		Verifier:   verifier,
		Mailer:     mailer,
		AdminEmail: cfg.AdminEmail,
	}

	e := echo.New()
	Register(e, &Deps{
		Tokens:   &TokenHandler{Auth: authSvc, Cfg: cfg},
		Users:    &UserHandler{Auth: authSvc, Repo: gormRepo, Cfg: cfg},
		Products: &ProductHandler{Repo: gormRepo, Cfg: cfg, Index: "products"},
		Carts:    &CartHandler{Svc: cartSvc},
		Webhook:  &WebhookHandler{Svc: webhookSvc},
		AuthMW:   &authmw.TokenMiddleware{Auth: authSvc, AdminEmail: cfg.AdminEmail},
	})

	return &testEnv{
		T:        t,
		E:        e,
		DB:       gdb,
		Repo:     gormRepo,
		Cfg:      cfg,
		Checkout: checkout,
		Mailer:   mailer,
	}
}

type reqOption func(*http.Request)

func withBearer(token string) reqOption {
	return func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
}

func withBasicAuth(username, password string) reqOption {
	return func(r *http.Request) {
		r.SetBasicAuth(username, password)
	}
}

func withCookie(ck *http.Cookie) reqOption {
	return func(r *http.Request) {
		r.AddCookie(ck)
	}
}

func withHeader(key, value string) reqOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// do drives a request through the real router, middleware included.
func (env *testEnv) do(method, path string, body interface{}, opts ...reqOption) *httptest.ResponseRecorder {
	env.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) doRaw(method, path string, body []byte, opts ...reqOption) *httptest.ResponseRecorder {
	env.T.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (env *testEnv) registerUser(username, email, password string) {
	env.T.Helper()

	rec := env.do(http.MethodPost, "/api/v1/users", map[string]string{
		"username": username,
		"name":     username,
		"email":    email,
		"password": password,
	})
	require.Equal(env.T, http.StatusCreated, rec.Code, rec.Body.String())
}

// login issues a token pair and hands back the access secret together
// with the scoped refresh cookie.
func (env *testEnv) login(username, password string) (string, *http.Cookie) {
	env.T.Helper()

	rec := env.do(http.MethodPost, "/api/v1/tokens", nil, withBasicAuth(username, password))
	require.Equal(env.T, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeJSON(env.T, rec)
	access, _ := body["access_token"].(string)
	require.NotEmpty(env.T, access)

	var refreshCookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "refresh_token" {
			refreshCookie = ck
		}
	}
	return access, refreshCookie
}

func (env *testEnv) seedProduct(name string, price float64) *models.Product {
	env.T.Helper()

	ctx := context.Background()
	category := models.ProductCategory{Name: "category for " + name}
	require.NoError(env.T, env.Repo.CreateCategory(ctx, &category))

	product := models.Product{Name: name, Price: price, CategoryID: category.ID}
	require.NoError(env.T, env.Repo.CreateProduct(ctx, &product))
	return &product
}

func signTestPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprint(at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
