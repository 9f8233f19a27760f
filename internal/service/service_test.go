package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avolkov/market-api/internal/db"
	"github.com/avolkov/market-api/internal/hash"
	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/payment"
	"github.com/avolkov/market-api/internal/repo"
)

var testDBSeq int64

// newTestDB opens a private in-memory database per test. A single
// connection keeps concurrent test writers serialized the way the
// production pool does with real locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func newAuthService(t *testing.T) (*AuthService, *repo.GormRepo) {
	t.Helper()

	r := repo.New(newTestDB(t))
	svc := &AuthService{
		Repo:       r,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
	return svc, r
}

func seedUser(t *testing.T, r *repo.GormRepo, username, email string) *models.User {
	t.Helper()

	pwHash, err := hash.HashPassword("secret-password")
	require.NoError(t, err)

	now := time.Now().UTC()
	user := models.User{
		Username:     username,
		Name:         "Test User",
		Email:        email,
		PasswordHash: pwHash,
		MemberSince:  now,
		LastSeen:     now,
	}
	require.NoError(t, r.CreateUser(context.Background(), &user))
	return &user
}

func seedProduct(t *testing.T, r *repo.GormRepo, name string, price float64) *models.Product {
	t.Helper()

	category := models.ProductCategory{Name: "category for " + name}
	require.NoError(t, r.CreateCategory(context.Background(), &category))

	product := models.Product{
		Name:       name,
		Price:      price,
		CategoryID: category.ID,
	}
	require.NoError(t, r.CreateProduct(context.Background(), &product))
	return &product
}

type checkoutCall struct {
	CartID uint
	Lines  []payment.LineItem
}

type fakeCheckout struct {
	mu    sync.Mutex
	calls []checkoutCall
	url   string
	err   error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, cartID uint, lines []payment.LineItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, checkoutCall{CartID: cartID, Lines: lines})
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type sentMail struct {
	Subject  string
	To       string
	Template string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeNotifier) Send(subject, to, template string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{Subject: subject, To: to, Template: template})
}

func (f *fakeNotifier) all() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}
