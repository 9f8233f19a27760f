package repo

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avolkov/market-api/internal/db"
	"github.com/avolkov/market-api/internal/models"
)

var testDBSeq int64

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()

	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = sqlDB.Close() })

	return New(gdb)
}

func seedCatalog(t *testing.T, r *GormRepo) (*models.ProductCategory, *models.Product) {
	t.Helper()

	ctx := context.Background()
	category := models.ProductCategory{Name: "Coffee"}
	require.NoError(t, r.CreateCategory(ctx, &category))
	product := models.Product{Name: "Coffee Beans", Price: 9.99, CategoryID: category.ID}
	require.NoError(t, r.CreateProduct(ctx, &product))
	return &category, &product
}

func TestFinalizePayment(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	cart, err := r.CreateCart(ctx, 1)
	require.NoError(t, err)

	first, err := r.FinalizePayment(ctx, "evt_1", "checkout.session.completed", cart.ID)
	require.NoError(t, err)
	assert.True(t, first)

	got, err := r.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)

	// the same event again is a recorded no-op
	first, err = r.FinalizePayment(ctx, "evt_1", "checkout.session.completed", cart.ID)
	require.NoError(t, err)
	assert.False(t, first)

	// a different event against a settled cart changes nothing either
	first, err = r.FinalizePayment(ctx, "evt_2", "checkout.session.completed", cart.ID)
	require.NoError(t, err)
	assert.False(t, first)

	var recorded int64
	require.NoError(t, r.DB.Model(&models.WebhookEvent{}).Count(&recorded).Error)
	assert.EqualValues(t, 2, recorded, "every distinct event id is recorded")
}

func TestAddCartItem_Upsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, product := seedCatalog(t, r)

	cart, err := r.CreateCart(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, r.AddCartItem(ctx, cart.ID, product.ID))
	require.NoError(t, r.AddCartItem(ctx, cart.ID, product.ID))
	require.NoError(t, r.AddCartItem(ctx, cart.ID, product.ID))

	got, err := r.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.EqualValues(t, 3, got.Items[0].Quantity)
}

func TestRemoveCartItem(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, product := seedCatalog(t, r)

	cart, err := r.CreateCart(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, r.AddCartItem(ctx, cart.ID, product.ID))

	require.NoError(t, r.RemoveCartItem(ctx, cart.ID, product.ID))
	err = r.RemoveCartItem(ctx, cart.ID, product.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteProduct_RemovesCartRows(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, product := seedCatalog(t, r)

	cart, err := r.CreateCart(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, r.AddCartItem(ctx, cart.ID, product.ID))

	require.NoError(t, r.DeleteProduct(ctx, product.ID))

	got, err := r.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items, "cart rows of a removed product disappear")

	err = r.DeleteProduct(ctx, product.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteCategory_Cascades(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	category, product := seedCatalog(t, r)

	cart, err := r.CreateCart(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, r.AddCartItem(ctx, cart.ID, product.ID))

	require.NoError(t, r.DeleteCategory(ctx, category.ID))

	_, err = r.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err := r.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestGetCartLines(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	category, beans := seedCatalog(t, r)

	filters := models.Product{Name: "Paper Filters", Price: 4.50, CategoryID: category.ID}
	require.NoError(t, r.CreateProduct(ctx, &filters))

	cart, err := r.CreateCart(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, r.AddCartItem(ctx, cart.ID, beans.ID))
	require.NoError(t, r.AddCartItem(ctx, cart.ID, beans.ID))
	require.NoError(t, r.AddCartItem(ctx, cart.ID, filters.ID))

	lines, err := r.GetCartLines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "Coffee Beans", lines[0].ProductName)
	assert.EqualValues(t, 9.99, lines[0].Price)
	assert.EqualValues(t, 2, lines[0].Quantity)
	assert.Equal(t, "Paper Filters", lines[1].ProductName)
	assert.EqualValues(t, 1, lines[1].Quantity)
}

func TestListProductsByCategory_Pagination(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	category, _ := seedCatalog(t, r)

	for i := 0; i < 4; i++ {
		p := models.Product{Name: fmt.Sprintf("Roast %d", i), Price: 9.99, CategoryID: category.ID}
		require.NoError(t, r.CreateProduct(ctx, &p))
	}

	products, total, err := r.ListProductsByCategory(ctx, category.ID, 0, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, products, 3)

	products, _, err = r.ListProductsByCategory(ctx, category.ID, 3, 3)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}
