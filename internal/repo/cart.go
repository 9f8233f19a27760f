package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avolkov/market-api/internal/models"
)

func (r *GormRepo) CreateCart(ctx context.Context, userID uint) (*models.Cart, error) {
	cart := models.Cart{
		UserID: userID,
		Status: models.StatusReadyToPay,
	}
	if err := r.DB.WithContext(ctx).Create(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *GormRepo) GetCart(ctx context.Context, cartID uint) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB.WithContext(ctx).
		Preload("Items").
		Where("id = ?", cartID).
		First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddCartItem inserts the row or bumps its quantity in one statement.
// The upsert keys on (cart_id, product_id), so concurrent adds never
// lose an increment and never produce a second row.
func (r *GormRepo) AddCartItem(ctx context.Context, cartID, productID uint) error {
	item := models.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  1,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity": gorm.Expr("cart_items.quantity + ?", 1),
		}),
	}).Create(&item).Error
}

// RemoveCartItem decrements the quantity, deleting the row when it
// would reach zero. Returns gorm.ErrRecordNotFound when no row exists.
func (r *GormRepo) RemoveCartItem(ctx context.Context, cartID, productID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CartItem{}).
			Where("cart_id = ? AND product_id = ? AND quantity > 1", cartID, productID).
			Update("quantity", gorm.Expr("quantity - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		res = tx.Where("cart_id = ? AND product_id = ?", cartID, productID).
			Delete(&models.CartItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CartLine is a priced cart row used to build checkout line items.
type CartLine struct {
	ProductName string
	Price       float64
	Quantity    uint
}

func (r *GormRepo) GetCartLines(ctx context.Context, cartID uint) ([]CartLine, error) {
	var lines []CartLine
	if err := r.DB.WithContext(ctx).
		Model(&models.CartItem{}).
		Select("products.name AS product_name, products.price AS price, cart_items.quantity AS quantity").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.cart_id = ?", cartID).
		Order("cart_items.id ASC").
		Scan(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}
