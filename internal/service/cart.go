package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/avolkov/market-api/internal/events"
	"github.com/avolkov/market-api/internal/logging"
	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/payment"
	"github.com/avolkov/market-api/internal/repo"
)

// CheckoutClient creates a provider-hosted payment session and returns
// its redirect URL.
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, cartID uint, lines []payment.LineItem) (string, error)
}

type CartService struct {
	Repo     *repo.GormRepo
	Checkout CheckoutClient
	Producer *events.Producer
	Currency string
}

func (s *CartService) Create(ctx context.Context, userID uint) (*models.Cart, error) {
	cart, err := s.Repo.CreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Items = []models.CartItem{}

	s.publish(ctx, events.TopicCartEvents, fmt.Sprint(cart.ID), map[string]interface{}{
		"type":    "cart_created",
		"cart_id": cart.ID,
		"user_id": userID,
	})
	return cart, nil
}

// guardedCart loads the cart and enforces ownership. mutable
// additionally rejects carts that already left "ready to pay".
func (s *CartService) guardedCart(ctx context.Context, cartID, requesterID uint, mutable bool) (*models.Cart, error) {
	cart, err := s.Repo.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart not found: %w", ErrNotFound)
		}
		return nil, err
	}
	if cart.UserID != requesterID {
		return nil, fmt.Errorf("cart belongs to another user: %w", ErrForbidden)
	}
	if mutable && cart.Status != models.StatusReadyToPay {
		return nil, fmt.Errorf("cart status is %q: %w", cart.Status, ErrInvalidState)
	}
	return cart, nil
}

func (s *CartService) Get(ctx context.Context, cartID, requesterID uint) (*models.Cart, error) {
	return s.guardedCart(ctx, cartID, requesterID, false)
}

func (s *CartService) AddItem(ctx context.Context, cartID, productID, requesterID uint) (*models.Cart, error) {
	if _, err := s.guardedCart(ctx, cartID, requesterID, true); err != nil {
		return nil, err
	}
	if _, err := s.Repo.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product not found: %w", ErrNotFound)
		}
		return nil, err
	}

	if err := s.Repo.AddCartItem(ctx, cartID, productID); err != nil {
		return nil, err
	}
	return s.Repo.GetCart(ctx, cartID)
}

func (s *CartService) RemoveItem(ctx context.Context, cartID, productID, requesterID uint) error {
	if _, err := s.guardedCart(ctx, cartID, requesterID, true); err != nil {
		return err
	}

	if err := s.Repo.RemoveCartItem(ctx, cartID, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product is not in the cart: %w", ErrNotFound)
		}
		return err
	}
	return nil
}

// MinorUnits converts a major-unit price to integer minor units. This
// is the single conversion point; prices stay float everywhere else.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100.0))
}

// CheckoutCart opens a payment session for the cart. Cart state does
// not change here; only the confirmed payment webhook moves it to paid.
func (s *CartService) CheckoutCart(ctx context.Context, cartID, requesterID uint) (string, error) {
	l := logging.FromContext(ctx).With("svc", "cart.checkout", "cart_id", cartID)

	if _, err := s.guardedCart(ctx, cartID, requesterID, true); err != nil {
		return "", err
	}

	cartLines, err := s.Repo.GetCartLines(ctx, cartID)
	if err != nil {
		return "", err
	}
	if len(cartLines) == 0 {
		return "", fmt.Errorf("nothing to pay for: %w", ErrEmptyCart)
	}

	lines := make([]payment.LineItem, len(cartLines))
	for i, cl := range cartLines {
		lines[i] = payment.LineItem{
			Name:       cl.ProductName,
			UnitAmount: MinorUnits(cl.Price),
			Currency:   s.Currency,
			Quantity:   cl.Quantity,
		}
	}

	url, err := s.Checkout.CreateCheckoutSession(ctx, cartID, lines)
	if err != nil {
		l.Error("checkout_session_error", "error", err)
		return "", err
	}
	return url, nil
}

func (s *CartService) publish(ctx context.Context, topic, key string, event map[string]interface{}) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Producer.Publish(pubCtx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_error", "topic", topic, "error", err)
	}
}
