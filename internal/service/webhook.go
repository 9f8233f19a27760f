package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/avolkov/market-api/internal/events"
	"github.com/avolkov/market-api/internal/logging"
	"github.com/avolkov/market-api/internal/repo"
)

const eventCheckoutCompleted = "checkout.session.completed"

// WebhookVerifier authenticates a raw webhook body against its
// signature header.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, header string) error
}

// Notifier sends a templated notification. Delivery is asynchronous and
// best effort; callers never wait on it.
type Notifier interface {
	Send(subject, to, template string, data interface{})
}

// WebhookService consumes payment-provider events and advances cart
// state. Processing is idempotent per provider event ID.
type WebhookService struct {
	Repo       *repo.GormRepo
	Verifier   WebhookVerifier
	Mailer     Notifier
	Producer   *events.Producer
	AdminEmail string
}

type providerEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// HandleEvent verifies and applies one provider notification. Any
// verification or decoding problem surfaces as ErrBadRequest; the
// internal cause stays in the logs.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	l := logging.FromContext(ctx).With("svc", "webhook")

	if err := s.Verifier.VerifyWebhookSignature(payload, signature); err != nil {
		l.Warn("webhook_rejected", "error", err)
		return ErrBadRequest
	}

	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		l.Warn("webhook_malformed", "error", err)
		return ErrBadRequest
	}

	if event.Type != eventCheckoutCompleted {
		l.Info("webhook_ignored", "type", event.Type)
		return nil
	}

	rawCartID, ok := event.Data.Object.Metadata["cart_id"]
	if !ok {
		l.Warn("webhook_missing_cart_id", "event_id", event.ID)
		return ErrBadRequest
	}
	cartID, err := strconv.ParseUint(rawCartID, 10, 64)
	if err != nil {
		l.Warn("webhook_bad_cart_id", "event_id", event.ID)
		return ErrBadRequest
	}

	first, err := s.Repo.FinalizePayment(ctx, event.ID, event.Type, uint(cartID))
	if err != nil {
		return err
	}
	if !first {
		l.Info("webhook_duplicate", "event_id", event.ID, "cart_id", cartID)
		return nil
	}

	s.notifyPurchase(ctx, uint(cartID))
	return nil
}

// notifyPurchase fires the post-payment side effects: mail to the buyer
// and the administrator plus a cart_paid event. All of it is off the
// webhook acknowledgment path.
func (s *WebhookService) notifyPurchase(ctx context.Context, cartID uint) {
	l := logging.FromContext(ctx).With("svc", "webhook", "cart_id", cartID)

	cart, err := s.Repo.GetCart(ctx, cartID)
	if err != nil {
		l.Error("paid_cart_load_error", "error", err)
		return
	}
	user, err := s.Repo.GetUserByID(ctx, cart.UserID)
	if err != nil {
		l.Error("paid_cart_user_error", "error", err)
		return
	}

	s.Mailer.Send("Thanks for purchase!", user.Email, "user_success", cart)
	if s.AdminEmail != "" {
		s.Mailer.Send(fmt.Sprintf("Purchase from %s!", user.Username), s.AdminEmail, "admin_success", cart)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Producer.Publish(pubCtx, events.TopicCartEvents, fmt.Sprint(cartID), map[string]interface{}{
		"type":    "cart_paid",
		"cart_id": cartID,
		"user_id": cart.UserID,
	}); err != nil {
		l.Error("kafka_publish_error", "error", err)
	}
}
