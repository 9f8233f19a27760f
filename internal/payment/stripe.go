package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/market-api/internal/config"
)

// LineItem is one priced checkout row. UnitAmount is in minor currency
// units; the major-to-minor conversion happens before construction and
// nowhere else.
type LineItem struct {
	Name       string
	UnitAmount int64
	Currency   string
	Quantity   uint
}

type Client struct {
	httpClient    *http.Client
	baseAPIURL    string
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewClient(cfg *config.Stripe, successURL, cancelURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseAPIURL:    strings.TrimRight(cfg.BaseAPIURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

// CreateCheckoutSession opens a provider-hosted payment session for the
// cart and returns the redirect URL. The cart ID rides along as opaque
// metadata and comes back in the completion webhook.
func (c *Client) CreateCheckoutSession(ctx context.Context, cartID uint, lines []LineItem) (string, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("metadata[cart_id]", strconv.FormatUint(uint64(cartID), 10))

	for i, line := range lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", line.Currency)
		form.Set(prefix+"[price_data][product_data][name]", line.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitAmount, 10))
		form.Set(prefix+"[quantity]", strconv.FormatUint(uint64(line.Quantity), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseAPIURL+"/v1/checkout/sessions",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("stripe error %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("stripe session without redirect url")
	}
	return result.URL, nil
}
