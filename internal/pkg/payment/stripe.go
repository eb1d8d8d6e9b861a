package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
)

// StripeClient talks to the Stripe REST API directly. Only the two calls the
// billing core needs are implemented.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClient(cfg config.Stripe) *StripeClient {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.stripe.com"
	}
	return &StripeClient{
		SecretKey:  cfg.SecretKey,
		APIBaseURL: base,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type stripeSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	form := url.Values{}
	form.Set("mode", params.Mode)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("allow_promotion_codes", "true")
	if params.ClientReferenceID != "" {
		form.Set("client_reference_id", params.ClientReferenceID)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
		if params.Mode == plans.ModeSubscription {
			form.Set("subscription_data[metadata]["+k+"]", v)
		}
	}

	if params.PriceID != "" {
		form.Set("line_items[0][price]", params.PriceID)
	} else {
		form.Set("line_items[0][price_data][currency]", params.Currency)
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountCents, 10))
		form.Set("line_items[0][price_data][product_data][name]", params.Label)
		if params.Mode == plans.ModeSubscription {
			form.Set("line_items[0][price_data][recurring][interval]", "month")
		}
	}
	form.Set("line_items[0][quantity]", "1")
	if params.Mode == plans.ModePayment {
		form.Set("customer_creation", "always")
	}

	var sess stripeSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()), &sess); err != nil {
		return nil, err
	}
	return sess.toCheckoutSession(), nil
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session id is required")
	}

	var sess stripeSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return sess.toCheckoutSession(), nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: stripe returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("stripe request failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return json.Unmarshal(raw, out)
}

func (s *stripeSession) toCheckoutSession() *CheckoutSession {
	return &CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		Status:            s.Status,
		PaymentStatus:     s.PaymentStatus,
		Customer:          s.Customer,
		Subscription:      s.Subscription,
		AmountTotal:       s.AmountTotal,
		Currency:          s.Currency,
		ClientReferenceID: s.ClientReferenceID,
		Metadata:          s.Metadata,
	}
}
