// internal/clients/stripe_client.go
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

// ErrProviderUnavailable is returned without contacting the provider while
// the circuit breaker is open.
var ErrProviderUnavailable = errors.New("stripe: circuit open, provider unavailable")

// CheckoutRequest describes a one-item checkout session.
type CheckoutRequest struct {
	ProductName    string
	AmountMinor    int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession is the provider's reference to a created session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProviderError is a non-2xx answer from the payment provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stripe: status %d: %s", e.StatusCode, e.Message)
}

type StripeClient struct {
	secretKey string
	sessions  session.Client
	breaker   *gobreaker.CircuitBreaker
}

// NewStripeClient talks to the Stripe API at baseURL through stripe-go.
// Requests time out after timeout and are not retried by the SDK. Five
// consecutive transport or 5xx failures open the circuit for 30 seconds.
func NewStripeClient(baseURL, secretKey string, timeout time.Duration) *StripeClient {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(strings.TrimRight(baseURL, "/")),
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
		LeveledLogger:     slogLogger{},
	})
	return &StripeClient{
		secretKey: secretKey,
		sessions:  session.Client{B: backend, Key: secretKey},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "stripe",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var perr *ProviderError
				if errors.As(err, &perr) {
					return perr.StatusCode < 500
				}
				return err == nil
			},
		}),
	}
}

func checkoutParams(ctx context.Context, req CheckoutRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
		}},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

// CreateCheckoutSession opens a hosted checkout page for a single line item.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if c.secretKey == "" {
		return nil, errors.New("stripe: secret key not configured")
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("stripe: amount must be positive, got %d", req.AmountMinor)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.createCheckoutSession(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrProviderUnavailable
	}
	if err != nil {
		return nil, err
	}
	return out.(*CheckoutSession), nil
}

func (c *StripeClient) createCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	s, err := c.sessions.New(checkoutParams(ctx, req))
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			msg := serr.Msg
			if msg == "" {
				msg = http.StatusText(serr.HTTPStatusCode)
			}
			return nil, &ProviderError{StatusCode: serr.HTTPStatusCode, Message: msg}
		}
		return nil, fmt.Errorf("stripe: request failed: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("stripe: empty session id")
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// slogLogger routes stripe-go's own logging through slog.
type slogLogger struct{}

func (slogLogger) Debugf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLogger) Infof(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLogger) Warnf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLogger) Errorf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
