package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Intents  stripePaymentIntentAPI
}

// StripeProvider implements Provider for the card method using Stripe
// Payment Intents.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder registers a Payment Intent for the requested amount.
func (p *StripeProvider) CreateOrder(ctx context.Context, req Request) (PendingPayment, error) {
	if p == nil {
		return PendingPayment{}, errors.New("stripe: provider is nil")
	}
	if req.AmountCents <= 0 {
		return PendingPayment{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Card != nil && strings.TrimSpace(req.Card.Token) != "" {
		params.PaymentMethod = stripe.String(strings.TrimSpace(req.Card.Token))
	}
	if ref := strings.TrimSpace(req.OrderRef); ref != "" {
		params.SetIdempotencyKey(ref)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return PendingPayment{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return PendingPayment{Method: MethodCard, PaymentID: intent.ID}, nil
}

// Capture confirms the Payment Intent and resolves the terminal outcome.
func (p *StripeProvider) Capture(ctx context.Context, paymentID string) (Result, error) {
	if p == nil {
		return Result{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(paymentID) == "" {
		return Result{}, errors.New("stripe: payment id is required")
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	intent, err := p.intents.Confirm(paymentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			p.logger(ctx, "payments.stripe.intent.declined", map[string]any{
				"paymentIntent": paymentID,
				"code":          string(stripeErr.Code),
			})
			return Result{
				PaymentID: paymentID,
				Err:       fmt.Errorf("card payment declined: %s", stripeErr.Msg),
			}, nil
		}
		return Result{}, fmt.Errorf("stripe: confirm payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})
	return stripeResult(intent), nil
}

func stripeResult(intent *stripe.PaymentIntent) Result {
	if intent == nil {
		return Result{Err: errors.New("stripe: empty payment intent")}
	}

	result := Result{PaymentID: intent.ID, PayerEmail: intent.ReceiptEmail}
	if charge := intent.LatestCharge; charge != nil && charge.BillingDetails != nil {
		result.PayerName = charge.BillingDetails.Name
		if result.PayerEmail == "" {
			result.PayerEmail = charge.BillingDetails.Email
		}
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Succeeded = true
	case stripe.PaymentIntentStatusCanceled:
		result.Err = ErrPaymentCancelled
	default:
		message := "payment did not complete"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			message = intent.LastPaymentError.Msg
		}
		result.Err = fmt.Errorf("stripe: %s (status %s)", message, intent.Status)
	}
	return result
}
