package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plutov/paypal/v4"
)

// PayPalLogger defines the logging contract for PayPal provider operations.
type PayPalLogger func(ctx context.Context, event string, fields map[string]any)

type paypalOrderAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, paymentSource *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
}

// PayPalProviderConfig configures the PayPalProvider.
type PayPalProviderConfig struct {
	ClientID  string
	Secret    string
	Live      bool
	BrandName string
	Logger    PayPalLogger
	Orders    paypalOrderAPI
}

// PayPalProvider implements Provider using the PayPal Orders v2 flow: the
// order is created first, then captured once the customer approves it.
type PayPalProvider struct {
	orders paypalOrderAPI
	brand  string
	logger PayPalLogger
}

// NewPayPalProvider constructs a PayPal Provider using the given configuration.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	orders := cfg.Orders
	if orders == nil {
		clientID := strings.TrimSpace(cfg.ClientID)
		secret := strings.TrimSpace(cfg.Secret)
		if clientID == "" || secret == "" {
			return nil, errors.New("paypal: client id and secret are required")
		}
		base := paypal.APIBaseSandBox
		if cfg.Live {
			base = paypal.APIBaseLive
		}
		c, err := paypal.NewClient(clientID, secret, base)
		if err != nil {
			return nil, fmt.Errorf("paypal: build client: %w", err)
		}
		orders = c
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPalProvider{
		orders: orders,
		brand:  strings.TrimSpace(cfg.BrandName),
		logger: logger,
	}, nil
}

// validateRequest checks every required field up front and reports all
// problems in a single error, before any network call is made.
func validatePayPalRequest(req Request) error {
	var problems []string
	if req.AmountCents <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		problems = append(problems, "currency is required")
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		problems = append(problems, "customer email is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("paypal: invalid payment request: %s", strings.Join(problems, "; "))
	}
	return nil
}

// CreateOrder registers an order with PayPal for later capture.
func (p *PayPalProvider) CreateOrder(ctx context.Context, req Request) (PendingPayment, error) {
	if p == nil {
		return PendingPayment{}, errors.New("paypal: provider is nil")
	}
	if err := validatePayPalRequest(req); err != nil {
		return PendingPayment{}, err
	}

	unit := paypal.PurchaseUnitRequest{
		ReferenceID: strings.TrimSpace(req.OrderRef),
		Description: req.Description,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    centsToDecimal(req.AmountCents),
		},
	}

	var appContext *paypal.ApplicationContext
	if p.brand != "" {
		appContext = &paypal.ApplicationContext{BrandName: p.brand}
	}

	order, err := p.orders.CreateOrder(ctx, paypal.OrderIntentCapture, []paypal.PurchaseUnitRequest{unit}, nil, appContext)
	if err != nil {
		return PendingPayment{}, fmt.Errorf("paypal: create order: %w", err)
	}

	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"orderId": order.ID,
		"status":  order.Status,
	})

	pending := PendingPayment{Method: MethodPayPal, PaymentID: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			pending.ApprovalURL = link.Href
			break
		}
	}
	return pending, nil
}

// Capture settles a previously created PayPal order. A customer who backed
// out of the approval flow resolves to a cancelled result, not a failure.
func (p *PayPalProvider) Capture(ctx context.Context, paymentID string) (Result, error) {
	if p == nil {
		return Result{}, errors.New("paypal: provider is nil")
	}
	if strings.TrimSpace(paymentID) == "" {
		return Result{}, errors.New("paypal: order id is required")
	}

	capture, err := p.orders.CaptureOrder(ctx, paymentID, paypal.CaptureOrderRequest{})
	if err != nil {
		if paypalOrderNotApproved(err) {
			p.logger(ctx, "payments.paypal.order.cancelled", map[string]any{"orderId": paymentID})
			return Result{PaymentID: paymentID, Err: ErrPaymentCancelled}, nil
		}
		return Result{}, fmt.Errorf("paypal: capture order: %w", err)
	}

	result := Result{PaymentID: capture.ID}
	if payer := capture.Payer; payer != nil {
		result.PayerEmail = payer.EmailAddress
		if payer.Name != nil {
			result.PayerName = strings.TrimSpace(payer.Name.GivenName + " " + payer.Name.Surname)
		}
	}

	switch capture.Status {
	case "COMPLETED":
		result.Succeeded = true
	case "VOIDED":
		result.Err = ErrPaymentCancelled
	default:
		result.Err = fmt.Errorf("paypal: order not completed (status %s)", capture.Status)
	}

	p.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"orderId":   capture.ID,
		"status":    capture.Status,
		"succeeded": result.Succeeded,
	})
	return result, nil
}

func paypalOrderNotApproved(err error) bool {
	var apiErr *paypal.ErrorResponse
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, detail := range apiErr.Details {
		if detail.Issue == "ORDER_NOT_APPROVED" {
			return true
		}
	}
	return false
}

// centsToDecimal renders minor units as the dotted decimal string PayPal expects.
func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
