package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Method identifies a payment method selectable at checkout.
type Method string

const (
	// MethodCard charges a card through Stripe.
	MethodCard Method = "card"
	// MethodPayPal runs the two-phase PayPal order flow.
	MethodPayPal Method = "paypal"
	// MethodGoogle is Google Pay.
	MethodGoogle Method = "google"
)

// ErrUnsupportedMethod is returned when the dispatcher cannot locate a provider.
var ErrUnsupportedMethod = errors.New("payments: unsupported method")

// ErrPaymentCancelled marks a payment the customer abandoned or voided. It is
// a terminal outcome distinct from failure.
var ErrPaymentCancelled = errors.New("payments: payment cancelled")

// ErrMethodUnavailable marks a registered method that cannot take payments yet.
var ErrMethodUnavailable = errors.New("payments: method unavailable")

// ParseMethod normalises user supplied method strings.
func ParseMethod(raw string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "card", "stripe", "credit":
		return MethodCard, nil
	case "paypal":
		return MethodPayPal, nil
	case "google", "googlepay", "google_pay":
		return MethodGoogle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, raw)
	}
}

// CardDetails carries raw card input for the card method.
type CardDetails struct {
	Number   string
	ExpMonth string
	ExpYear  string
	CVC      string
	Token    string
}

// Request is the provider-agnostic payment payload built by the checkout
// orchestrator. Amounts are minor units (cents).
type Request struct {
	OrderRef      string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	Description   string
	Card          *CardDetails
	Metadata      map[string]string
}

// PendingPayment is the provider-side order created before capture.
type PendingPayment struct {
	Method      Method
	PaymentID   string
	ApprovalURL string
}

// Result is the uniform outcome every provider resolves to. A declined,
// cancelled or errored payment sets Err; the dispatcher never raises provider
// failures as hard errors.
type Result struct {
	Succeeded  bool
	PaymentID  string
	PayerEmail string
	PayerName  string
	Err        error
}

// Failed reports whether the result carries a terminal failure.
func (r Result) Failed() bool {
	return !r.Succeeded
}

// Cancelled reports whether the customer cancelled rather than failed.
func (r Result) Cancelled() bool {
	return errors.Is(r.Err, ErrPaymentCancelled)
}

// Message renders a human-readable outcome for storefront display.
func (r Result) Message() string {
	switch {
	case r.Succeeded:
		return "Payment completed."
	case r.Cancelled():
		return "Payment was cancelled."
	case r.Err != nil:
		return r.Err.Error()
	default:
		return "Payment did not complete."
	}
}

// Provider is the contract every payment adapter implements. CreateOrder
// registers the payment with the PSP and Capture settles it.
type Provider interface {
	CreateOrder(ctx context.Context, req Request) (PendingPayment, error)
	Capture(ctx context.Context, paymentID string) (Result, error)
}

// Dispatcher routes payment requests to the provider registered for the
// chosen method so callers never branch on provider internals.
type Dispatcher struct {
	providers map[Method]Provider
}

// NewDispatcher constructs a Dispatcher over the supplied providers.
func NewDispatcher(providers map[Method]Provider) (*Dispatcher, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[Method]Provider, len(providers))
	for method, provider := range providers {
		if method == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for method %q", method)
		}
		copyMap[method] = provider
	}
	return &Dispatcher{providers: copyMap}, nil
}

func (d *Dispatcher) resolve(method Method) (Provider, error) {
	if d == nil || len(d.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	provider, ok := d.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return provider, nil
}

// CreateOrder delegates phase one to the resolved provider.
func (d *Dispatcher) CreateOrder(ctx context.Context, method Method, req Request) (PendingPayment, error) {
	provider, err := d.resolve(method)
	if err != nil {
		return PendingPayment{}, err
	}
	pending, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return PendingPayment{}, err
	}
	pending.Method = method
	return pending, nil
}

// Capture delegates phase two to the resolved provider.
func (d *Dispatcher) Capture(ctx context.Context, method Method, paymentID string) (Result, error) {
	provider, err := d.resolve(method)
	if err != nil {
		return Result{}, err
	}
	return provider.Capture(ctx, paymentID)
}

// Charge runs both phases and normalises every provider failure into the
// Result. The returned error is non-nil only when no provider is registered
// for the method.
func (d *Dispatcher) Charge(ctx context.Context, method Method, req Request) (Result, error) {
	provider, err := d.resolve(method)
	if err != nil {
		return Result{}, err
	}
	pending, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return Result{Err: err}, nil
	}
	result, err := provider.Capture(ctx, pending.PaymentID)
	if err != nil {
		return Result{PaymentID: pending.PaymentID, Err: err}, nil
	}
	if result.PaymentID == "" {
		result.PaymentID = pending.PaymentID
	}
	return result, nil
}
