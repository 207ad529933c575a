package payments

import (
	"context"
	"fmt"
)

// GooglePayProvider is a placeholder registration for the google method. It
// accepts order creation so the method can be selected, and resolves every
// capture to an unavailable result.
//
// TODO: replace with a real Google Pay gateway integration once the merchant
// account is approved.
type GooglePayProvider struct{}

// NewGooglePayProvider constructs the stub provider.
func NewGooglePayProvider() *GooglePayProvider {
	return &GooglePayProvider{}
}

// CreateOrder acknowledges the request without contacting any gateway.
func (p *GooglePayProvider) CreateOrder(_ context.Context, req Request) (PendingPayment, error) {
	return PendingPayment{Method: MethodGoogle, PaymentID: "gpay_" + req.OrderRef}, nil
}

// Capture always resolves to an unavailable outcome.
func (p *GooglePayProvider) Capture(_ context.Context, paymentID string) (Result, error) {
	return Result{
		PaymentID: paymentID,
		Err:       fmt.Errorf("%w: Google Pay is not available yet", ErrMethodUnavailable),
	}, nil
}
