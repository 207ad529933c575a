package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	createFn  func(ctx context.Context, req Request) (PendingPayment, error)
	captureFn func(ctx context.Context, paymentID string) (Result, error)
}

func (s *stubProvider) CreateOrder(ctx context.Context, req Request) (PendingPayment, error) {
	return s.createFn(ctx, req)
}

func (s *stubProvider) Capture(ctx context.Context, paymentID string) (Result, error) {
	return s.captureFn(ctx, paymentID)
}

func TestParseMethod(t *testing.T) {
	cases := map[string]Method{
		"card":    MethodCard,
		"Stripe":  MethodCard,
		"PAYPAL":  MethodPayPal,
		"google":  MethodGoogle,
		" paypal": MethodPayPal,
	}
	for raw, want := range cases {
		got, err := ParseMethod(raw)
		if err != nil {
			t.Fatalf("ParseMethod(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseMethod(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseMethod("bitcoin"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestDispatcherChargeSuccess(t *testing.T) {
	var createdRef string
	provider := &stubProvider{
		createFn: func(_ context.Context, req Request) (PendingPayment, error) {
			createdRef = req.OrderRef
			return PendingPayment{PaymentID: "pay_123"}, nil
		},
		captureFn: func(_ context.Context, paymentID string) (Result, error) {
			if paymentID != "pay_123" {
				t.Fatalf("capture received wrong payment id %q", paymentID)
			}
			return Result{Succeeded: true, PayerEmail: "buyer@example.com"}, nil
		},
	}
	dispatcher, err := NewDispatcher(map[Method]Provider{MethodCard: provider})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	result, err := dispatcher.Charge(context.Background(), MethodCard, Request{
		OrderRef:    "ord_1",
		AmountCents: 5319,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.PaymentID != "pay_123" {
		t.Fatalf("expected payment id carried into result, got %q", result.PaymentID)
	}
	if createdRef != "ord_1" {
		t.Fatalf("expected order ref passed to provider, got %q", createdRef)
	}
}

func TestDispatcherChargeUnknownMethod(t *testing.T) {
	dispatcher, err := NewDispatcher(map[Method]Provider{MethodCard: &stubProvider{}})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if _, err := dispatcher.Charge(context.Background(), MethodPayPal, Request{}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestDispatcherChargeNormalisesProviderFailures(t *testing.T) {
	declined := errors.New("card declined")
	provider := &stubProvider{
		createFn: func(context.Context, Request) (PendingPayment, error) {
			return PendingPayment{}, declined
		},
	}
	dispatcher, err := NewDispatcher(map[Method]Provider{MethodCard: provider})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	result, err := dispatcher.Charge(context.Background(), MethodCard, Request{})
	if err != nil {
		t.Fatalf("provider failure must not surface as hard error, got %v", err)
	}
	if result.Succeeded {
		t.Fatal("expected failed result")
	}
	if !errors.Is(result.Err, declined) {
		t.Fatalf("expected declined error in result, got %v", result.Err)
	}
}

func TestDispatcherChargeCaptureFailureKeepsPaymentID(t *testing.T) {
	provider := &stubProvider{
		createFn: func(context.Context, Request) (PendingPayment, error) {
			return PendingPayment{PaymentID: "pay_9"}, nil
		},
		captureFn: func(context.Context, string) (Result, error) {
			return Result{}, errors.New("gateway timeout")
		},
	}
	dispatcher, err := NewDispatcher(map[Method]Provider{MethodPayPal: provider})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	result, err := dispatcher.Charge(context.Background(), MethodPayPal, Request{})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if result.PaymentID != "pay_9" {
		t.Fatalf("expected pending payment id preserved, got %q", result.PaymentID)
	}
	if result.Succeeded || result.Err == nil {
		t.Fatalf("expected failure result, got %+v", result)
	}
}

func TestResultCancelledDistinctFromFailure(t *testing.T) {
	cancelled := Result{Err: ErrPaymentCancelled}
	if !cancelled.Cancelled() {
		t.Fatal("expected cancelled result")
	}
	if cancelled.Message() != "Payment was cancelled." {
		t.Fatalf("unexpected message %q", cancelled.Message())
	}

	failed := Result{Err: errors.New("insufficient funds")}
	if failed.Cancelled() {
		t.Fatal("plain failure must not read as cancellation")
	}
}

func TestNewDispatcherRejectsEmptyRegistry(t *testing.T) {
	if _, err := NewDispatcher(nil); err == nil {
		t.Fatal("expected error for empty registry")
	}
	if _, err := NewDispatcher(map[Method]Provider{MethodCard: nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestGooglePayProviderUnavailable(t *testing.T) {
	provider := NewGooglePayProvider()
	pending, err := provider.CreateOrder(context.Background(), Request{OrderRef: "ord_7"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	result, err := provider.Capture(context.Background(), pending.PaymentID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.Succeeded {
		t.Fatal("stub must never succeed")
	}
	if !errors.Is(result.Err, ErrMethodUnavailable) {
		t.Fatalf("expected ErrMethodUnavailable, got %v", result.Err)
	}
}
