package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/payments"
)

// Step is the position in the checkout flow.
type Step int

const (
	// StepShipping collects the destination and contact details.
	StepShipping Step = 1
	// StepPayment collects the payment method and card details.
	StepPayment Step = 2
	// StepReview shows the final totals before placing the order.
	StepReview Step = 3
)

// Status tracks the overall lifecycle of one checkout attempt.
type Status string

const (
	// StatusActive means the shopper is still walking the steps.
	StatusActive Status = "active"
	// StatusProcessing means an order placement is in flight.
	StatusProcessing Status = "processing"
	// StatusComplete means the order was placed and paid.
	StatusComplete Status = "complete"
)

// State is the persisted checkout progress for one user. It survives across
// requests so a shopper can resume mid-flow.
type State struct {
	UserID       string                `json:"userId"`
	Step         Step                  `json:"step"`
	Status       Status                `json:"status"`
	Shipper      domain.Address        `json:"shipper"`
	Method       payments.Method       `json:"method,omitempty"`
	Card         *payments.CardDetails `json:"card,omitempty"`
	Rates        []domain.ShippingRate `json:"rates,omitempty"`
	SelectedRate *domain.ShippingRate  `json:"selectedRate,omitempty"`
	RatesFetched bool                  `json:"ratesFetched"`
	RateWarning  string                `json:"rateWarning,omitempty"`
	Busy         bool                  `json:"busy"`
	BusyAt       time.Time             `json:"busyAt"`
	Error        string                `json:"error,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// Repository persists checkout state keyed by user.
type Repository interface {
	Get(ctx context.Context, userID string) (State, bool, error)
	Save(ctx context.Context, state State) error
	Delete(ctx context.Context, userID string) error
}

// canProceed gates advancing out of the current step. The review step is
// never gated; placing the order does its own validation.
func (s State) canProceed() bool {
	switch s.Step {
	case StepShipping:
		required := []string{
			s.Shipper.Name,
			s.Shipper.Email,
			s.Shipper.Street1,
			s.Shipper.City,
			s.Shipper.State,
			s.Shipper.PostalCode,
			s.Shipper.Country,
		}
		for _, field := range required {
			if strings.TrimSpace(field) == "" {
				return false
			}
		}
		return true
	case StepPayment:
		if s.Method == "" {
			return false
		}
		if s.Method != payments.MethodCard {
			return true
		}
		if s.Card == nil {
			return false
		}
		if strings.TrimSpace(s.Card.Token) != "" {
			return true
		}
		for _, field := range []string{s.Card.Number, s.Card.ExpMonth, s.Card.ExpYear, s.Card.CVC} {
			if strings.TrimSpace(field) == "" {
				return false
			}
		}
		return true
	default:
		return true
	}
}
