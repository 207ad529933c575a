package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/patchline/api/internal/cart"
	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/payments"
	"github.com/patchline/api/internal/pricing"
	"github.com/patchline/api/internal/repositories"
	"github.com/patchline/api/internal/shipping"
)

var (
	// ErrCheckoutBusy is returned when a rate fetch or placement is already
	// in flight for this user.
	ErrCheckoutBusy = errors.New("checkout: operation already in progress")
	// ErrCannotProceed is returned when the current step's requirements are
	// not met.
	ErrCannotProceed = errors.New("checkout: step requirements not met")
	// ErrCannotGoBack is returned for Previous on the first step.
	ErrCannotGoBack = errors.New("checkout: already on the first step")
	// ErrEmptyCart is returned when placing an order over an empty cart.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrWrongStep is returned when an operation is invoked out of order.
	ErrWrongStep = errors.New("checkout: operation not valid on this step")
	// ErrRateNotFound is returned when selecting a rate that was not quoted.
	ErrRateNotFound = errors.New("checkout: rate not found")
	// ErrCheckoutComplete is returned when mutating a finished checkout.
	ErrCheckoutComplete = errors.New("checkout: already complete")
)

const defaultFreeShippingThreshold = 5000

// busyTimeout bounds how long a persisted busy marker blocks the flow. A
// crash between the busy save and its clearing save would otherwise wedge
// the checkout forever.
const busyTimeout = 2 * time.Minute

// RateItems converts cart lines into shipping rate items.
type RateItems func(ctx context.Context, items []domain.CartItem) ([]shipping.RateItem, error)

// OrderRecorder persists a synthesized order.
type OrderRecorder interface {
	Record(ctx context.Context, order domain.Order) error
}

// PlacementResult reports what happened when an order was placed. Payment
// failures and cancellations land here with a nil Order; only infrastructure
// faults surface as errors.
type PlacementResult struct {
	Order   *domain.Order
	Payment payments.Result
}

// ServiceDeps configures the checkout Service.
type ServiceDeps struct {
	Repo              Repository
	Carts             *cart.Service
	Products          repositories.ProductRepository
	Pricing           *pricing.Engine
	Shipping          *shipping.Client
	Payments          *payments.Dispatcher
	Orders            OrderRecorder
	Currency          string
	TaxBasisPoints    int64
	FallbackShipCents int64
	FreeShipThreshold int64
	Clock             func() time.Time
	IDGen             func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

// Service orchestrates the checkout flow. It is the backstop layer: lower
// layers report tagged outcomes and anything unexpected becomes a checkout
// error rather than a silent advance.
type Service struct {
	repo              Repository
	carts             *cart.Service
	products          repositories.ProductRepository
	pricing           *pricing.Engine
	shipping          *shipping.Client
	payments          *payments.Dispatcher
	orders            OrderRecorder
	currency          string
	taxBasisPoints    int64
	fallbackShipCents int64
	freeShipThreshold int64
	clock             func() time.Time
	idGen             func() string
	logger            func(ctx context.Context, event string, fields map[string]any)
}

// NewService constructs a checkout Service.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("checkout: state repository is required")
	case deps.Carts == nil:
		return nil, errors.New("checkout: cart service is required")
	case deps.Products == nil:
		return nil, errors.New("checkout: product repository is required")
	case deps.Pricing == nil:
		return nil, errors.New("checkout: pricing engine is required")
	case deps.Shipping == nil:
		return nil, errors.New("checkout: shipping client is required")
	case deps.Payments == nil:
		return nil, errors.New("checkout: payment dispatcher is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout: order recorder is required")
	}
	currency := deps.Currency
	if currency == "" {
		currency = "USD"
	}
	taxBP := deps.TaxBasisPoints
	if taxBP <= 0 {
		taxBP = 800
	}
	fallback := deps.FallbackShipCents
	if fallback <= 0 {
		fallback = 999
	}
	freeThreshold := deps.FreeShipThreshold
	if freeThreshold <= 0 {
		freeThreshold = defaultFreeShippingThreshold
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Service{
		repo:              deps.Repo,
		carts:             deps.Carts,
		products:          deps.Products,
		pricing:           deps.Pricing,
		shipping:          deps.Shipping,
		payments:          deps.Payments,
		orders:            deps.Orders,
		currency:          currency,
		taxBasisPoints:    taxBP,
		fallbackShipCents: fallback,
		freeShipThreshold: freeThreshold,
		clock:             func() time.Time { return clock().UTC() },
		idGen:             idGen,
		logger:            logger,
	}, nil
}

// stillBusy reports whether a persisted busy marker is fresh enough to
// honor. Markers older than busyTimeout are treated as abandoned.
func (s *Service) stillBusy(state State) bool {
	return state.Busy && s.clock().Sub(state.BusyAt) < busyTimeout
}

func markBusy(state *State, at time.Time) {
	state.Busy = true
	state.BusyAt = at
}

func clearBusy(state *State) {
	state.Busy = false
	state.BusyAt = time.Time{}
}

// Get loads the user's checkout state, starting a fresh one when none exists.
func (s *Service) Get(ctx context.Context, userID string) (State, error) {
	state, found, err := s.repo.Get(ctx, userID)
	if err != nil {
		return State{}, fmt.Errorf("checkout: load state: %w", err)
	}
	if !found {
		return State{UserID: userID, Step: StepShipping, Status: StatusActive}, nil
	}
	return state, nil
}

func (s *Service) save(ctx context.Context, state *State) error {
	state.UpdatedAt = s.clock()
	if err := s.repo.Save(ctx, *state); err != nil {
		return fmt.Errorf("checkout: save state: %w", err)
	}
	return nil
}

func (s *Service) mutable(ctx context.Context, userID string) (State, error) {
	state, err := s.Get(ctx, userID)
	if err != nil {
		return State{}, err
	}
	if state.Status == StatusComplete {
		return State{}, ErrCheckoutComplete
	}
	// Drop abandoned busy markers so a crash mid-operation never wedges
	// the flow; the next save persists the cleared marker.
	if state.Busy && !s.stillBusy(state) {
		clearBusy(&state)
		if state.Status == StatusProcessing {
			state.Status = StatusActive
		}
	}
	return state, nil
}

// SetShipper records the destination and contact details on the state.
func (s *Service) SetShipper(ctx context.Context, userID string, shipper domain.Address) (State, error) {
	state, err := s.mutable(ctx, userID)
	if err != nil {
		return State{}, err
	}
	state.Shipper = shipper
	state.Error = ""
	if err := s.save(ctx, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// SetPayment records the chosen method and, for card, the card details.
func (s *Service) SetPayment(ctx context.Context, userID string, method payments.Method, card *payments.CardDetails) (State, error) {
	state, err := s.mutable(ctx, userID)
	if err != nil {
		return State{}, err
	}
	state.Method = method
	state.Card = nil
	if method == payments.MethodCard {
		state.Card = card
	}
	state.Error = ""
	if err := s.save(ctx, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// SelectRate picks one of the quoted rates by service code.
func (s *Service) SelectRate(ctx context.Context, userID, serviceCode string) (State, error) {
	state, err := s.mutable(ctx, userID)
	if err != nil {
		return State{}, err
	}
	for i := range state.Rates {
		if state.Rates[i].ServiceCode == serviceCode {
			rate := state.Rates[i]
			state.SelectedRate = &rate
			if err := s.save(ctx, &state); err != nil {
				return State{}, err
			}
			return state, nil
		}
	}
	return State{}, fmt.Errorf("%w: %s", ErrRateNotFound, serviceCode)
}

// Next advances one step when the current step's requirements are satisfied.
// Leaving the shipping step fetches carrier rates exactly once; the step does
// not advance until the fetch resolves, and only one fetch runs at a time.
func (s *Service) Next(ctx context.Context, userID string) (State, error) {
	state, err := s.mutable(ctx, userID)
	if err != nil {
		return State{}, err
	}
	if s.stillBusy(state) {
		return State{}, ErrCheckoutBusy
	}
	if state.Step >= StepReview {
		return State{}, fmt.Errorf("%w: already on review", ErrWrongStep)
	}
	if !state.canProceed() {
		return State{}, ErrCannotProceed
	}

	if state.Step == StepShipping && !state.RatesFetched {
		markBusy(&state, s.clock())
		if err := s.save(ctx, &state); err != nil {
			return State{}, err
		}

		quote, err := s.fetchRates(ctx, userID, state.Shipper)
		clearBusy(&state)
		if err != nil {
			state.Error = "Could not prepare shipping options."
			if saveErr := s.save(ctx, &state); saveErr != nil {
				return State{}, saveErr
			}
			return State{}, err
		}

		state.Rates = quote.Rates
		recommended := quote.Recommended
		state.SelectedRate = &recommended
		state.RateWarning = quote.Warning
		state.RatesFetched = true
	}

	state.Step++
	state.Error = ""
	if err := s.save(ctx, &state); err != nil {
		return State{}, err
	}
	s.logger(ctx, "checkout.step.advanced", map[string]any{
		"userId": userID,
		"step":   int(state.Step),
	})
	return state, nil
}

// Previous steps back without ever re-triggering a rate fetch.
func (s *Service) Previous(ctx context.Context, userID string) (State, error) {
	state, err := s.mutable(ctx, userID)
	if err != nil {
		return State{}, err
	}
	if s.stillBusy(state) {
		return State{}, ErrCheckoutBusy
	}
	if state.Step <= StepShipping {
		return State{}, ErrCannotGoBack
	}
	state.Step--
	state.Error = ""
	if err := s.save(ctx, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

func (s *Service) fetchRates(ctx context.Context, userID string, address domain.Address) (shipping.RateQuote, error) {
	userCart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return shipping.RateQuote{}, err
	}
	if len(userCart.Items) == 0 {
		return shipping.RateQuote{}, ErrEmptyCart
	}

	catalog, err := s.loadCatalog(ctx, userCart.Items)
	if err != nil {
		return shipping.RateQuote{}, err
	}

	items := make([]shipping.RateItem, 0, len(userCart.Items))
	for _, line := range userCart.Items {
		product, _ := catalog.Product(line.ProductID)
		items = append(items, shipping.RateItem{
			Name:       product.Name,
			Quantity:   line.Quantity,
			PriceCents: s.pricing.UnitPrice(line, catalog),
			WeightOz:   product.WeightOz,
		})
	}
	return s.shipping.CalculateRates(ctx, address, items)
}

func (s *Service) loadCatalog(ctx context.Context, items []domain.CartItem) (pricing.SnapshotCatalog, error) {
	catalog := make(pricing.SnapshotCatalog, len(items))
	for _, line := range items {
		if _, ok := catalog[line.ProductID]; ok {
			continue
		}
		product, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("checkout: load product %s: %w", line.ProductID, err)
		}
		catalog[line.ProductID] = product
	}
	return catalog, nil
}

// Estimate computes the running totals for the review step.
func (s *Service) Estimate(ctx context.Context, userID string) (domain.CartEstimate, error) {
	state, err := s.Get(ctx, userID)
	if err != nil {
		return domain.CartEstimate{}, err
	}
	userCart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.CartEstimate{}, err
	}
	catalog, err := s.loadCatalog(ctx, userCart.Items)
	if err != nil {
		return domain.CartEstimate{}, err
	}

	subtotal := s.pricing.Subtotal(userCart.Items, catalog)
	tax := pricing.Tax(subtotal, s.taxBasisPoints)
	shippingCents := s.shippingCost(state, subtotal)
	return domain.CartEstimate{
		Currency: s.currency,
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shippingCents,
		Total:    subtotal + tax + shippingCents,
	}, nil
}

// shippingCost resolves the selected rate, or the flat fallback with free
// shipping over the threshold when no rate was resolved.
func (s *Service) shippingCost(state State, subtotal int64) int64 {
	if state.SelectedRate != nil {
		return state.SelectedRate.TotalCostCents
	}
	if subtotal >= s.freeShipThreshold {
		return 0
	}
	return s.fallbackShipCents
}

// PlaceOrder runs the final placement: totals, payment dispatch, order
// synthesis. The cart is cleared only after a successful payment and order
// write; any payment failure keeps the shopper on the payment step with the
// error visible.
func (s *Service) PlaceOrder(ctx context.Context, userID string) (PlacementResult, error) {
	state, err := s.mutable(ctx, userID)
	if err != nil {
		return PlacementResult{}, err
	}
	if s.stillBusy(state) {
		return PlacementResult{}, ErrCheckoutBusy
	}
	if state.Step != StepReview {
		return PlacementResult{}, fmt.Errorf("%w: place order from review", ErrWrongStep)
	}
	shippingCheck := State{Step: StepShipping, Shipper: state.Shipper}
	if !shippingCheck.canProceed() {
		return PlacementResult{}, fmt.Errorf("%w: shipping details incomplete", ErrCannotProceed)
	}

	userCart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return PlacementResult{}, err
	}
	if len(userCart.Items) == 0 {
		return PlacementResult{}, ErrEmptyCart
	}

	catalog, err := s.loadCatalog(ctx, userCart.Items)
	if err != nil {
		return PlacementResult{}, err
	}

	subtotal := s.pricing.Subtotal(userCart.Items, catalog)
	tax := pricing.Tax(subtotal, s.taxBasisPoints)
	shippingCents := s.shippingCost(state, subtotal)
	total := subtotal + tax + shippingCents

	orderID := s.idGen()
	orderNumber := orderNumberFor(orderID)

	markBusy(&state, s.clock())
	state.Status = StatusProcessing
	state.Error = ""
	if err := s.save(ctx, &state); err != nil {
		return PlacementResult{}, err
	}

	result, err := s.payments.Charge(ctx, state.Method, payments.Request{
		OrderRef:      orderID,
		AmountCents:   total,
		Currency:      s.currency,
		CustomerEmail: state.Shipper.Email,
		CustomerName:  state.Shipper.Name,
		Description:   "Order " + orderNumber,
		Card:          state.Card,
	})
	if err != nil {
		s.failPlacement(ctx, &state, "Payment could not be processed.")
		return PlacementResult{}, fmt.Errorf("checkout: dispatch payment: %w", err)
	}
	if !result.Succeeded {
		s.failPlacement(ctx, &state, result.Message())
		s.logger(ctx, "checkout.payment.failed", map[string]any{
			"userId":    userID,
			"cancelled": result.Cancelled(),
		})
		return PlacementResult{Payment: result}, nil
	}

	now := s.clock()
	order := domain.Order{
		ID:          orderID,
		OrderNumber: orderNumber,
		UserID:      userID,
		Currency:    s.currency,
		Items:       s.orderItems(userCart.Items, catalog),
		Subtotal:    subtotal,
		Tax:         tax,
		Shipping:    shippingCents,
		Total:       total,
		Status:      domain.OrderStatusPaid,
		Payment: domain.PaymentSnapshot{
			Method:    string(state.Method),
			PaymentID: result.PaymentID,
			PayerName: result.PayerName,
		},
		Shipment: domain.ShippingSnapshot{
			Address: state.Shipper,
			Rate:    state.SelectedRate,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Record(ctx, order); err != nil {
		s.failPlacement(ctx, &state, "Order could not be recorded; your payment was received. Please contact support.")
		return PlacementResult{Payment: result}, fmt.Errorf("checkout: record order: %w", err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger(ctx, "checkout.cart.clear_failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
	}

	clearBusy(&state)
	state.Status = StatusComplete
	if err := s.save(ctx, &state); err != nil {
		return PlacementResult{Order: &order, Payment: result}, err
	}

	s.logger(ctx, "checkout.order.placed", map[string]any{
		"userId":      userID,
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"totalCents":  order.Total,
	})
	return PlacementResult{Order: &order, Payment: result}, nil
}

// failPlacement returns the shopper to the payment step with the error
// visible; the checkout state and cart are preserved.
func (s *Service) failPlacement(ctx context.Context, state *State, message string) {
	clearBusy(state)
	state.Status = StatusActive
	state.Step = StepPayment
	state.Error = message
	if err := s.save(ctx, state); err != nil {
		s.logger(ctx, "checkout.state.save_failed", map[string]any{
			"userId": state.UserID,
			"error":  err.Error(),
		})
	}
}

// Reset abandons the current checkout.
func (s *Service) Reset(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("checkout: reset state: %w", err)
	}
	return nil
}

func (s *Service) orderItems(items []domain.CartItem, catalog pricing.Catalog) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, line := range items {
		product, _ := catalog.Product(line.ProductID)
		out = append(out, domain.OrderItem{
			ProductID:      line.ProductID,
			Name:           product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: s.pricing.UnitPrice(line, catalog),
			Customization:  line.Customization,
		})
	}
	return out
}

func orderNumberFor(orderID string) string {
	suffix := orderID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "PO-" + suffix
}
