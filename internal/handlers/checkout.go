package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/checkout"
	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/payments"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/requestctx"
)

// CheckoutHandlers serves the multi-step checkout flow.
type CheckoutHandlers struct {
	checkouts *checkout.Service
}

// NewCheckoutHandlers constructs the checkout handler set.
func NewCheckoutHandlers(checkouts *checkout.Service) *CheckoutHandlers {
	return &CheckoutHandlers{checkouts: checkouts}
}

// Routes registers checkout endpoints on the router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Delete("/", h.reset)
	r.Put("/shipper", h.setShipper)
	r.Put("/payment", h.setPayment)
	r.Post("/rate", h.selectRate)
	r.Post("/next", h.next)
	r.Post("/previous", h.previous)
	r.Get("/estimate", h.estimate)
	r.Post("/place", h.place)
}

func (h *CheckoutHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	state, err := h.checkouts.Get(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

func (h *CheckoutHandlers) setShipper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var shipper domain.Address
	if err := json.NewDecoder(r.Body).Decode(&shipper); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	state, err := h.checkouts.SetShipper(ctx, identity.UserID, shipper)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

type setPaymentRequest struct {
	Method string                `json:"method"`
	Card   *payments.CardDetails `json:"card,omitempty"`
}

func (h *CheckoutHandlers) setPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req setPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	method, err := payments.ParseMethod(req.Method)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_method", "unsupported payment method", http.StatusBadRequest))
		return
	}

	state, err := h.checkouts.SetPayment(ctx, identity.UserID, method, req.Card)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

type selectRateRequest struct {
	ServiceCode string `json:"serviceCode"`
}

func (h *CheckoutHandlers) selectRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req selectRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	state, err := h.checkouts.SelectRate(ctx, identity.UserID, req.ServiceCode)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

func (h *CheckoutHandlers) next(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	state, err := h.checkouts.Next(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

func (h *CheckoutHandlers) previous(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	state, err := h.checkouts.Previous(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

func (h *CheckoutHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	estimate, err := h.checkouts.Estimate(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, estimate)
}

func (h *CheckoutHandlers) place(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	result, err := h.checkouts.PlaceOrder(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	if result.Order == nil {
		// Payment did not succeed. The checkout state keeps the failure
		// message so the client can retry from the payment step.
		status := http.StatusPaymentRequired
		code := "payment_failed"
		if result.Payment.Cancelled() {
			code = "payment_cancelled"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, result.Payment.Message(), status))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"order":     result.Order,
		"paymentId": result.Payment.PaymentID,
	})
}

func (h *CheckoutHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if err := h.checkouts.Reset(ctx, identity.UserID); err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, checkout.ErrCheckoutBusy):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_busy", "another checkout operation is in progress", http.StatusConflict))
	case errors.Is(err, checkout.ErrCannotProceed):
		httpx.WriteError(ctx, w, httpx.NewError("cannot_proceed", "current step requirements are not met", http.StatusUnprocessableEntity))
	case errors.Is(err, checkout.ErrCannotGoBack):
		httpx.WriteError(ctx, w, httpx.NewError("cannot_go_back", "already on the first step", http.StatusUnprocessableEntity))
	case errors.Is(err, checkout.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, checkout.ErrWrongStep):
		httpx.WriteError(ctx, w, httpx.NewError("wrong_step", "operation is not valid on the current step", http.StatusUnprocessableEntity))
	case errors.Is(err, checkout.ErrRateNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("rate_not_found", "selected shipping rate was not quoted", http.StatusNotFound))
	case errors.Is(err, checkout.ErrCheckoutComplete):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_complete", "checkout is already complete", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
