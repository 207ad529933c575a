package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/cart"
	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/requestctx"
)

// CartHandlers serves the authenticated shopper's cart.
type CartHandlers struct {
	carts *cart.Service
}

// NewCartHandlers constructs the cart handler set.
func NewCartHandlers(carts *cart.Service) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes registers cart endpoints on the router.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Delete("/", h.clear)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateQuantity)
	r.Post("/items/{itemID}/placement", h.changePlacement)
	r.Delete("/items/{itemID}", h.removeItem)
}

func (h *CartHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	current, err := h.carts.Get(ctx, identity.UserID)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, current)
}

type addItemRequest struct {
	ProductID     string                `json:"productId"`
	Quantity      int                   `json:"quantity"`
	Customization *domain.Customization `json:"customization,omitempty"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	updated, err := h.carts.AddItem(ctx, identity.UserID, cart.AddItemInput{
		ProductID:     domain.ProductID(req.ProductID),
		Quantity:      req.Quantity,
		Customization: req.Customization,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, updated)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	updated, err := h.carts.UpdateQuantity(ctx, identity.UserID, chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

type changePlacementRequest struct {
	DesignIndex int    `json:"designIndex"`
	Placement   string `json:"placement"`
}

func (h *CartHandlers) changePlacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req changePlacementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	updated, err := h.carts.ChangePlacement(ctx, identity.UserID, chi.URLParam(r, "itemID"), req.DesignIndex, domain.ParsePlacement(req.Placement))
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	updated, err := h.carts.RemoveItem(ctx, identity.UserID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *CartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if err := h.carts.Clear(ctx, identity.UserID); err != nil {
		writeCartError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, cart.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "quantity must be a positive integer", http.StatusBadRequest))
	case errors.Is(err, cart.ErrInvalidCustomization):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_customization", "customization must select exactly one design mode", http.StatusBadRequest))
	case errors.Is(err, cart.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "product is not available", http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
