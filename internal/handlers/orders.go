package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/orders"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/pagination"
	"github.com/patchline/api/internal/platform/requestctx"
)

// OrderHandlers serves a shopper's own order history.
type OrderHandlers struct {
	orders *orders.Service
}

// NewOrderHandlers constructs the customer-facing order handler set.
func NewOrderHandlers(service *orders.Service) *OrderHandlers {
	return &OrderHandlers{orders: service}
}

// Routes registers order history endpoints on the router.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.Parse(r)
	if err != nil {
		writePaginationError(w, r, err)
		return
	}

	list, nextToken, err := h.orders.ListByUser(ctx, identity.UserID, params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to list orders", http.StatusInternalServerError))
		return
	}
	if list == nil {
		list = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"orders":        list,
		"nextPageToken": nextToken,
	})
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load order", http.StatusInternalServerError))
		return
	}
	// Shoppers only ever see their own orders.
	if order.UserID != identity.UserID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func writePaginationError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_page_size", "pageSize must be a positive integer", http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_page_token", "pageToken could not be decoded", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid pagination parameters", http.StatusBadRequest))
	}
}
