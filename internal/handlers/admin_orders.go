package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/orders"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/pagination"
)

// AdminOrderHandlers serves the employee-facing order management surface.
// The router mounts these behind the employee role check.
type AdminOrderHandlers struct {
	orders *orders.Service
}

// NewAdminOrderHandlers constructs the admin order handler set.
func NewAdminOrderHandlers(service *orders.Service) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: service}
}

// Routes registers admin order endpoints on the router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Patch("/{orderID}/status", h.updateStatus)
}

func (h *AdminOrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := pagination.Parse(r)
	if err != nil {
		writePaginationError(w, r, err)
		return
	}

	page, err := h.orders.List(ctx, params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to list orders", http.StatusInternalServerError))
		return
	}
	if page.Orders == nil {
		page.Orders = []domain.Order{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"orders":        page.Orders,
		"totalCount":    page.TotalCount,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *AdminOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "orderID"), domain.OrderStatus(req.Status))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, orders.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, orders.ErrInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "unknown order status", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
