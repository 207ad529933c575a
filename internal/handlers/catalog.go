package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/repositories"
)

// CatalogHandlers serves the public product catalog.
type CatalogHandlers struct {
	products repositories.ProductRepository
}

// NewCatalogHandlers constructs the catalog handler set.
func NewCatalogHandlers(products repositories.ProductRepository) *CatalogHandlers {
	return &CatalogHandlers{products: products}
}

// Routes registers catalog endpoints on the router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{productID}", h.get)
}

func (h *CatalogHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	activeOnly := r.URL.Query().Get("includeInactive") != "true"
	products, err := h.products.List(ctx, activeOnly)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "failed to load catalog", http.StatusInternalServerError))
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *CatalogHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.products.GetByID(ctx, domain.ProductID(chi.URLParam(r, "productID")))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "failed to load product", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}
