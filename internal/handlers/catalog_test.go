package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/repositories"
)

type stubProductRepo struct {
	listFunc func(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	getFunc  func(ctx context.Context, id domain.ProductID) (domain.Product, error)
}

func (s *stubProductRepo) List(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	return s.listFunc(ctx, activeOnly)
}

func (s *stubProductRepo) GetByID(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	return s.getFunc(ctx, id)
}

func newCatalogRouter(repo repositories.ProductRepository) chi.Router {
	router := chi.NewRouter()
	router.Route("/catalog", NewCatalogHandlers(repo).Routes)
	return router
}

func TestCatalogListDefaultsToActiveOnly(t *testing.T) {
	var gotActiveOnly bool
	repo := &stubProductRepo{
		listFunc: func(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
			gotActiveOnly = activeOnly
			return []domain.Product{{ID: "p-1", Name: "Dad Hat", PriceCents: 2500, Active: true}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	rr := httptest.NewRecorder()
	newCatalogRouter(repo).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !gotActiveOnly {
		t.Fatal("expected active-only listing by default")
	}

	var payload struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Products) != 1 || payload.Products[0].ID != "p-1" {
		t.Fatalf("unexpected products payload %+v", payload.Products)
	}
}

func TestCatalogListIncludeInactive(t *testing.T) {
	var gotActiveOnly bool
	repo := &stubProductRepo{
		listFunc: func(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
			gotActiveOnly = activeOnly
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/catalog?includeInactive=true", nil)
	rr := httptest.NewRecorder()
	newCatalogRouter(repo).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotActiveOnly {
		t.Fatal("expected inactive products to be included")
	}
}

func TestCatalogGetNotFound(t *testing.T) {
	repo := &stubProductRepo{
		getFunc: func(ctx context.Context, id domain.ProductID) (domain.Product, error) {
			return domain.Product{}, repositories.ErrNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/catalog/missing", nil)
	rr := httptest.NewRecorder()
	newCatalogRouter(repo).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", payload["error"])
	}
}

func TestCatalogGetSuccess(t *testing.T) {
	repo := &stubProductRepo{
		getFunc: func(ctx context.Context, id domain.ProductID) (domain.Product, error) {
			if id != "p-9" {
				t.Fatalf("unexpected product id %q", id)
			}
			return domain.Product{ID: "p-9", Name: "Trucker Cap", PriceCents: 2800, Active: true}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/catalog/p-9", nil)
	rr := httptest.NewRecorder()
	newCatalogRouter(repo).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var product domain.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if product.Name != "Trucker Cap" {
		t.Fatalf("unexpected product %+v", product)
	}
}
