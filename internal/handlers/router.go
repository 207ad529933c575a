package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/patchline/api/internal/auth"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/observability"
)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Logger   *zap.Logger
	Auth     *AuthHandlers
	Catalog  *CatalogHandlers
	Cart     *CartHandlers
	Checkout *CheckoutHandlers
	Orders   *OrderHandlers
	Admin    *AdminOrderHandlers
	Sessions *SessionHandlers

	Authenticator func(http.Handler) http.Handler
}

// NewRouter constructs the chi router with shared middleware and all route
// groups mounted under the API prefix.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(defaultTimeout))
	if deps.Logger != nil {
		r.Use(observability.InjectLoggerMiddleware(deps.Logger))
	}
	r.Use(observability.RequestLoggerMiddleware())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", health)

	r.Route(defaultAPIPrefix, func(api chi.Router) {
		if deps.Catalog != nil {
			api.Route("/catalog", deps.Catalog.Routes)
		}
		if deps.Auth != nil {
			api.Route("/auth", func(ar chi.Router) {
				deps.Auth.PublicRoutes(ar)
				if deps.Authenticator != nil {
					ar.Group(func(pr chi.Router) {
						pr.Use(deps.Authenticator)
						if deps.Sessions != nil {
							pr.Use(deps.Sessions.Activity)
						}
						deps.Auth.PrivateRoutes(pr)
						if deps.Sessions != nil {
							pr.Route("/sessions", deps.Sessions.Routes)
						}
					})
				}
			})
		}

		api.Group(func(private chi.Router) {
			if deps.Authenticator != nil {
				private.Use(deps.Authenticator)
			}
			if deps.Sessions != nil {
				private.Use(deps.Sessions.Activity)
			}
			if deps.Cart != nil {
				private.Route("/cart", deps.Cart.Routes)
			}
			if deps.Checkout != nil {
				private.Route("/checkout", deps.Checkout.Routes)
			}
			if deps.Orders != nil {
				private.Route("/orders", deps.Orders.Routes)
			}
			if deps.Admin != nil {
				private.Group(func(admin chi.Router) {
					admin.Use(auth.RequireEmployee)
					admin.Route("/admin/orders", deps.Admin.Routes)
				})
			}
		})
	})

	return r
}
