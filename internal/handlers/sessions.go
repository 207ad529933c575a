package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/requestctx"
	"github.com/patchline/api/internal/sessions"
)

// deviceScopeHeader identifies the device whose account slots a session
// request operates on.
const deviceScopeHeader = "X-Device-ID"

// SessionScopes resolves the session store for a device scope.
type SessionScopes func(scope string) (*sessions.Store, error)

// SessionHandlers serves the multi-account session surface for one device.
type SessionHandlers struct {
	scopes SessionScopes
}

// NewSessionHandlers constructs the session handler set.
func NewSessionHandlers(scopes SessionScopes) *SessionHandlers {
	return &SessionHandlers{scopes: scopes}
}

// Activity stamps the caller's account slot after each successful
// authenticated request, so idle-expiry reflects real traffic rather than
// just token refreshes. Requests without a device scope pass through
// untouched.
func (h *SessionHandlers) Activity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := requestctx.IdentityFrom(ctx)
		scope := strings.TrimSpace(r.Header.Get(deviceScopeHeader))
		if !ok || scope == "" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			return
		}

		store, err := h.scopes(scope)
		if err != nil {
			requestctx.Logger(ctx).Warn("session activity store open failed", zap.Error(err))
			return
		}
		account := sessions.AccountCustomer
		if domain.ParseRole(identity.Role) == domain.RoleEmployee {
			account = sessions.AccountEmployee
		}
		if err := store.TouchAccount(ctx, account); err != nil && !errors.Is(err, sessions.ErrAccountNotAuthenticated) {
			requestctx.Logger(ctx).Warn("session activity touch failed", zap.Error(err))
		}
	})
}

// Routes registers session endpoints on the router.
func (h *SessionHandlers) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Post("/switch", h.switchAccount)
	r.Post("/logout", h.logout)
	r.Post("/logout-all", h.logoutAll)
}

func (h *SessionHandlers) store(w http.ResponseWriter, r *http.Request) (*sessions.Store, bool) {
	ctx := r.Context()
	scope := strings.TrimSpace(r.Header.Get(deviceScopeHeader))
	if scope == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_device_id", "X-Device-ID header is required", http.StatusBadRequest))
		return nil, false
	}
	store, err := h.scopes(scope)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to open session store", http.StatusInternalServerError))
		return nil, false
	}
	return store, true
}

func (h *SessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	current, _, err := store.CurrentAccount(ctx)
	if err != nil && !errors.Is(err, sessions.ErrAccountNotAuthenticated) {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load sessions", http.StatusInternalServerError))
		return
	}

	customer, err := store.IsAccountAuthenticated(ctx, sessions.AccountCustomer)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load sessions", http.StatusInternalServerError))
		return
	}
	employee, err := store.IsAccountAuthenticated(ctx, sessions.AccountEmployee)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load sessions", http.StatusInternalServerError))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"current":  string(current),
		"customer": customer,
		"employee": employee,
	})
}

type sessionAccountRequest struct {
	Account string `json:"account"`
}

func (h *SessionHandlers) switchAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var req sessionAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	if err := store.SwitchAccount(ctx, sessions.AccountType(req.Account)); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var req sessionAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	if err := store.LogoutAccount(ctx, sessions.AccountType(req.Account)); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	if err := store.LogoutAll(ctx); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, sessions.ErrUnknownAccountType):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_account_type", "account must be customer or employee", http.StatusBadRequest))
	case errors.Is(err, sessions.ErrAccountNotAuthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_authenticated", "that account is not signed in on this device", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
