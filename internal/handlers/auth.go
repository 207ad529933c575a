package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/patchline/api/internal/auth"
	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/requestctx"
	"github.com/patchline/api/internal/sessions"
)

// AuthHandlers serves registration, login, and token refresh. When a session
// scope resolver is provided, logins and refreshes also maintain the device's
// account slots.
type AuthHandlers struct {
	service *auth.Service
	scopes  SessionScopes
}

// NewAuthHandlers constructs the auth handler set. scopes may be nil when
// device session tracking is disabled.
func NewAuthHandlers(service *auth.Service, scopes SessionScopes) *AuthHandlers {
	return &AuthHandlers{service: service, scopes: scopes}
}

// PublicRoutes registers endpoints that do not require a token.
func (h *AuthHandlers) PublicRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
}

// PrivateRoutes registers endpoints behind the authenticator.
func (h *AuthHandlers) PrivateRoutes(r chi.Router) {
	r.Get("/me", h.profile)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	user, err := h.service.Register(ctx, auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	user, pair, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	h.recordSession(r, user, pair)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user":   user,
		"tokens": pair,
	})
}

// recordSession upserts the device's account slot after a successful login.
// Session bookkeeping never blocks the login itself.
func (h *AuthHandlers) recordSession(r *http.Request, user domain.User, pair auth.TokenPair) {
	ctx := r.Context()
	scope := strings.TrimSpace(r.Header.Get(deviceScopeHeader))
	if h.scopes == nil || scope == "" {
		return
	}
	store, err := h.scopes(scope)
	if err != nil {
		requestctx.Logger(ctx).Warn("session store unavailable", zap.Error(err))
		return
	}
	slot := sessions.AccountCustomer
	if user.Role == domain.RoleEmployee {
		slot = sessions.AccountEmployee
	}
	err = store.StoreAccountAuthData(ctx, slot, sessions.AuthData{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         string(user.Role),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	if err != nil {
		requestctx.Logger(ctx).Warn("session record failed", zap.Error(err))
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	store, slot, tracked := h.trackedRefresh(r, req.RefreshToken)
	if tracked && !store.AllowRefresh() {
		httpx.WriteError(ctx, w, httpx.NewError("refresh_limited", "too many refresh attempts, try again shortly", http.StatusTooManyRequests))
		return
	}

	pair, err := h.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	if tracked {
		data, dataErr := store.AccountAuthData(ctx, slot)
		if dataErr == nil {
			data.AccessToken = pair.AccessToken
			data.LastActivity = time.Time{}
			if storeErr := store.StoreAccountAuthData(ctx, slot, data); storeErr != nil {
				requestctx.Logger(ctx).Warn("session refresh update failed", zap.Error(storeErr))
			}
		}
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// trackedRefresh resolves the device session slot holding the supplied
// refresh token, when session tracking applies to this request.
func (h *AuthHandlers) trackedRefresh(r *http.Request, refreshToken string) (*sessions.Store, sessions.AccountType, bool) {
	ctx := r.Context()
	scope := strings.TrimSpace(r.Header.Get(deviceScopeHeader))
	if h.scopes == nil || scope == "" {
		return nil, "", false
	}
	store, err := h.scopes(scope)
	if err != nil {
		requestctx.Logger(ctx).Warn("session store unavailable", zap.Error(err))
		return nil, "", false
	}
	current, data, err := store.CurrentAccount(ctx)
	if err != nil || data.RefreshToken != refreshToken {
		return nil, "", false
	}
	return store, current, true
}

func (h *AuthHandlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requestctx.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	user, err := h.service.Profile(ctx, identity.UserID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "an account with that email already exists", http.StatusConflict))
	case errors.Is(err, auth.ErrInvalidEmail):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_email", "email address is not valid", http.StatusBadRequest))
	case errors.Is(err, auth.ErrWeakPassword):
		httpx.WriteError(ctx, w, httpx.NewError("weak_password", "password does not meet requirements", http.StatusBadRequest))
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
	case errors.Is(err, auth.ErrInvalidToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "token is invalid or expired", http.StatusUnauthorized))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
