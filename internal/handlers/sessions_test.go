package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/patchline/api/internal/sessions"
)

type sessionFixture struct {
	router chi.Router
	stores map[string]*sessions.Store
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	kv := sessions.NewMemoryKV()
	stores := make(map[string]*sessions.Store)
	var mu sync.Mutex

	scopes := func(scope string) (*sessions.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		if store, ok := stores[scope]; ok {
			return store, nil
		}
		store, err := sessions.NewStore(sessions.StoreDeps{KV: kv, Scope: scope})
		if err != nil {
			return nil, err
		}
		stores[scope] = store
		return store, nil
	}

	router := chi.NewRouter()
	router.Route("/auth/sessions", NewSessionHandlers(scopes).Routes)
	return &sessionFixture{router: router, stores: stores}
}

func scoped(req *http.Request, scope string) *http.Request {
	req.Header.Set(deviceScopeHeader, scope)
	return req
}

func TestSessionsRequireDeviceHeader(t *testing.T) {
	f := newSessionFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "missing_device_id" {
		t.Fatalf("expected missing_device_id, got %v", payload["error"])
	}
}

func TestSessionsReflectStoredAccounts(t *testing.T) {
	f := newSessionFixture(t)

	// Seeding goes through the handler's own scope resolver so the GET sees
	// the same store.
	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, scoped(req, "device-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	store := f.stores["device-1"]
	if store == nil {
		t.Fatal("expected the scope resolver to have built a store")
	}
	if err := store.StoreAccountAuthData(context.Background(), sessions.AccountCustomer, sessions.AuthData{
		UserID: "user-1",
		Email:  "user-1@example.com",
		Role:   "customer",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, scoped(req, "device-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Current  string `json:"current"`
		Customer bool   `json:"customer"`
		Employee bool   `json:"employee"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Current != "customer" || !payload.Customer || payload.Employee {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestSessionsSwitchOntoEmptySlotConflicts(t *testing.T) {
	f := newSessionFixture(t)

	body, _ := json.Marshal(map[string]string{"account": "employee"})
	req := httptest.NewRequest(http.MethodPost, "/auth/sessions/switch", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, scoped(req, "device-1"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestActivityMiddlewareBumpsLastActivity(t *testing.T) {
	kv := sessions.NewMemoryKV()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := sessions.NewStore(sessions.StoreDeps{
		KV:    kv,
		Scope: "device-9",
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StoreAccountAuthData(context.Background(), sessions.AccountCustomer, sessions.AuthData{
		UserID: "user-9",
		Role:   "customer",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	h := NewSessionHandlers(func(scope string) (*sessions.Store, error) {
		if scope != "device-9" {
			t.Fatalf("unexpected scope %q", scope)
		}
		return store, nil
	})

	router := chi.NewRouter()
	router.Group(func(pr chi.Router) {
		pr.Use(h.Activity)
		pr.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	now = now.Add(45 * time.Minute)
	req := authed(httptest.NewRequest(http.MethodGet, "/me", nil), "user-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(req, "device-9"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	data, err := store.AccountAuthData(context.Background(), sessions.AccountCustomer)
	if err != nil {
		t.Fatalf("AccountAuthData: %v", err)
	}
	if !data.LastActivity.Equal(now) {
		t.Fatalf("expected last activity %v, got %v", now, data.LastActivity)
	}
}

func TestActivityMiddlewareSkipsFailedRequests(t *testing.T) {
	kv := sessions.NewMemoryKV()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seeded := now
	store, err := sessions.NewStore(sessions.StoreDeps{
		KV:    kv,
		Scope: "device-9",
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StoreAccountAuthData(context.Background(), sessions.AccountCustomer, sessions.AuthData{
		UserID: "user-9",
		Role:   "customer",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	h := NewSessionHandlers(func(string) (*sessions.Store, error) { return store, nil })
	router := chi.NewRouter()
	router.Group(func(pr chi.Router) {
		pr.Use(h.Activity)
		pr.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	})

	now = now.Add(45 * time.Minute)
	req := authed(httptest.NewRequest(http.MethodGet, "/me", nil), "user-9")
	router.ServeHTTP(httptest.NewRecorder(), scoped(req, "device-9"))

	data, err := store.AccountAuthData(context.Background(), sessions.AccountCustomer)
	if err != nil {
		t.Fatalf("AccountAuthData: %v", err)
	}
	if !data.LastActivity.Equal(seeded) {
		t.Fatalf("expected last activity to stay %v, got %v", seeded, data.LastActivity)
	}
}

func TestSessionsLogoutClearsSlot(t *testing.T) {
	f := newSessionFixture(t)

	// Resolve the store first, then seed it.
	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	f.router.ServeHTTP(httptest.NewRecorder(), scoped(req, "device-2"))
	store := f.stores["device-2"]
	if err := store.StoreAccountAuthData(context.Background(), sessions.AccountCustomer, sessions.AuthData{UserID: "user-2"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"account": "customer"})
	req = httptest.NewRequest(http.MethodPost, "/auth/sessions/logout", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, scoped(req, "device-2"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}

	ok, err := store.IsAccountAuthenticated(context.Background(), sessions.AccountCustomer)
	if err != nil {
		t.Fatalf("check slot: %v", err)
	}
	if ok {
		t.Fatal("expected the customer slot to be cleared")
	}
}
