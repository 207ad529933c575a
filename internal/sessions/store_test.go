package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T, kv KV, now *time.Time, invalidator Invalidator) *Store {
	t.Helper()
	store, err := NewStore(StoreDeps{
		KV:          kv,
		Scope:       "device-1",
		Clock:       func() time.Time { return *now },
		Invalidator: invalidator,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func customerAuth(now time.Time) AuthData {
	return AuthData{
		UserID:       "usr_1",
		Email:        "shopper@example.com",
		Role:         "customer",
		AccessToken:  "at_1",
		RefreshToken: "rt_1",
		LastActivity: now,
	}
}

func employeeAuth(now time.Time) AuthData {
	return AuthData{
		UserID:       "usr_2",
		Email:        "staff@example.com",
		Role:         "admin",
		AccessToken:  "at_2",
		RefreshToken: "rt_2",
		LastActivity: now,
	}
}

func TestStoreAccountSetsCurrentAndKeepsOtherSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, NewMemoryKV(), &now, nil)

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(now)); err != nil {
		t.Fatalf("store customer: %v", err)
	}
	if err := store.StoreAccountAuthData(ctx, AccountEmployee, employeeAuth(now)); err != nil {
		t.Fatalf("store employee: %v", err)
	}

	current, data, err := store.CurrentAccount(ctx)
	if err != nil {
		t.Fatalf("CurrentAccount: %v", err)
	}
	if current != AccountEmployee || data.UserID != "usr_2" {
		t.Fatalf("expected employee current, got %s %s", current, data.UserID)
	}

	ok, err := store.IsAccountAuthenticated(ctx, AccountCustomer)
	if err != nil {
		t.Fatalf("IsAccountAuthenticated: %v", err)
	}
	if !ok {
		t.Fatal("customer slot must survive an employee login")
	}
}

func TestIsAccountAuthenticatedIdleBoundary(t *testing.T) {
	ctx := context.Background()
	loginAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := loginAt
	store := newTestStore(t, NewMemoryKV(), &now, nil)

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(loginAt)); err != nil {
		t.Fatalf("store customer: %v", err)
	}

	now = loginAt.Add(29 * 24 * time.Hour)
	ok, err := store.IsAccountAuthenticated(ctx, AccountCustomer)
	if err != nil {
		t.Fatalf("IsAccountAuthenticated: %v", err)
	}
	if !ok {
		t.Fatal("session must still be valid after 29 days idle")
	}

	now = loginAt.Add(30*24*time.Hour + time.Second)
	ok, err = store.IsAccountAuthenticated(ctx, AccountCustomer)
	if err != nil {
		t.Fatalf("IsAccountAuthenticated: %v", err)
	}
	if ok {
		t.Fatal("session must be invalid one second past the 30 day window")
	}
}

func TestSwitchAccountOnlyOntoAuthenticatedSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, NewMemoryKV(), &now, nil)

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(now)); err != nil {
		t.Fatalf("store customer: %v", err)
	}

	if err := store.SwitchAccount(ctx, AccountEmployee); !errors.Is(err, ErrAccountNotAuthenticated) {
		t.Fatalf("expected ErrAccountNotAuthenticated, got %v", err)
	}

	if err := store.StoreAccountAuthData(ctx, AccountEmployee, employeeAuth(now)); err != nil {
		t.Fatalf("store employee: %v", err)
	}
	if err := store.SwitchAccount(ctx, AccountCustomer); err != nil {
		t.Fatalf("SwitchAccount: %v", err)
	}

	current, data, err := store.CurrentAccount(ctx)
	if err != nil {
		t.Fatalf("CurrentAccount: %v", err)
	}
	if current != AccountCustomer || data.UserID != "usr_1" {
		t.Fatalf("expected customer current, got %s %s", current, data.UserID)
	}
}

func TestLogoutAccountFallsBackToOtherSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var invalidated []string
	store := newTestStore(t, NewMemoryKV(), &now, func(_ context.Context, data AuthData) error {
		invalidated = append(invalidated, data.UserID)
		return nil
	})

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(now)); err != nil {
		t.Fatalf("store customer: %v", err)
	}
	if err := store.StoreAccountAuthData(ctx, AccountEmployee, employeeAuth(now)); err != nil {
		t.Fatalf("store employee: %v", err)
	}

	if err := store.LogoutAccount(ctx, AccountEmployee); err != nil {
		t.Fatalf("LogoutAccount: %v", err)
	}
	if len(invalidated) != 1 || invalidated[0] != "usr_2" {
		t.Fatalf("expected remote invalidation of usr_2, got %v", invalidated)
	}

	current, _, err := store.CurrentAccount(ctx)
	if err != nil {
		t.Fatalf("CurrentAccount: %v", err)
	}
	if current != AccountCustomer {
		t.Fatalf("expected pointer to fall back to customer, got %s", current)
	}
}

func TestLogoutAccountRemoteFailureStillClearsLocally(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, NewMemoryKV(), &now, func(context.Context, AuthData) error {
		return errors.New("auth backend unreachable")
	})

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(now)); err != nil {
		t.Fatalf("store customer: %v", err)
	}
	if err := store.LogoutAccount(ctx, AccountCustomer); err != nil {
		t.Fatalf("LogoutAccount must not propagate remote failure: %v", err)
	}

	ok, err := store.IsAccountAuthenticated(ctx, AccountCustomer)
	if err != nil {
		t.Fatalf("IsAccountAuthenticated: %v", err)
	}
	if ok {
		t.Fatal("slot must be cleared even when remote invalidation fails")
	}
	if _, _, err := store.CurrentAccount(ctx); !errors.Is(err, ErrAccountNotAuthenticated) {
		t.Fatalf("expected no current account, got %v", err)
	}
}

func TestLegacyKeyMigratedOnceByRole(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	store := newTestStore(t, kv, &now, nil)

	legacy, err := json.Marshal(employeeAuth(now))
	if err != nil {
		t.Fatalf("marshal legacy: %v", err)
	}
	if err := kv.Set(ctx, "sessions:device-1:auth", string(legacy)); err != nil {
		t.Fatalf("seed legacy key: %v", err)
	}

	ok, err := store.IsAccountAuthenticated(ctx, AccountEmployee)
	if err != nil {
		t.Fatalf("IsAccountAuthenticated: %v", err)
	}
	if !ok {
		t.Fatal("legacy admin session must land in the employee slot")
	}

	if _, found, _ := kv.Get(ctx, "sessions:device-1:auth"); found {
		t.Fatal("legacy key must be consumed by migration")
	}

	current, _, err := store.CurrentAccount(ctx)
	if err != nil {
		t.Fatalf("CurrentAccount: %v", err)
	}
	if current != AccountEmployee {
		t.Fatalf("expected migrated session current, got %s", current)
	}
}

func TestLegacyMigrationNeverOverwritesOccupiedSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	store := newTestStore(t, kv, &now, nil)

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(now)); err != nil {
		t.Fatalf("store customer: %v", err)
	}

	stale := customerAuth(now)
	stale.UserID = "usr_stale"
	legacy, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal legacy: %v", err)
	}
	if err := kv.Set(ctx, "sessions:device-1:auth", string(legacy)); err != nil {
		t.Fatalf("seed legacy key: %v", err)
	}

	data, err := store.AccountAuthData(ctx, AccountCustomer)
	if err != nil {
		t.Fatalf("AccountAuthData: %v", err)
	}
	if data.UserID != "usr_1" {
		t.Fatalf("occupied slot overwritten by legacy data: %s", data.UserID)
	}
	if _, found, _ := kv.Get(ctx, "sessions:device-1:auth"); found {
		t.Fatal("legacy key must be consumed even when the slot is occupied")
	}
}

func TestClearAllAccountsWipesEverything(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, NewMemoryKV(), &now, nil)

	if err := store.StoreAccountAuthData(ctx, AccountCustomer, customerAuth(now)); err != nil {
		t.Fatalf("store customer: %v", err)
	}
	if err := store.StoreAccountAuthData(ctx, AccountEmployee, employeeAuth(now)); err != nil {
		t.Fatalf("store employee: %v", err)
	}
	if err := store.ClearAllAccounts(ctx); err != nil {
		t.Fatalf("ClearAllAccounts: %v", err)
	}

	for _, account := range []AccountType{AccountCustomer, AccountEmployee} {
		ok, err := store.IsAccountAuthenticated(ctx, account)
		if err != nil {
			t.Fatalf("IsAccountAuthenticated(%s): %v", account, err)
		}
		if ok {
			t.Fatalf("%s slot must be gone after clear", account)
		}
	}
}

func TestRefreshLimiterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewRefreshLimiter(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("attempt %d must be allowed", i+1)
		}
	}
	if limiter.Allow() {
		t.Fatal("fourth attempt inside the window must be blocked")
	}

	now = now.Add(30 * time.Second)
	if !limiter.Allow() {
		t.Fatal("a new window must open after 30 seconds")
	}
}

func TestRefreshLimiterReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewRefreshLimiter(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		limiter.Allow()
	}
	limiter.Reset()
	if !limiter.Allow() {
		t.Fatal("reset must restore the attempt budget")
	}
}
