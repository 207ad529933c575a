package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patchline/api/internal/domain"
)

// AccountType names the two session slots a device can hold at once.
type AccountType string

const (
	// AccountCustomer is the storefront shopper slot.
	AccountCustomer AccountType = "customer"
	// AccountEmployee is the back-office slot.
	AccountEmployee AccountType = "employee"
)

const defaultMaxIdle = 30 * 24 * time.Hour

// ErrUnknownAccountType is returned for any slot name other than the two
// supported ones.
var ErrUnknownAccountType = errors.New("sessions: unknown account type")

// ErrAccountNotAuthenticated is returned when an operation targets a slot
// with no valid session.
var ErrAccountNotAuthenticated = errors.New("sessions: account not authenticated")

// AuthData is one account's persisted session material.
type AuthData struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	LastActivity time.Time `json:"lastActivity"`
}

// accountsState is the JSON document persisted per device scope. Both slots
// and the current pointer live in one document so a load sees a consistent
// view.
type accountsState struct {
	Customer *AuthData   `json:"customer,omitempty"`
	Employee *AuthData   `json:"employee,omitempty"`
	Current  AccountType `json:"current,omitempty"`
}

func (s *accountsState) slot(account AccountType) *AuthData {
	switch account {
	case AccountCustomer:
		return s.Customer
	case AccountEmployee:
		return s.Employee
	default:
		return nil
	}
}

func (s *accountsState) setSlot(account AccountType, data *AuthData) {
	switch account {
	case AccountCustomer:
		s.Customer = data
	case AccountEmployee:
		s.Employee = data
	}
}

// Invalidator revokes a session server-side. Failures are logged and never
// block a local logout.
type Invalidator func(ctx context.Context, data AuthData) error

// StoreDeps configures a Store.
type StoreDeps struct {
	KV          KV
	Scope       string
	MaxIdle     time.Duration
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Invalidator Invalidator
}

// Store manages the two account slots and the current-account pointer for
// one device scope.
type Store struct {
	kv          KV
	scope       string
	maxIdle     time.Duration
	clock       func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	invalidator Invalidator
	refresh     *RefreshLimiter
}

// NewStore constructs a Store over the supplied KV.
func NewStore(deps StoreDeps) (*Store, error) {
	if deps.KV == nil {
		return nil, errors.New("sessions: kv storage is required")
	}
	scope := strings.TrimSpace(deps.Scope)
	if scope == "" {
		return nil, errors.New("sessions: scope is required")
	}
	maxIdle := deps.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Store{
		kv:          deps.KV,
		scope:       scope,
		maxIdle:     maxIdle,
		clock:       func() time.Time { return clock().UTC() },
		logger:      logger,
		invalidator: deps.Invalidator,
		refresh:     NewRefreshLimiter(clock),
	}, nil
}

func (s *Store) stateKey() string {
	return fmt.Sprintf("sessions:%s:accounts", s.scope)
}

func (s *Store) legacyKey() string {
	return fmt.Sprintf("sessions:%s:auth", s.scope)
}

// ParseAccountType normalises a slot name.
func ParseAccountType(raw string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "customer":
		return AccountCustomer, nil
	case "employee", "admin", "seller", "staff":
		return AccountEmployee, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAccountType, raw)
	}
}

// load reads the persisted state, running the one-time legacy migration on
// the way. Migration is idempotent: the legacy key is consumed exactly once
// and never overwrites an occupied slot.
func (s *Store) load(ctx context.Context) (*accountsState, error) {
	state := &accountsState{}
	raw, found, err := s.kv.Get(ctx, s.stateKey())
	if err != nil {
		return nil, err
	}
	if found {
		if err := json.Unmarshal([]byte(raw), state); err != nil {
			s.logger(ctx, "sessions.state.corrupt", map[string]any{"scope": s.scope})
			state = &accountsState{}
		}
	}

	migrated, err := s.migrateLegacy(ctx, state)
	if err != nil {
		return nil, err
	}
	if migrated {
		if err := s.save(ctx, state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (s *Store) migrateLegacy(ctx context.Context, state *accountsState) (bool, error) {
	raw, found, err := s.kv.Get(ctx, s.legacyKey())
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	var legacy AuthData
	account := AccountCustomer
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil && legacy.UserID != "" {
		if domain.ParseRole(legacy.Role) == domain.RoleEmployee {
			account = AccountEmployee
		}
		if state.slot(account) == nil {
			data := legacy
			state.setSlot(account, &data)
			if state.Current == "" {
				state.Current = account
			}
			s.logger(ctx, "sessions.legacy.migrated", map[string]any{
				"scope":   s.scope,
				"account": string(account),
			})
		}
	}

	if err := s.kv.Delete(ctx, s.legacyKey()); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, state *accountsState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("sessions: encode state: %w", err)
	}
	return s.kv.Set(ctx, s.stateKey(), string(raw))
}

func (s *Store) authenticated(state *accountsState, account AccountType) bool {
	data := state.slot(account)
	if data == nil {
		return false
	}
	return s.clock().Sub(data.LastActivity) < s.maxIdle
}

// StoreAccountAuthData upserts one slot and makes it current. The other slot
// is never touched.
func (s *Store) StoreAccountAuthData(ctx context.Context, account AccountType, data AuthData) error {
	if account != AccountCustomer && account != AccountEmployee {
		return fmt.Errorf("%w: %q", ErrUnknownAccountType, account)
	}
	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	if data.LastActivity.IsZero() {
		data.LastActivity = s.clock()
	}
	state.setSlot(account, &data)
	state.Current = account
	if err := s.save(ctx, state); err != nil {
		return err
	}
	s.logger(ctx, "sessions.account.stored", map[string]any{
		"scope":   s.scope,
		"account": string(account),
		"userId":  data.UserID,
	})
	return nil
}

// IsAccountAuthenticated reports whether the slot holds a session whose idle
// time is still inside the validity window.
func (s *Store) IsAccountAuthenticated(ctx context.Context, account AccountType) (bool, error) {
	state, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return s.authenticated(state, account), nil
}

// AccountAuthData returns the slot's session material when authenticated.
func (s *Store) AccountAuthData(ctx context.Context, account AccountType) (AuthData, error) {
	state, err := s.load(ctx)
	if err != nil {
		return AuthData{}, err
	}
	if !s.authenticated(state, account) {
		return AuthData{}, fmt.Errorf("%w: %s", ErrAccountNotAuthenticated, account)
	}
	return *state.slot(account), nil
}

// CurrentAccount resolves the account the pointer designates. An expired or
// missing current slot reports not authenticated.
func (s *Store) CurrentAccount(ctx context.Context) (AccountType, AuthData, error) {
	state, err := s.load(ctx)
	if err != nil {
		return "", AuthData{}, err
	}
	if state.Current == "" || !s.authenticated(state, state.Current) {
		return "", AuthData{}, ErrAccountNotAuthenticated
	}
	return state.Current, *state.slot(state.Current), nil
}

// SwitchAccount moves the pointer onto another slot. It only flips the
// pointer and only onto a slot that is still authenticated.
func (s *Store) SwitchAccount(ctx context.Context, account AccountType) error {
	if account != AccountCustomer && account != AccountEmployee {
		return fmt.Errorf("%w: %q", ErrUnknownAccountType, account)
	}
	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !s.authenticated(state, account) {
		return fmt.Errorf("%w: %s", ErrAccountNotAuthenticated, account)
	}
	if state.Current == account {
		return nil
	}
	state.Current = account
	if err := s.save(ctx, state); err != nil {
		return err
	}
	s.logger(ctx, "sessions.account.switched", map[string]any{
		"scope":   s.scope,
		"account": string(account),
	})
	return nil
}

// TouchAccount bumps the slot's last-activity timestamp.
func (s *Store) TouchAccount(ctx context.Context, account AccountType) error {
	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	data := state.slot(account)
	if data == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotAuthenticated, account)
	}
	data.LastActivity = s.clock()
	return s.save(ctx, state)
}

// LogoutAccount clears one slot. Remote invalidation is best effort: a
// failure is logged and the local session is still removed. When the pointer
// was on the cleared slot it falls back to the other slot if that one is
// still authenticated, otherwise to none.
func (s *Store) LogoutAccount(ctx context.Context, account AccountType) error {
	if account != AccountCustomer && account != AccountEmployee {
		return fmt.Errorf("%w: %q", ErrUnknownAccountType, account)
	}
	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	data := state.slot(account)
	if data == nil {
		return nil
	}

	s.invalidateRemote(ctx, *data)

	state.setSlot(account, nil)
	if state.Current == account {
		other := AccountCustomer
		if account == AccountCustomer {
			other = AccountEmployee
		}
		if s.authenticated(state, other) {
			state.Current = other
		} else {
			state.Current = ""
		}
	}
	if err := s.save(ctx, state); err != nil {
		return err
	}
	s.logger(ctx, "sessions.account.logged_out", map[string]any{
		"scope":   s.scope,
		"account": string(account),
	})
	return nil
}

// LogoutAll invalidates every held session best effort and wipes the state.
func (s *Store) LogoutAll(ctx context.Context) error {
	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	if state.Customer != nil {
		s.invalidateRemote(ctx, *state.Customer)
	}
	if state.Employee != nil {
		s.invalidateRemote(ctx, *state.Employee)
	}
	return s.ClearAllAccounts(ctx)
}

// ClearAllAccounts wipes the local state without contacting the auth backend.
func (s *Store) ClearAllAccounts(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.stateKey(), s.legacyKey()); err != nil {
		return err
	}
	s.logger(ctx, "sessions.accounts.cleared", map[string]any{"scope": s.scope})
	return nil
}

func (s *Store) invalidateRemote(ctx context.Context, data AuthData) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator(ctx, data); err != nil {
		s.logger(ctx, "sessions.invalidate.failed", map[string]any{
			"scope":  s.scope,
			"userId": data.UserID,
			"error":  err.Error(),
		})
	}
}

// AllowRefresh reports whether another token refresh attempt may run now.
func (s *Store) AllowRefresh() bool {
	return s.refresh.Allow()
}

const (
	refreshWindow      = 30 * time.Second
	maxRefreshAttempts = 3
)

// RefreshLimiter caps token refresh attempts to a fixed budget per window.
// It is deliberately unsynchronized: an occasional extra attempt under
// concurrent access is acceptable, a blocked refresh path is not.
type RefreshLimiter struct {
	clock       func() time.Time
	windowStart time.Time
	attempts    int
}

// NewRefreshLimiter constructs a limiter on the supplied clock.
func NewRefreshLimiter(clock func() time.Time) *RefreshLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RefreshLimiter{clock: clock}
}

// Allow consumes one attempt, opening a fresh window when the previous one
// has elapsed.
func (l *RefreshLimiter) Allow() bool {
	now := l.clock()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= refreshWindow {
		l.windowStart = now
		l.attempts = 0
	}
	if l.attempts >= maxRefreshAttempts {
		return false
	}
	l.attempts++
	return true
}

// Reset clears the current window, typically after a successful refresh.
func (l *RefreshLimiter) Reset() {
	l.windowStart = time.Time{}
	l.attempts = 0
}
