package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/requestctx"
	"github.com/patchline/api/internal/repositories"
)

type stubUserRepo struct {
	createFn     func(ctx context.Context, user domain.User, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (domain.User, string, error)
	getByIDFn    func(ctx context.Context, id string) (domain.User, error)
}

func (s *stubUserRepo) Create(ctx context.Context, user domain.User, passwordHash string) error {
	return s.createFn(ctx, user, passwordHash)
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, string, error) {
	return s.getByEmailFn(ctx, email)
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.getByIDFn(ctx, id)
}

func newTestService(t *testing.T, users repositories.UserRepository) *Service {
	t.Helper()
	service, err := NewService(ServiceDeps{
		Users:     users,
		JWTSecret: []byte("test-secret"),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func TestRegisterHashesPassword(t *testing.T) {
	var storedHash string
	var storedUser domain.User
	service := newTestService(t, &stubUserRepo{
		createFn: func(_ context.Context, user domain.User, passwordHash string) error {
			storedUser = user
			storedHash = passwordHash
			return nil
		},
	})

	user, err := service.Register(context.Background(), RegisterInput{
		Email:    "Shopper@Example.com",
		Password: "correct horse battery",
		Name:     "Jordan",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "shopper@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if user.Role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %s", user.Role)
	}
	if storedUser.ID == "" {
		t.Fatal("expected generated user id")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte("correct horse battery")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestRegisterRejectsWeakPasswordAndBadEmail(t *testing.T) {
	service := newTestService(t, &stubUserRepo{
		createFn: func(context.Context, domain.User, string) error {
			t.Fatal("repository must not be called on validation failure")
			return nil
		},
	})

	if _, err := service.Register(context.Background(), RegisterInput{Email: "a@b.co", Password: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := service.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "long enough password"}); err == nil {
		t.Fatal("expected error for invalid email")
	}
}

func TestRegisterEmailTaken(t *testing.T) {
	service := newTestService(t, &stubUserRepo{
		createFn: func(context.Context, domain.User, string) error {
			return fmt.Errorf("%w: email", repositories.ErrDuplicate)
		},
	})
	if _, err := service.Register(context.Background(), RegisterInput{Email: "a@b.co", Password: "long enough password"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func seededUser(t *testing.T, password string) (domain.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate hash: %v", err)
	}
	return domain.User{
		ID:    "usr_1",
		Email: "shopper@example.com",
		Role:  domain.RoleCustomer,
	}, string(hash)
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	user, hash := seededUser(t, "opensesame123")
	service := newTestService(t, &stubUserRepo{
		getByEmailFn: func(_ context.Context, email string) (domain.User, string, error) {
			if email != "shopper@example.com" {
				return domain.User{}, "", fmt.Errorf("%w", repositories.ErrNotFound)
			}
			return user, hash, nil
		},
	})

	got, pair, err := service.Login(context.Background(), "shopper@example.com", "opensesame123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user returned, got %+v", got)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens issued")
	}
	if !pair.ExpiresAt.After(time.Now()) {
		t.Fatalf("access expiry must be in the future, got %s", pair.ExpiresAt)
	}

	claims, err := service.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != user.ID || claims.Role != string(domain.RoleCustomer) {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := service.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not pass access verification, got %v", err)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	user, hash := seededUser(t, "opensesame123")
	service := newTestService(t, &stubUserRepo{
		getByEmailFn: func(_ context.Context, email string) (domain.User, string, error) {
			if email == "shopper@example.com" {
				return user, hash, nil
			}
			return domain.User{}, "", fmt.Errorf("%w", repositories.ErrNotFound)
		},
	})

	if _, _, err := service.Login(context.Background(), "shopper@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := service.Login(context.Background(), "nobody@example.com", "opensesame123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRefreshRotatesAccessTokenOnly(t *testing.T) {
	user, hash := seededUser(t, "opensesame123")
	service := newTestService(t, &stubUserRepo{
		getByEmailFn: func(context.Context, string) (domain.User, string, error) {
			return user, hash, nil
		},
		getByIDFn: func(_ context.Context, id string) (domain.User, error) {
			if id != user.ID {
				return domain.User{}, fmt.Errorf("%w", repositories.ErrNotFound)
			}
			return user, nil
		},
	})

	_, pair, err := service.Login(context.Background(), user.Email, "opensesame123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := service.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Fatal("refresh must keep the refresh token in place")
	}
	if _, err := service.VerifyAccess(refreshed.AccessToken); err != nil {
		t.Fatalf("rotated access token must verify: %v", err)
	}

	if _, err := service.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not be accepted for refresh, got %v", err)
	}
	if _, err := service.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestAuthenticatorMiddleware(t *testing.T) {
	user, hash := seededUser(t, "opensesame123")
	service := newTestService(t, &stubUserRepo{
		getByEmailFn: func(context.Context, string) (domain.User, string, error) {
			return user, hash, nil
		},
	})
	_, pair, err := service.Login(context.Background(), user.Email, "opensesame123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var captured requestctx.Identity
	handler := Authenticator(service)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if captured.UserID != user.ID {
		t.Fatalf("expected identity attached, got %+v", captured)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRequireEmployee(t *testing.T) {
	handler := RequireEmployee(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(requestctx.WithIdentity(req.Context(), requestctx.Identity{UserID: "usr_1", Role: "customer"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(requestctx.WithIdentity(req.Context(), requestctx.Identity{UserID: "usr_2", Role: "admin"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", rec.Code)
	}
}
