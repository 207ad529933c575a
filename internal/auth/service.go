package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/repositories"
)

const minPasswordLength = 8

var (
	// ErrInvalidCredentials is returned for a bad email/password pair. The
	// message never distinguishes which half was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken is returned for malformed, expired or mis-signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrEmailTaken is returned when registration hits an existing email.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrWeakPassword is returned when the password fails the minimum policy.
	ErrWeakPassword = fmt.Errorf("auth: password must be at least %d characters", minPasswordLength)
	// ErrInvalidEmail is returned when the registration email does not parse.
	ErrInvalidEmail = errors.New("auth: invalid email address")
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// Claims is the JWT payload issued for both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Role     string `json:"role"`
	TokenUse string `json:"tokenUse"`
}

// TokenPair bundles the issued tokens for a session.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// ServiceDeps configures the auth Service.
type ServiceDeps struct {
	Users      repositories.UserRepository
	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      func() time.Time
	IDGen      func() string
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Service implements registration, login and token lifecycle.
type Service struct {
	users      repositories.UserRepository
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
	idGen      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewService constructs an auth Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Users == nil {
		return nil, errors.New("auth: user repository is required")
	}
	if len(deps.JWTSecret) == 0 {
		return nil, errors.New("auth: jwt secret is required")
	}
	accessTTL := deps.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := deps.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Service{
		users:      deps.Users,
		secret:     deps.JWTSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      func() time.Time { return clock().UTC() },
		idGen:      idGen,
		logger:     logger,
	}, nil
}

// Register creates a customer account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if len(input.Password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.clock()
	user := domain.User{
		ID:        s.idGen(),
		Email:     email,
		Name:      strings.TrimSpace(input.Name),
		Role:      domain.RoleCustomer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user, string(hash)); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("auth: create user: %w", err)
	}

	s.logger(ctx, "auth.user.registered", map[string]any{"userId": user.ID})
	return user, nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (domain.User, TokenPair, error) {
	user, hash, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return domain.User{}, TokenPair{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	s.logger(ctx, "auth.user.logged_in", map[string]any{"userId": user.ID})
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is kept so the session's outer lifetime is unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenUse != tokenUseRefresh {
		return TokenPair{}, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, fmt.Errorf("auth: lookup user: %w", err)
	}

	access, expiresAt, err := s.sign(user, tokenUseAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	s.logger(ctx, "auth.token.refreshed", map[string]any{"userId": user.ID})
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// Profile fetches the account behind an authenticated identity.
func (s *Service) Profile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth: load profile: %w", err)
	}
	return user, nil
}

// VerifyAccess validates a bearer token and returns its claims.
func (s *Service) VerifyAccess(tokenString string) (Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenUse != tokenUseAccess {
		return Claims{}, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims, nil
}

func (s *Service) issuePair(user domain.User) (TokenPair, error) {
	access, expiresAt, err := s.sign(user, tokenUseAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.sign(user, tokenUseRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) sign(user domain.User, use string, ttl time.Duration) (string, time.Time, error) {
	now := s.clock()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        s.idGen(),
		},
		Email:    user.Email,
		Role:     string(user.Role),
		TokenUse: use,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign %s token: %w", use, err)
	}
	return signed, expiresAt, nil
}

func (s *Service) parse(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
