package di

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patchline/api/internal/auth"
	"github.com/patchline/api/internal/cart"
	"github.com/patchline/api/internal/checkout"
	"github.com/patchline/api/internal/handlers"
	"github.com/patchline/api/internal/orders"
	"github.com/patchline/api/internal/payments"
	"github.com/patchline/api/internal/platform/config"
	"github.com/patchline/api/internal/pricing"
	"github.com/patchline/api/internal/repositories"
	postgresrepo "github.com/patchline/api/internal/repositories/postgres"
	redisrepo "github.com/patchline/api/internal/repositories/redis"
	"github.com/patchline/api/internal/sessions"
	"github.com/patchline/api/internal/shipping"
)

// Services bundles the service layer the HTTP surface depends on.
type Services struct {
	Auth     *auth.Service
	Carts    *cart.Service
	Checkout *checkout.Service
	Orders   *orders.Service
	Pricing  *pricing.Engine
	Shipping *shipping.Client
	Payments *payments.Dispatcher
	Products repositories.ProductRepository
	Sessions handlers.SessionScopes
}

// Container wires storage clients, services, and the router for runtime use.
type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Redis    *redis.Client
	Services Services
}

// NewContainer assembles the runtime dependency graph from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := postgresrepo.Open(postgresrepo.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("di: open postgres: %w", err)
	}
	if err := postgresrepo.Migrate(db, cfg.Database.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("di: run migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("di: ping redis: %w", err)
	}

	svc, err := buildServices(cfg, logger, db, redisClient)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    redisClient,
		Services: svc,
	}, nil
}

// Router builds the HTTP router over the container's services.
func (c *Container) Router() chi.Router {
	return handlers.NewRouter(handlers.RouterDeps{
		Logger:        c.Logger,
		Auth:          handlers.NewAuthHandlers(c.Services.Auth, c.Services.Sessions),
		Catalog:       handlers.NewCatalogHandlers(c.Services.Products),
		Cart:          handlers.NewCartHandlers(c.Services.Carts),
		Checkout:      handlers.NewCheckoutHandlers(c.Services.Checkout),
		Orders:        handlers.NewOrderHandlers(c.Services.Orders),
		Admin:         handlers.NewAdminOrderHandlers(c.Services.Orders),
		Sessions:      handlers.NewSessionHandlers(c.Services.Sessions),
		Authenticator: auth.Authenticator(c.Services.Auth),
	})
}

// Close releases storage clients.
func (c *Container) Close() error {
	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildServices(cfg config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client) (Services, error) {
	var svc Services
	events := eventLogger(logger)

	products, err := postgresrepo.NewProductRepository(db)
	if err != nil {
		return svc, fmt.Errorf("di: product repository: %w", err)
	}
	svc.Products = products
	users, err := postgresrepo.NewUserRepository(db)
	if err != nil {
		return svc, fmt.Errorf("di: user repository: %w", err)
	}
	orderRepo, err := postgresrepo.NewOrderRepository(db)
	if err != nil {
		return svc, fmt.Errorf("di: order repository: %w", err)
	}
	cartRepo, err := redisrepo.NewCartRepository(redisClient, 0)
	if err != nil {
		return svc, fmt.Errorf("di: cart repository: %w", err)
	}
	checkoutRepo, err := redisrepo.NewCheckoutRepository(redisClient, 0)
	if err != nil {
		return svc, fmt.Errorf("di: checkout repository: %w", err)
	}

	svc.Auth, err = auth.NewService(auth.ServiceDeps{
		Users:      users,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		Logger:     events,
	})
	if err != nil {
		return svc, fmt.Errorf("di: auth service: %w", err)
	}

	svc.Pricing = pricing.NewEngine(pricing.EngineDeps{
		LegacySingleDesignMaterialCost: cfg.Features.LegacySingleDesignMaterialCost,
	})

	svc.Carts, err = cart.NewService(cart.ServiceDeps{
		Repo:     cartRepo,
		Products: products,
		Currency: cfg.Currency,
		Logger:   events,
	})
	if err != nil {
		return svc, fmt.Errorf("di: cart service: %w", err)
	}

	svc.Shipping, err = shipping.NewClient(shipping.ClientDeps{
		Endpoint:      cfg.Shipping.RatesEndpoint,
		HTTPClient:    &http.Client{Timeout: cfg.Shipping.Timeout},
		FallbackCents: cfg.Shipping.FallbackRateCents,
		DefaultWeight: cfg.Shipping.DefaultItemWeightOz,
		Logger:        events,
	})
	if err != nil {
		return svc, fmt.Errorf("di: shipping client: %w", err)
	}

	svc.Payments, err = buildDispatcher(cfg, events)
	if err != nil {
		return svc, fmt.Errorf("di: payment dispatcher: %w", err)
	}

	svc.Orders, err = orders.NewService(orders.ServiceDeps{
		Repo:   orderRepo,
		Logger: events,
	})
	if err != nil {
		return svc, fmt.Errorf("di: orders service: %w", err)
	}

	svc.Checkout, err = checkout.NewService(checkout.ServiceDeps{
		Repo:              checkoutRepo,
		Carts:             svc.Carts,
		Products:          products,
		Pricing:           svc.Pricing,
		Shipping:          svc.Shipping,
		Payments:          svc.Payments,
		Orders:            svc.Orders,
		Currency:          cfg.Currency,
		TaxBasisPoints:    cfg.Tax.BasisPoints,
		FallbackShipCents: cfg.Shipping.FallbackRateCents,
		FreeShipThreshold: cfg.Shipping.FreeShippingThreshold,
		Logger:            events,
	})
	if err != nil {
		return svc, fmt.Errorf("di: checkout service: %w", err)
	}

	svc.Sessions = sessionScopes(redisClient, cfg, events)
	return svc, nil
}

func buildDispatcher(cfg config.Config, events func(ctx context.Context, event string, fields map[string]any)) (*payments.Dispatcher, error) {
	providers := map[payments.Method]payments.Provider{
		payments.MethodGoogle: payments.NewGooglePayProvider(),
	}

	if cfg.PSP.StripeAPIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: payments.StripeLogger(events),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.MethodCard] = stripeProvider
	}
	if cfg.PSP.PayPalClientID != "" && cfg.PSP.PayPalSecret != "" {
		paypalProvider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
			ClientID: cfg.PSP.PayPalClientID,
			Secret:   cfg.PSP.PayPalSecret,
			Live:     cfg.PSP.PayPalLive,
			Logger:   payments.PayPalLogger(events),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.MethodPayPal] = paypalProvider
	}

	return payments.NewDispatcher(providers)
}

// sessionScopes returns a resolver that lazily builds one session store per
// device scope over a shared Redis keyspace.
func sessionScopes(redisClient *redis.Client, cfg config.Config, events func(ctx context.Context, event string, fields map[string]any)) handlers.SessionScopes {
	var mu sync.Mutex
	stores := make(map[string]*sessions.Store)

	return func(scope string) (*sessions.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		if store, ok := stores[scope]; ok {
			return store, nil
		}
		kv, err := sessions.NewRedisKV(redisClient, cfg.Auth.SessionMaxIdle)
		if err != nil {
			return nil, err
		}
		store, err := sessions.NewStore(sessions.StoreDeps{
			KV:      kv,
			Scope:   scope,
			MaxIdle: cfg.Auth.SessionMaxIdle,
			Logger:  events,
		})
		if err != nil {
			return nil, err
		}
		stores[scope] = store
		return store, nil
	}
}

// eventLogger adapts the zap logger to the event callback the services take.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
