package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/vault/internal/auth"
	"github.com/congo-pay/vault/internal/config"
	"github.com/congo-pay/vault/internal/funding"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/middleware"
	"github.com/congo-pay/vault/internal/notification"
	"github.com/congo-pay/vault/internal/observability"
	"github.com/congo-pay/vault/internal/token"
	"github.com/congo-pay/vault/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Setup configures middlewares and all application routes. Without a database
// or Redis, which is only allowed in development, in-memory backends are used.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(observability.Middleware(d.Metrics))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	// Services and handlers
	var (
		ledgerBackend ledger.Ledger
		walletRepo    wallet.Repository
		tokenRepo     token.Repository
		challenges    auth.ChallengeStore
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		tokenRepo = token.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		tokenRepo = token.NewMemoryRepository()
	}
	if d.Cache != nil {
		challenges = auth.NewRedisChallengeStore(d.Cache)
	} else {
		challenges = auth.NewMemoryChallengeStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := SeedGenesis(ctx, ledgerBackend, d.Cfg.Genesis, d.Logger); err != nil {
		return err
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(walletRepo, ledgerBackend, notifier, d.Logger)
	tokenSvc := token.NewService(tokenRepo, ledgerBackend, d.Cfg.FactoryAddress, notifier, d.Logger)
	authSvc := auth.NewService(d.Cfg, challenges)
	fundingSvc, err := funding.NewService(ledgerBackend, nil, notifier, d.Logger)
	if err != nil {
		return err
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDFrom(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	limiter := middleware.NewRateLimiter(d.Cache, d.Cfg.RateLimitPerMinute)

	// Public routes
	RegisterAuthRoutes(api, auth.NewHandler(authSvc), limiter.Middleware("auth"))

	// Protected routes
	protected := api.Group("",
		middleware.JWTAuth(authSvc),
		limiter.Middleware("api"),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc, d.Metrics))
	RegisterTokenRoutes(protected, token.NewHandler(tokenSvc, d.Metrics))
	RegisterFundingRoutes(protected, funding.NewHandler(fundingSvc))

	return nil
}
