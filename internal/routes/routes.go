package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ledger-pay/ledger_pay/internal/config"
	"github.com/ledger-pay/ledger_pay/internal/idempotency"
	"github.com/ledger-pay/ledger_pay/internal/ledger"
	"github.com/ledger-pay/ledger_pay/internal/middleware"
	"github.com/ledger-pay/ledger_pay/internal/notification"
	"github.com/ledger-pay/ledger_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. Without a database
// the service runs on the in-memory store, which only happens in development.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	registerHealthRoutes(app, d)

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout)
	} else {
		store = ledger.NewInMemory()
	}

	index := idempotency.New(d.Cache, store, d.Cfg.IdempotencyTTL, d.Logger)
	engine := ledger.NewEngine(store, index, d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(store, engine, notifier)
	walletHandler := wallet.NewHandler(walletSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	opLimit := middleware.OperationRateLimit(d.Cache, d.Cfg.OperationRateLimit)
	registerWalletRoutes(api, walletHandler, opLimit)

	return nil
}
