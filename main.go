package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/obafemi/settlecore/app/controllers"
	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/cache"
	"github.com/obafemi/settlecore/internal/pkg/database"
	"github.com/obafemi/settlecore/internal/pkg/env"
	"github.com/obafemi/settlecore/internal/pkg/fraud"
	"github.com/obafemi/settlecore/internal/pkg/gateway"
	"github.com/obafemi/settlecore/internal/pkg/inventory"
	"github.com/obafemi/settlecore/internal/pkg/reconcile"
	"github.com/obafemi/settlecore/internal/pkg/reportstore"
	"github.com/obafemi/settlecore/internal/pkg/router"
	"github.com/obafemi/settlecore/internal/pkg/settlement"
	"github.com/obafemi/settlecore/internal/pkg/worker"
)

func main() {
	env.SetupEnvFile()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}

	redisClient := cache.Connect()
	repos := repository.NewFactory(db).Repositories()
	opener := repository.NewOpener(db)
	gw := gateway.NewPaystackClientFromEnv()

	scorer := fraud.NewScorer(fraud.NewRedisCounterStore(redisClient), repos.Payment, fraud.DefaultConfig())
	svc := settlement.NewService(opener, repos, gw, scorer, env.GetEnv("PAYMENT_CALLBACK_URL", ""), 0)

	var reports reportstore.Store = reportstore.NewLocalStore(env.GetEnv("REPORT_DIR", "./reports"))
	if cfg := reportstore.S3ConfigFromEnv(); cfg.Bucket != "" {
		s3Store, err := reportstore.NewS3Store(context.Background(), cfg)
		if err != nil {
			log.Warnf("object storage unavailable, reports go to local disk: %v", err)
		} else {
			reports = s3Store
		}
	}

	workers := worker.NewManager(
		inventory.NewManager(opener, 0),
		reconcile.NewEngine(repos, gw, reports),
		0, 0,
	)
	workers.Start()
	defer workers.Stop()

	app := NewApplication(svc)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		workers.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Errorf("server stopped: %v", err)
	}
}

// NewApplication builds the Fiber app with middleware and routes installed.
func NewApplication(svc *settlement.Service) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "settlecore",
	})
	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "changeme"),
		},
	}), monitor.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	router.InstallRouters(app, router.NewApiRouter(
		controllers.NewPaymentController(svc),
		controllers.NewWebhookController(svc),
	))
	return app
}
