package main

import (
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/simplify-ai/simplify/app/controllers"
	"github.com/simplify-ai/simplify/internal/pkg/ai"
	"github.com/simplify-ai/simplify/internal/pkg/cache"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/database"
	"github.com/simplify-ai/simplify/internal/pkg/env"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/mail"
	"github.com/simplify-ai/simplify/internal/pkg/oauth"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/reconcile"
	"github.com/simplify-ai/simplify/internal/pkg/recovery"
	"github.com/simplify-ai/simplify/internal/pkg/router"
	"github.com/simplify-ai/simplify/internal/pkg/session"
	"github.com/simplify-ai/simplify/internal/pkg/webhooks"
)

func main() {
	app, recoveryMgr := NewApplication()

	recoveryMgr.Start()

	// Graceful shutdown: stop taking requests, then let an in-flight sweep
	// finish before the process exits.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("[App] Shutting down")
		recoveryMgr.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		stdlog.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *recovery.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	cfg := config.Load()
	db := database.GetDB()

	session.NewSessionStore()
	oauth.Setup(cfg)

	accounts := ledger.NewService(db, cfg)
	hooks := webhooks.NewService(db, cfg)
	provider := payment.NewStripeClient(cfg.Stripe)
	reconciler := reconcile.NewService(db, provider, hooks)
	mailer := mail.NewSMTPMailer(cfg.SMTP)
	sweeper := recovery.NewSweeper(db, cfg, provider, mailer, hooks)
	recoveryMgr := recovery.NewManager(sweeper, cfg)
	generator := ai.NewClient(cfg.OpenAI)

	api := controllers.NewAPI(db, cfg, accounts, hooks, reconciler, recoveryMgr, provider, mailer, generator)

	app := fiber.New(fiber.Config{
		AppName:   "simplify",
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, api)

	return app, recoveryMgr
}
