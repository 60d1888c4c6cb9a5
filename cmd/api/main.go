package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/emandor/lemme_ocr/internal/api"
	"github.com/emandor/lemme_ocr/internal/config"
	"github.com/emandor/lemme_ocr/internal/middleware"
	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
	"github.com/emandor/lemme_ocr/internal/ocr/tesseract"
	"github.com/emandor/lemme_ocr/internal/runner"
	"github.com/emandor/lemme_ocr/internal/telemetry"
	"github.com/emandor/lemme_ocr/internal/ws"
)

func main() {
	cfg := config.Load()
	tlog := telemetry.Init(telemetry.FromEnv(config.GetEnv))
	tlog.Info().Str("port", cfg.AppPort).Str("model_home", cfg.ModelHome).Msg("booting lemme_ocr")

	prov := models.NewProvisioner(cfg.ModelLayout(""), models.NewHTTPFetcher(
		cfg.ModelDownloadTimeout, cfg.ModelDownloadRPS, cfg.ModelDownloadBurst, cfg.ModelDownloadRetries,
	))
	h := api.NewHandler(cfg, prov, func(oc ocr.Config, set models.Set) (runner.Engine, error) {
		return tesseract.New(oc, set)
	})

	app := fiber.New(fiber.Config{
		AppName:   "lemme_ocr",
		BodyLimit: cfg.MaxBodyLimit * 1024 * 1024,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.RequestLog())
	app.Use(middleware.RateLimiter(cfg.RateLimitMax, time.Minute))
	app.Use(middleware.SecureHeaders())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Static("/output", filepath.Join(cfg.StorageDir, "output"))

	v1 := app.Group("/api/v1")
	v1.Get("/models/:lang", h.GetModels)
	v1.Post("/models/:lang", h.EnsureModels)
	v1.Post("/ocr", middleware.FileUploadValidator(cfg), h.CreateJob)

	app.Use("/ws", middleware.WSUpgrade())
	app.Get("/ws", websocket.New(ws.HandleWS))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		tlog.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(sctx)
	})

	if err := g.Wait(); err != nil {
		tlog.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
