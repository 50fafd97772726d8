package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/cobra"

	"movie-tracker/internal/config"
	"movie-tracker/internal/database"
	"movie-tracker/internal/handler"
	"movie-tracker/internal/middleware"
	"movie-tracker/internal/service"
	"movie-tracker/internal/session"
	"movie-tracker/internal/tmdb"
)

var swaggerPath = "docs/swagger.yaml"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway HTTP server",
		Long: `Run the HTTP API that chat transport adapters call to drive
conversations (add, list, recommend, help, cancel and free-text replies).

Examples:
  movie-tracker serve
  SERVER_PORT=9090 STORAGE_DRIVER=bolt movie-tracker serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&swaggerPath, "swagger", "docs/swagger.yaml", "Path of the OpenAPI document to serve")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	films, closeStore, err := openLibrary(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Without Redis, genres are cached in process and rate limiting is off.
	var limiter *middleware.RateLimiter
	var lookup *tmdb.Lookup
	tmdbClient := tmdb.NewClient(tmdb.Options{
		APIKey:            cfg.TMDB.APIKey,
		BaseURL:           cfg.TMDB.BaseURL,
		Language:          cfg.TMDB.Language,
		Timeout:           cfg.TMDB.Timeout,
		MaxRetries:        cfg.TMDB.MaxRetries,
		RetryDelay:        cfg.TMDB.RetryDelay,
		RequestsPerSecond: cfg.TMDB.RequestsPerSecond,
	})
	if cfg.Redis.Addr != "" {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, running without cache", "error", err)
		} else {
			defer rdb.Close()
			lookup = tmdb.NewLookup(tmdbClient, rdb, cfg.TMDB.GenreCacheTTL)
			limiter = middleware.NewRateLimiter(rdb, cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSec)
		}
	}
	if lookup == nil {
		lookup = tmdb.NewLookup(tmdbClient, nil, cfg.TMDB.GenreCacheTTL)
		limiter = middleware.NewRateLimiter(nil, cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSec)
	}

	recommender := service.NewRecommendationService(films, lookup, cfg.Recommend.Limit)
	sessions := session.NewManager(cfg.Session.IdleTimeout)
	chat := service.NewConversationService(films, lookup, recommender, sessions, cfg.Session.DuplicatePolicy)
	h := handler.NewChatHandler(chat, films)

	app := fiber.New(fiber.Config{
		AppName:      "Movie Tracker",
		ServerHeader: "Movie-Tracker",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("unhandled error", "error", err, "status", code, "request_id", middleware.GetRequestID(c))
			return c.Status(code).JSON(handler.ErrorResponse{Error: err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${locals:request_id} | ${status} | ${latency} | ${method} ${path}\n",
	}))
	app.Use(cors.New())
	app.Use(middleware.AuthMiddleware(cfg.Bot.Token))
	if cfg.Bot.Token == "" {
		slog.Warn("BOT_TOKEN is empty, the chat API is unauthenticated")
	}

	swaggerYAML, err := os.ReadFile(swaggerPath)
	if err != nil {
		slog.Warn("swagger.yaml not found, swagger UI will be unavailable", "error", err)
	} else {
		handler.RegisterSwagger(app, "Movie Tracker", swaggerYAML)
	}

	h.Register(app.Group("/api/v1"), limiter.Handler())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutting down movie tracker...", "open_sessions", sessions.Len())
		_ = app.Shutdown()
	}()

	addr := ":" + cfg.Port
	slog.Info("starting movie tracker", "addr", addr, "storage", cfg.Storage.Driver, "duplicate_policy", cfg.Session.DuplicatePolicy)
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	// Final flush on shutdown.
	if err := films.Persist(context.Background()); err != nil {
		slog.Error("final persist failed", "error", err)
	}
	return nil
}
