package main

import (
	"codemate/codemate/config"
	"codemate/codemate/controllers"
	"codemate/codemate/middlewares"
	"codemate/codemate/prompts"
	"codemate/codemate/routes"
	"codemate/codemate/services/llm"
	"codemate/codemate/sources/psql"
	"codemate/codemate/sources/psql/dao"
	"codemate/codemate/utils/logging"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()

	if cfg.OpenAIAPIKey == "" {
		logging.ErrorLogger.Error("OPENAI_API_KEY is not set")
		os.Exit(1)
	}
	profile, err := prompts.Load(cfg.PromptFile)
	if err != nil {
		logging.ErrorLogger.Error("prompt profile error", zap.Error(err))
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middlewares.CORS)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)

	// Optional exchange journal.
	var journal controllers.Journal
	if cfg.JournalEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := psql.NewDatabase(ctx, cfg)
		cancel()
		if err != nil {
			logging.ErrorLogger.Error("database connection error", zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		exchangeDAO := dao.NewExchangeDAO(db.DB)
		journal = exchangeDAO
		r.Mount("/journal", routes.JournalRoutes(controllers.NewJournalController(exchangeDAO), cfg))
	}

	// Optional per-IP rate limit.
	var limiter func(http.Handler) http.Handler
	if cfg.RateLimitEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		limiter = middlewares.RateLimit(rdb, cfg.RateLimitQPS)
		logging.AppLogger.Info("rate limiting enabled",
			zap.String("redis", cfg.RedisAddr), zap.Int("qps", cfg.RateLimitQPS))
	}

	completer := llm.NewGPTClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, &http.Client{Timeout: 90 * time.Second})
	relayCtrl := controllers.NewRelayController(completer, profile, journal)

	r.Mount("/health", routes.HealthRoutes(controllers.NewHealthController(profile.Model)))
	r.Mount("/ai-chat", routes.RelayRoutes(relayCtrl, cfg, limiter))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.AppLogger.Info("relay listening",
			zap.String("addr", srv.Addr),
			zap.String("model", profile.Model),
			zap.Bool("auth", cfg.JWTSecret != ""),
			zap.Bool("journal", journal != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
			os.Exit(1)
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
		return
	}
	logging.AppLogger.Info("server shutdown complete")
}
