// Command homecare-whatsapp-bridge keeps the WhatsApp session for the portal.
// It logs inbound customer messages with a routing decision, applies delivery
// receipts and exposes an HTTP API for outbound sends.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"homecare/lib/data"
	"homecare/lib/metrics"
	"homecare/lib/util"
	"homecare/lib/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type config struct {
	DatabaseURL      string
	StorePath        string
	GeminiAPIKey     string
	GeminiModel      string
	APIKey           string
	HTTPAddr         string
	MetricsNamespace string
	AllowedOrigins   []string
	LogLevel         string
	PrintQR          bool
}

func loadConfig() (config, error) {
	cfg := config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StorePath:        envOr("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		APIKey:           os.Getenv("BRIDGE_API_KEY"),
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		MetricsNamespace: envOr("METRICS_NAMESPACE", "homecare_bridge"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		PrintQR:          true,
	}
	if v := os.Getenv("PRINT_QR"); v != "" {
		cfg.PrintQR, _ = strconv.ParseBool(v)
	}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "BRIDGE_API_KEY")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("bridge stopped")
	}
}

func run(logger *logrus.Logger) error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	util.SetLogLevel(logger, cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.Registry(cfg.MetricsNamespace)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	router, closeRouter, err := newRouter(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeRouter()

	waClient, err := whatsapp.New(ctx, whatsapp.Config{StorePath: cfg.StorePath, PrintQR: cfg.PrintQR}, logger)
	if err != nil {
		return fmt.Errorf("init whatsapp client: %w", err)
	}
	defer waClient.Close()

	inbox := &whatsapp.Inbox{
		Transport: waClient,
		Chats:     &data.WhatsappChatDao{DB: db, Logger: logger},
		Users:     &data.UserDao{DB: db, Logger: logger},
		Router:    router,
		Metrics:   m,
		Logger:    logger,
	}
	waClient.SetInbox(inbox)
	if err := waClient.Start(ctx); err != nil {
		return fmt.Errorf("start whatsapp client: %w", err)
	}

	srv := &Server{Sender: inbox, Session: waClient, APIKey: cfg.APIKey, Metrics: m, Logger: logger}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(cfg.AllowedOrigins, promhttp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}
	return nil
}

// newRouter picks Gemini when a key is configured and keyword matching
// otherwise.
func newRouter(ctx context.Context, cfg config, logger *logrus.Logger, m *metrics.Metrics) (whatsapp.Router, func(), error) {
	if cfg.GeminiAPIKey == "" {
		logger.Info("GEMINI_API_KEY not set, routing by keywords")
		return whatsapp.KeywordRouter{}, func() {}, nil
	}
	gr, err := whatsapp.NewGeminiRouter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger, m)
	if err != nil {
		return nil, nil, fmt.Errorf("init gemini router: %w", err)
	}
	return gr, func() {
		if err := gr.Close(); err != nil {
			logger.WithError(err).Warn("failed closing gemini client")
		}
	}, nil
}
