package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avolkov/market-api/internal/config"
	"github.com/avolkov/market-api/internal/db"
	"github.com/avolkov/market-api/internal/es"
	"github.com/avolkov/market-api/internal/events"
	"github.com/avolkov/market-api/internal/httpserver"
	"github.com/avolkov/market-api/internal/logging"
	"github.com/avolkov/market-api/internal/mail"
	authmw "github.com/avolkov/market-api/internal/middleware/auth"
	loggingmw "github.com/avolkov/market-api/internal/middleware/logging"
	"github.com/avolkov/market-api/internal/payment"
	"github.com/avolkov/market-api/internal/repo"
	"github.com/avolkov/market-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	config.MustNonEmpty(cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}

	producer := events.NewProducer(cfg.KafkaBrokers)

	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		log.Fatalf("mailer error: %v", err)
	}

	stripeClient := payment.NewClient(&cfg.Stripe, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)

	gormRepo := repo.New(gdb)
	authSvc := &service.AuthService{
		Repo:       gormRepo,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}
	cartSvc := &service.CartService{
		Repo:     gormRepo,
		Checkout: stripeClient,
		Producer: producer,
		Currency: "usd",
	}
	webhookSvc := &service.WebhookService{
		Repo:       gormRepo,
		Verifier:   stripeClient,
		Mailer:     mailer,
		Producer:   producer,
		AdminEmail: cfg.AdminEmail,
	}

	deps := &httpserver.Deps{
		Tokens:   &httpserver.TokenHandler{Auth: authSvc, Cfg: cfg, Producer: producer},
		Users:    &httpserver.UserHandler{Auth: authSvc, Repo: gormRepo, Cfg: cfg, Producer: producer},
		Products: &httpserver.ProductHandler{Repo: gormRepo, Cfg: cfg, Producer: producer, Index: "products"},
		Carts:    &httpserver.CartHandler{Svc: cartSvc},
		Webhook:  &httpserver.WebhookHandler{Svc: webhookSvc},
		AuthMW:   &authmw.TokenMiddleware{Auth: authSvc, AdminEmail: cfg.AdminEmail},
	}

	if cfg.ESURL != "" {
		esClient, err := es.NewClient(cfg)
		if err != nil {
			log.Fatalf("elasticsearch error: %v", err)
		}
		deps.Products.ES = esClient
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	logger.Info("server started", "port", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}
	mailer.Close()

	log.Println("shutdown complete")
}
