package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"shopcore/internal/config"
	"shopcore/internal/database"
	"shopcore/internal/handler"
	"shopcore/internal/mw"
	"shopcore/internal/payment"
	"shopcore/internal/service"
	"shopcore/internal/worker"
)

func main() {
	cfg := config.New()

	db, err := database.NewDB(context.Background(), cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(db)

	if err := database.InitSchema(db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	// Services
	authSvc := service.NewAuthService(db)
	catalogSvc := service.NewCatalogService(db)
	orderSvc := service.NewOrderService(db)
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayWebhookSecret)
	checkoutSvc := service.NewCheckoutService(catalogSvc, orderSvc, gateway, cfg.Currency)
	settlementSvc := service.NewSettlementService(gateway, orderSvc, catalogSvc)

	// Worker
	sweeper := worker.NewSweeper(orderSvc, cfg.SweepInterval, cfg.MaxPendingAge)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/auth/register", handler.RegisterHandler(authSvc, cfg.JWTSecret))
	r.Post("/api/auth/login", handler.LoginHandler(authSvc, cfg.JWTSecret))
	r.Get("/api/products", handler.ListProductsHandler(catalogSvc))
	r.Get("/api/products/{id}", handler.GetProductHandler(catalogSvc))

	// Provider callback; authenticity comes from the signature check,
	// not from session auth.
	r.Post("/api/payments/webhook", handler.WebhookHandler(settlementSvc))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/api/payments/create-payment-intent", handler.CheckoutHandler(checkoutSvc))
		r.Get("/api/orders", handler.ListOrdersHandler(orderSvc))
		r.Get("/api/orders/{id}", handler.GetOrderHandler(orderSvc))

		r.Group(func(r chi.Router) {
			r.Use(mw.AdminOnly)

			r.Post("/api/products", handler.CreateProductHandler(catalogSvc))
			r.Put("/api/products/{id}", handler.UpdateProductHandler(catalogSvc))
			r.Delete("/api/products/{id}", handler.DeactivateProductHandler(catalogSvc))
		})
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sweeper.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop worker
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
