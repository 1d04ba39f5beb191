package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/kiostrack/backend/docs"
	"github.com/kiostrack/backend/internal/clock"
	"github.com/kiostrack/backend/internal/database"
	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/services"
)

// @title KiosTrack Backend API
// @version 1.0
// @description API for daily voucher stock and e-wallet float tracking
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("time.offset_hours", "TIME_OFFSET_HOURS")
	viper.BindEnv("cache.dashboard_ttl_seconds", "CACHE_DASHBOARD_TTL_SECONDS")
	viper.BindEnv("log.level", "LOG_LEVEL")

	viper.SetDefault("time.offset_hours", 7)
	viper.SetDefault("cache.dashboard_ttl_seconds", 60)

	log := logging.GetLogger()
	if err := viper.ReadInConfig(); err != nil {
		log.Infof("Config file not found, using defaults: %v", err)
	}
	logging.Configure()

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "KiosTrack Backend API"
	docs.SwaggerInfo.Description = "API for daily voucher stock and e-wallet float tracking"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Business days follow the shop's timezone, not the server's.
	clk := clock.New(viper.GetInt("time.offset_hours"))

	voucherDailyService := services.NewVoucherDailyService(db, clk)
	walletDailyService := services.NewWalletDailyService(db, clk)
	voucherTxService := services.NewVoucherTransactionService(db, clk)
	walletTxService := services.NewWalletTransactionService(db, clk)
	masterVoucherService := services.NewMasterVoucherService(db)
	masterWalletService := services.NewMasterWalletService(db)
	catalogService := services.NewCatalogService(db)
	statisticsService := services.NewStatisticsService(db, redisClient, clk,
		time.Duration(viper.GetInt("cache.dashboard_ttl_seconds"))*time.Second)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/master-vouchers", func(r chi.Router) {
			r.Get("/", masterVoucherService.ListVouchers)
			r.Post("/", masterVoucherService.CreateVoucher)
			r.Get("/{id}", masterVoucherService.GetVoucher)
			r.Put("/{id}", masterVoucherService.UpdateVoucher)
			r.Delete("/{id}", masterVoucherService.DeleteVoucher)
		})

		r.Route("/voucher-daily", func(r chi.Router) {
			r.Get("/", voucherDailyService.ListDailyStock)
			r.Post("/", voucherDailyService.CreateDailyStock)
			r.Get("/{id}", voucherDailyService.GetDailyStock)
			r.Put("/{id}", voucherDailyService.UpdateDailyStock)
			r.Delete("/{id}", voucherDailyService.DeleteDailyStock)
			r.Get("/by-voucher/{voucher_id}", voucherDailyService.ListByVoucher)
		})

		r.Route("/voucher-transactions", func(r chi.Router) {
			r.Get("/", voucherTxService.ListTransactions)
			r.Post("/", voucherTxService.CreateTransaction)
			r.Delete("/{id}", voucherTxService.DeleteTransaction)
		})

		r.Route("/master-wallets", func(r chi.Router) {
			r.Get("/", masterWalletService.ListWallets)
			r.Post("/", masterWalletService.CreateWallet)
			r.Get("/{id}", masterWalletService.GetWallet)
			r.Put("/{id}", masterWalletService.UpdateWallet)
			r.Delete("/{id}", masterWalletService.DeleteWallet)
		})

		r.Route("/wallet-daily", func(r chi.Router) {
			r.Get("/", walletDailyService.ListDailyBalance)
			r.Post("/", walletDailyService.CreateDailyBalance)
			r.Get("/{id}", walletDailyService.GetDailyBalance)
			r.Put("/{id}", walletDailyService.UpdateDailyBalance)
			r.Delete("/{id}", walletDailyService.DeleteDailyBalance)
			r.Get("/by-wallet/{wallet_id}", walletDailyService.ListByWallet)
		})

		r.Route("/wallet-transactions", func(r chi.Router) {
			r.Get("/", walletTxService.ListTransactions)
			r.Post("/", walletTxService.CreateTransaction)
			r.Delete("/{id}", walletTxService.DeleteTransaction)
		})

		r.Route("/operators", func(r chi.Router) {
			r.Get("/", catalogService.ListOperators)
			r.Post("/", catalogService.CreateOperator)
			r.Put("/{id}", catalogService.UpdateOperator)
			r.Delete("/{id}", catalogService.DeactivateOperator)
		})

		r.Route("/wallet-types", func(r chi.Router) {
			r.Get("/", catalogService.ListWalletTypes)
			r.Post("/", catalogService.CreateWalletType)
			r.Put("/{id}", catalogService.UpdateWalletType)
			r.Delete("/{id}", catalogService.DeactivateWalletType)
		})

		r.Route("/statistics", func(r chi.Router) {
			r.Get("/dashboard", statisticsService.GetDashboard)
			r.Get("/voucher", statisticsService.GetVoucherStatistics)
			r.Get("/wallet", statisticsService.GetWalletStatistics)
			r.Get("/voucher-summary", statisticsService.GetVoucherSummary)
			r.Get("/wallet-summary", statisticsService.GetWalletSummary)
			r.Get("/daily", statisticsService.GetDailyStatistics)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Infof("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}
