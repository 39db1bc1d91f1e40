package main

import (
	"Entitle/appstore"
	"Entitle/auth"
	"Entitle/common"
	"Entitle/entitlement"
	"Entitle/postgres"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"
)

// LoggerMiddleware injects the logger into the context
func LoggerMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Always ensure we have a valid logger
			contextLogger := logger
			if contextLogger == nil {
				contextLogger = log.New(os.Stdout, "[Entitle] ", log.LstdFlags)
			}
			ctx := context.WithValue(r.Context(), common.LoggerCtxKey, contextLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verificationEnvironment selects the endpoint tried first.
func verificationEnvironment() appstore.Environment {
	if os.Getenv("IAP_VERIFICATION_ENVIRONMENT") == "sandbox" {
		return appstore.Sandbox
	}
	return appstore.Production
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}

	// Initialize logger
	logger := log.New(os.Stdout, "[Entitle] ", log.LstdFlags)

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Add logger to context
	ctx = context.WithValue(ctx, common.LoggerCtxKey, logger)

	// Initialize database
	if err := postgres.InitDB(ctx); err != nil {
		logger.Fatalf("Database initialization failed: %v", err)
	}
	defer postgres.CloseDB(ctx)
	logger.Println("Database connection established")

	sharedSecret := os.Getenv("IAP_SHARED_SECRET")
	bundleID := os.Getenv("APPLE_BUNDLE_ID")
	logger.Printf("Apple shared secret configured: %t", sharedSecret != "")
	logger.Printf("Apple issuer ID configured: %t", os.Getenv("APPLE_ISSUER_ID") != "")
	logger.Printf("Apple key ID configured: %t", os.Getenv("APPLE_KEY_ID") != "")

	// Receipt verification client
	verifierCfg := appstore.DefaultConfig(verificationEnvironment())
	verifierCfg.SharedSecret = sharedSecret
	verifierCfg.RequestTimeout = 30 * time.Second
	verifierCfg.RateLimit = rate.NewLimiter(rate.Limit(10), 10)
	verifier := appstore.NewClient(verifierCfg)

	// App Store Server API client
	serverAPI := appstore.NewServerAPIClient(appstore.ServerAPIConfig{
		IssuerID:   os.Getenv("APPLE_ISSUER_ID"),
		KeyID:      os.Getenv("APPLE_KEY_ID"),
		PrivateKey: []byte(os.Getenv("APPLE_PRIVATE_KEY")),
		BundleID:   bundleID,
	})

	// Initialize services
	authSvc := auth.NewService(postgres.DB)
	entitlementSvc := entitlement.NewService(postgres.DB, verifier, serverAPI, entitlement.Config{
		SharedSecret: sharedSecret,
		BundleID:     bundleID,
	})

	// Initialize handlers
	entitlementHandler := entitlement.NewHandler(entitlementSvc)

	// Setup router
	mux := http.NewServeMux()

	// Protected routes
	mux.HandleFunc("POST /entitlement/redeem", authSvc.APIKeyMiddleware(entitlementHandler.HandleRedeem))
	mux.HandleFunc("GET /user/{user_id}/entitlement", authSvc.APIKeyMiddleware(entitlementHandler.HandleGetEntitlement))
	mux.HandleFunc("GET /user/{user_id}/entitlement/status", authSvc.APIKeyMiddleware(entitlementHandler.HandleGetEntitlementStatus))
	mux.HandleFunc("GET /entitlement/products", authSvc.APIKeyMiddleware(entitlementHandler.HandleGetProducts))

	// App Store notification webhook - Apple cannot send our API key, the
	// payload's shared secret is checked instead
	mux.HandleFunc("POST /webhook/apple/subscription", entitlementHandler.HandleAppStoreNotification)

	// Initialize server
	server := &http.Server{
		Addr: ":8080",
		Handler: LoggerMiddleware(logger)(
			common.RequestIDMiddleware(
				common.RecoveryMiddleware(
					common.TimeoutMiddleware(60 * time.Second)(mux),
				),
			),
		),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Shutdown gracefully
	logger.Println("Initiating server shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Error during server shutdown: %v", err)
	}

	logger.Println("Server shutdown complete")
}
