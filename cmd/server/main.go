package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/tradesim/tradesim-api/internal/admin"
	"github.com/tradesim/tradesim-api/internal/auth"
	"github.com/tradesim/tradesim-api/internal/binary"
	"github.com/tradesim/tradesim-api/internal/database"
	"github.com/tradesim/tradesim-api/internal/ledger"
	"github.com/tradesim/tradesim-api/internal/market"
	"github.com/tradesim/tradesim-api/internal/spot"
	"github.com/tradesim/tradesim-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const (
	defaultSymbol     = "BTCUSD"
	jwtSecret         = "tradesim-secret-key"
	defaultAdminToken = "tradesim-admin-token"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading simulator API with graceful shutdown
// support. One background goroutine drives the price walk; everything else
// is request-triggered.
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DB_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register demo credentials
	authService.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret)

	marketDB := market.NewDatabase(db)
	aggregator := market.NewAggregator(marketDB)
	engine, err := market.NewEngine(marketDB, aggregator, defaultSymbol, market.MarketSettings{
		BasePrice:       65000,
		Volatility:      0.5,
		PipSize:         0.01,
		SpeedMultiplier: 1,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize price engine")
	}

	marketService := market.NewService(db, engine, aggregator)
	marketHandlers := market.NewGinHandlers(marketService)

	ledgerDB := ledger.NewDatabase(db)

	spotService := spot.NewService(db, ledgerDB, engine, spot.Config{})
	spotHandlers := spot.NewGinHandlers(spotService)

	binaryService := binary.NewService(db, ledgerDB, engine, binary.DefaultConfig())
	binaryHandlers := binary.NewGinHandlers(binaryService)

	adminService := admin.NewService(db, ledgerDB, engine)
	adminHandlers := admin.NewGinHandlers(adminService)

	// Create and start the price ticker
	ticker := market.NewTicker(engine, time.Second)
	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	defer tickerCancel()

	go ticker.Start(tickerCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		adminToken = defaultAdminToken
	}
	setupRoutes(router, adminToken, authHandlers, marketHandlers, spotHandlers, binaryHandlers, adminHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the price ticker before draining requests
	tickerCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for demo token issuance
// - Market routes: Public read-only price and candle data
// - Spot/binary routes: Protected by JWT authentication
// - Admin routes: Protected by the admin token
func setupRoutes(
	router *gin.Engine,
	adminToken string,
	authHandlers *auth.GinHandlers,
	marketHandlers *market.GinHandlers,
	spotHandlers *spot.GinHandlers,
	binaryHandlers *binary.GinHandlers,
	adminHandlers *admin.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Market data routes
		marketGroup := v1.Group("/market")
		{
			marketGroup.GET("/state", marketHandlers.GetMarketStateHandler())
			marketGroup.GET("/candles", marketHandlers.GetCandlesHandler())
		}

		// Spot trade routes
		spotGroup := v1.Group("/spot")
		spotGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			spotGroup.POST("/trades", spotHandlers.OpenTradeHandler())
			spotGroup.POST("/trades/:trade_id/close", spotHandlers.CloseTradeHandler())
			spotGroup.POST("/trades/close-all", spotHandlers.CloseAllTradesHandler())
			spotGroup.GET("/overview", spotHandlers.OverviewHandler())
			spotGroup.GET("/leaderboard", spotHandlers.LeaderboardHandler())
		}

		// Binary option routes
		binaryGroup := v1.Group("/binary")
		binaryGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			binaryGroup.POST("/trades", binaryHandlers.PlaceTradeHandler())
			binaryGroup.GET("/overview", binaryHandlers.OverviewHandler())
		}

		// Privileged routes (admin token)
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.AdminAuth(adminToken))
		{
			adminGroup.POST("/price", adminHandlers.SetPriceHandler())
			adminGroup.POST("/volatility", adminHandlers.SetVolatilityHandler())
			adminGroup.POST("/pause", adminHandlers.PauseHandler())
			adminGroup.POST("/resume", adminHandlers.ResumeHandler())
			adminGroup.POST("/pump", adminHandlers.PumpHandler())
			adminGroup.POST("/reset", adminHandlers.ResetHandler())
			adminGroup.POST("/ticks", marketHandlers.IngestTickHandler())
		}
	}
}
