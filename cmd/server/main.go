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

	"github.com/Hazyshades/mantle-estate-sub000/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub000/internal/database"
	"github.com/Hazyshades/mantle-estate-sub000/internal/funds"
	"github.com/Hazyshades/mantle-estate-sub000/internal/markets"
	"github.com/Hazyshades/mantle-estate-sub000/internal/pool"
	"github.com/Hazyshades/mantle-estate-sub000/internal/settlement"
	"github.com/Hazyshades/mantle-estate-sub000/internal/trading"
	"github.com/Hazyshades/mantle-estate-sub000/pkg/middleware"

	"github.com/gin-gonic/gin"
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

// main initializes and runs the perpetuals engine API server with graceful
// shutdown support
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "estate-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	fundsService := funds.NewService(db)
	fundsHandlers := funds.NewGinHandlers(fundsService)

	marketsService := markets.NewService(db)
	marketsHandlers := markets.NewGinHandlers(marketsService)

	poolService := pool.NewService(db)
	poolHandlers := pool.NewGinHandlers(poolService)

	tradingService := trading.NewService(db)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	// Create and start the settlement processor
	interval := time.Minute
	if v := os.Getenv("SETTLEMENT_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			interval = parsed
		}
	}
	settlementProcessor := settlement.NewProcessor(settlement.NewService(db), interval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go settlementProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, tradingHandlers, poolHandlers, marketsHandlers, fundsHandlers)

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
// - Auth routes: Public endpoints for authentication
// - Market routes: Public read-only market data
// - Position/pool/balance routes: Protected by JWT authentication
// - Internal routes: Trusted entry points (oracle, deposits, lifecycle)
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	poolHandlers *pool.GinHandlers,
	marketsHandlers *markets.GinHandlers,
	fundsHandlers *funds.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Market data routes (read-only, unauthenticated)
		marketsGroup := v1.Group("/markets")
		{
			marketsGroup.GET("", marketsHandlers.ListMarketsHandler())
			marketsGroup.GET("/:market_id", marketsHandlers.GetMarketHandler())
			marketsGroup.GET("/:market_id/metrics", marketsHandlers.GetMarketMetricsHandler())
			marketsGroup.GET("/:market_id/history", marketsHandlers.GetPriceHistoryHandler())
		}

		// Position routes
		positions := v1.Group("/positions")
		positions.Use(middleware.JWTAuth(jwtSecret))
		{
			positions.POST("", tradingHandlers.OpenPositionHandler())
			positions.GET("", tradingHandlers.ListPositionsHandler())
			positions.GET("/:position_id", tradingHandlers.GetPositionHandler())
			positions.POST("/:position_id/close", tradingHandlers.ClosePositionHandler())
		}

		// Liquidity pool routes
		pools := v1.Group("/pools")
		pools.Use(middleware.JWTAuth(jwtSecret))
		{
			pools.GET("/:market_id", poolHandlers.GetPoolHandler())
			pools.POST("/:market_id/deposits", poolHandlers.DepositHandler())
			pools.POST("/:market_id/withdrawals", poolHandlers.WithdrawHandler())
		}

		// Balance route
		balance := v1.Group("/balance")
		balance.Use(middleware.JWTAuth(jwtSecret))
		{
			balance.GET("", fundsHandlers.GetBalanceHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/oracle/:market_id", marketsHandlers.SetMarketPriceHandler())
			internal.POST("/deposits", fundsHandlers.CreditDepositHandler())
			internal.POST("/positions", tradingHandlers.InternalOpenPositionHandler())
			internal.POST("/positions/:position_id/close", tradingHandlers.InternalClosePositionHandler())
		}
	}
}
