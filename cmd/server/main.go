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

	"github.com/gin-gonic/gin"

	"github.com/bitfleet/bitfleet/internal/auth"
	"github.com/bitfleet/bitfleet/internal/chain"
	"github.com/bitfleet/bitfleet/internal/database"
	"github.com/bitfleet/bitfleet/internal/gofer"
	"github.com/bitfleet/bitfleet/internal/guard"
	"github.com/bitfleet/bitfleet/internal/indexer"
	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/rules"
	"github.com/bitfleet/bitfleet/internal/valuation"
	"github.com/bitfleet/bitfleet/pkg/middleware"
)

// init configures logging from the environment: pretty console output
// outside production, debug level behind DEBUG=true.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "bitfleet.db"
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		zlog.Fatal().Msg("JWT_SECRET is required")
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	gateway := chain.NewSimulated(time.Now().UnixNano())

	store := positions.NewStore(db)
	queue := gofer.NewQueue(db)
	portfolios := portfolio.NewService(db, store)
	valuationEngine := valuation.NewEngine(store, gateway)
	guardService := guard.NewService(store, queue)
	engine := rules.NewEngine(guardService, queue, portfolios, valuationEngine, gateway)

	ruleStore := rules.NewStore(db)
	ruleSet, err := ruleStore.Load()
	if err != nil {
		// Malformed rule sets abort startup; running with a partial set
		// would silently skip triggers.
		zlog.Fatal().Err(err).Msg("Failed to load rule set")
	}

	authService := auth.NewService(jwtSecret)
	if key, secret := os.Getenv("OPERATOR_API_KEY"), os.Getenv("OPERATOR_API_SECRET"); key != "" {
		authService.RegisterCredentials(key, secret)
	}

	authHandlers := auth.NewGinHandlers(authService)
	goferHandlers := gofer.NewGinHandlers(queue)
	portfolioHandlers := portfolio.NewGinHandlers(portfolios)
	valuationHandlers := valuation.NewGinHandlers(valuationEngine, portfolios)
	triggerHandlers := rules.NewGinHandlers(engine, ruleSet)

	// Background processes: queue consumer and position indexer.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	processor := gofer.NewProcessor(queue, gateway, "server-consumer")
	go processor.Start(bgCtx)

	idx := indexer.New(store, gateway, 0)
	go idx.Start(bgCtx)

	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, []byte(jwtSecret), authHandlers, goferHandlers, portfolioHandlers, valuationHandlers, triggerHandlers)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes groups endpoints: public auth, operator read endpoints
// behind JWT, trigger endpoints behind internal auth.
func setupRoutes(
	router *gin.Engine,
	jwtSecret []byte,
	authHandlers *auth.GinHandlers,
	goferHandlers *gofer.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
	valuationHandlers *valuation.GinHandlers,
	triggerHandlers *rules.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		operator := v1.Group("")
		operator.Use(middleware.JWTAuth(jwtSecret))
		{
			operator.GET("/proposals", goferHandlers.ListProposalsHandler())
			operator.GET("/proposals/:proposal_id", goferHandlers.GetProposalHandler())
			operator.POST("/portfolios", portfolioHandlers.CreatePortfolioHandler())
			operator.GET("/portfolios/:name", portfolioHandlers.GetPortfolioHandler())
			operator.GET("/reports/pnl", valuationHandlers.PandLReportHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/triggers/buy", triggerHandlers.TriggerBuyHandler())
			internal.POST("/triggers/sell", triggerHandlers.TriggerSellHandler())
		}
	}
}
