package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/bitfleet/bitfleet/internal/bus"
	"github.com/bitfleet/bitfleet/internal/chain"
	"github.com/bitfleet/bitfleet/internal/copytrade"
	"github.com/bitfleet/bitfleet/internal/database"
	"github.com/bitfleet/bitfleet/internal/gofer"
	"github.com/bitfleet/bitfleet/internal/guard"
	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/rules"
	"github.com/bitfleet/bitfleet/internal/types"
	"github.com/bitfleet/bitfleet/internal/valuation"
)

// copysetup creates a copy-trading portfolio and fills its initial
// positions. The initializer and filler run in this one process, joined by
// the local event bus; the process exits zero only after the filler's
// acknowledgment arrives.
func main() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	var (
		name      = flag.String("name", "", "portfolio name")
		trader    = flag.String("trader", "", "copied trader address")
		strategy  = flag.String("strategy", portfolio.StrategyMid, "copy strategy: min, mid, all, none")
		stopLoss  = flag.Int("stop-loss", 5, "stop-loss percent, 1-10")
		valuWei   = flag.String("initial-valuation-wei", "", "initial valuation in wei")
		wallets   = flag.String("wallets", "", "comma-separated fleet wallet addresses")
		posFile   = flag.String("positions", "", "path to JSON file of copied positions [{gamer, quantity}]")
		dbPath    = flag.String("db", "bitfleet.db", "database path")
		ackWait   = flag.Duration("ack-timeout", copytrade.DefaultAckTimeout, "how long to wait for the fill acknowledgment")
	)
	flag.Parse()

	if *name == "" || *valuWei == "" || *wallets == "" || *posFile == "" {
		zlog.Fatal().Msg("name, initial-valuation-wei, wallets and positions are required")
	}

	raw, err := os.ReadFile(*posFile)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to read positions file")
	}
	var copied []copytrade.TargetPosition
	if err := json.Unmarshal(raw, &copied); err != nil {
		zlog.Fatal().Err(err).Msg("Malformed positions file")
	}

	db, err := database.NewDatabase(*dbPath)
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

	eventBus := bus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filler := copytrade.NewFiller(engine, ruleStore, eventBus)
	go filler.Start(ctx)

	initializer := copytrade.NewInitializer(portfolios, ruleStore, eventBus)
	initializer.AckTimeout = *ackWait

	err = initializer.Run(ctx, copytrade.SetupRequest{
		Portfolio: portfolio.CreateRequest{
			Name:                *name,
			CopiedTrader:        *trader,
			CopyStrategy:        *strategy,
			InitialValuationWei: *valuWei,
			StopLossPercent:     *stopLoss,
			WalletAddresses:     strings.Split(*wallets, ","),
		},
		CopiedPositions: copied,
	})
	switch {
	case errors.Is(err, types.ErrValidation):
		zlog.Error().Err(err).Msg("Setup rejected, nothing was written")
		os.Exit(2)
	case errors.Is(err, copytrade.ErrAckTimeout):
		zlog.Error().Err(err).Msg("Filler never acknowledged; portfolio and rules persisted, fills may be incomplete")
		os.Exit(1)
	case err != nil:
		zlog.Error().Err(err).Msg("Setup failed")
		os.Exit(1)
	}

	zlog.Info().Str("portfolio", *name).Msg("Copy-trade setup complete")
}
