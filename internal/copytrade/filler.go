package copytrade

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/bitfleet/bitfleet/internal/bus"
	"github.com/bitfleet/bitfleet/internal/rules"
	"github.com/bitfleet/bitfleet/internal/types"
)

// Filler owns a rule engine preloaded with a portfolio's one-shot
// initial-fill rules. On a fill request it evaluates a buy for every
// target position in sequence and acknowledges exactly once when the whole
// fixed-size list has been processed.
type Filler struct {
	engine *rules.Engine
	rules  *rules.Store
	bus    *bus.Bus
}

// NewFiller wires a copy-trade filler.
func NewFiller(e *rules.Engine, r *rules.Store, b *bus.Bus) *Filler {
	return &Filler{engine: e, rules: r, bus: b}
}

// Start consumes fill requests until the context is cancelled.
func (f *Filler) Start(ctx context.Context) {
	logger := log.With().Str("service", "copytrade_filler").Logger()
	logger.Info().Msg("starting copy-trade filler")

	requests := f.bus.Subscribe(bus.TopicFillPositions)
	defer f.bus.Unsubscribe(bus.TopicFillPositions, requests)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down copy-trade filler")
			return
		case msg := <-requests:
			f.handle(ctx, msg)
		}
	}
}

func (f *Filler) handle(ctx context.Context, msg bus.Message) {
	logger := log.With().Str("service", "copytrade_filler").Logger()

	var req FillRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		logger.Error().Err(err).Msg("malformed fill request, dropping")
		return
	}

	logger = logger.With().Str("portfolio", req.PortfolioName).Logger()
	logger.Info().Int("positions", len(req.InitialPositions)).Msg("filling initial positions")

	set, err := f.rules.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load rule set, fills skipped")
		return
	}

	invoker := InitFillInvoker(req.PortfolioName)
	for _, target := range req.InitialPositions {
		ictx := types.Context{
			InvokedBy:     invoker,
			Gamer:         target.Gamer,
			Quantity:      target.Quantity,
			PortfolioName: req.PortfolioName,
		}
		if err := f.engine.EvaluateAndInvokeBuy(ctx, ictx, set); err != nil {
			logger.Error().
				Err(err).
				Str("gamer", target.Gamer).
				Msg("initial fill evaluation failed, continuing with remaining positions")
		}
	}

	// One ack per request, sent only after the full list was processed.
	f.bus.Publish(ctx, bus.TopicPositionsFilled, nil)
	logger.Info().Msg("initial fills processed, ack published")
}
