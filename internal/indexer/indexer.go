package indexer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bitfleet/bitfleet/internal/chain"
	"github.com/bitfleet/bitfleet/internal/positions"
)

// Indexer is the single writer of the position store. It polls the chain
// gateway for confirmed transfer events and applies them in order. No
// other component may mutate positions.
type Indexer struct {
	store    *positions.Store
	gateway  chain.Gateway
	interval time.Duration
	next     uint64
}

// New creates an indexer that starts from the given block.
func New(store *positions.Store, gateway chain.Gateway, fromBlock uint64) *Indexer {
	return &Indexer{
		store:    store,
		gateway:  gateway,
		interval: 3 * time.Second,
		next:     fromBlock,
	}
}

// Start runs the indexing loop until the context is cancelled.
func (i *Indexer) Start(ctx context.Context) {
	logger := log.With().Str("component", "indexer").Logger()
	logger.Info().Uint64("from_block", i.next).Msg("starting position indexer")

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down position indexer")
			return
		case <-ticker.C:
			if err := i.Sync(ctx); err != nil {
				logger.Error().Err(err).Msg("index pass failed")
			}
		}
	}
}

// Sync applies every confirmed event at or above the cursor, then advances
// it. Exported so one-shot flows can index synchronously.
func (i *Indexer) Sync(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	events, err := i.gateway.TransferEvents(pollCtx, i.next)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if ev.IsBuy {
			err = i.store.ApplyBuy(ev.Holder, ev.Gamer, ev.Quantity, ev.Block, ev.CostWei)
		} else {
			err = i.store.ApplySell(ev.Holder, ev.Gamer, ev.Quantity)
		}
		if err != nil {
			return err
		}
		if ev.Block >= i.next {
			i.next = ev.Block + 1
		}

		log.Debug().
			Str("component", "indexer").
			Str("holder", ev.Holder).
			Str("gamer", ev.Gamer).
			Int64("quantity", ev.Quantity).
			Bool("is_buy", ev.IsBuy).
			Uint64("block", ev.Block).
			Msg("applied transfer event")
	}
	return nil
}
