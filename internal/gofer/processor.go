package gofer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bitfleet/bitfleet/internal/chain"
)

// Processor is the queue consumer: it claims PENDING proposals, submits
// them through the chain gateway and finalizes them exactly once. Expired
// leases from a crashed claim are swept back each tick.
type Processor struct {
	queue      *Queue
	gateway    chain.Gateway
	consumerID string
	interval   time.Duration
	lease      time.Duration
	submitTTL  time.Duration
}

// NewProcessor creates a queue consumer.
func NewProcessor(queue *Queue, gateway chain.Gateway, consumerID string) *Processor {
	return &Processor{
		queue:      queue,
		gateway:    gateway,
		consumerID: consumerID,
		interval:   5 * time.Second,
		lease:      2 * time.Minute,
		submitTTL:  30 * time.Second,
	}
}

// Start runs the consume loop until the context is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().
		Str("component", "gofer_processor").
		Str("consumer_id", p.consumerID).
		Logger()
	logger.Info().Msg("starting proposal processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down proposal processor")
			return
		case <-ticker.C:
			if n, err := p.queue.ReclaimStale(p.lease); err != nil {
				logger.Error().Err(err).Msg("failed to reclaim stale proposals")
			} else if n > 0 {
				logger.Warn().Int64("reclaimed", n).Msg("reclaimed stale proposal claims")
			}
			if err := p.drainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("failed to drain proposal queue")
			}
		}
	}
}

// drainOnce claims and executes proposals until the queue is empty or the
// context ends.
func (p *Processor) drainOnce(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		order, err := p.queue.ClaimNext(p.consumerID)
		if err != nil {
			return err
		}
		if order == nil {
			return nil
		}
		p.execute(ctx, order)
	}
}

func (p *Processor) execute(ctx context.Context, order *ProposedOrder) {
	logger := log.With().
		Str("component", "gofer_processor").
		Str("proposal_id", order.ProposalID).
		Str("gamer", order.Gamer).
		Str("side", order.Side).
		Logger()

	submitCtx, cancel := context.WithTimeout(ctx, p.submitTTL)
	defer cancel()

	txHash, err := p.gateway.SubmitOrder(submitCtx, chain.Order{
		Gamer:    order.Gamer,
		Side:     order.Side,
		Quantity: order.Quantity,
		Wallet:   order.Holder,
	})
	if err != nil {
		logger.Error().Err(err).Msg("order submission failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// Leave the claim in place; the lease sweep re-queues it if we
			// never come back.
			return
		}
		if err := p.queue.Fail(order.ProposalID); err != nil {
			logger.Error().Err(err).Msg("failed to finalize failed proposal")
		}
		return
	}

	if err := p.queue.Resolve(order.ProposalID, txHash); err != nil {
		logger.Error().Err(err).Msg("failed to finalize resolved proposal")
		return
	}

	logger.Info().Str("tx_hash", txHash).Msg("proposal executed and resolved")
}
