package copytrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bitfleet/bitfleet/internal/bus"
	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/internal/rules"
	"github.com/bitfleet/bitfleet/internal/types"
)

// Handshake states of the initializer. Transitions are strictly
// IDLE → AWAITING_ACK → DONE, with a timeout edge to FAILED.
const (
	StateIdle        = "IDLE"
	StateAwaitingAck = "AWAITING_ACK"
	StateDone        = "DONE"
	StateFailed      = "FAILED"
)

// ErrAckTimeout is returned when the filler never acknowledges within the
// configured window.
var ErrAckTimeout = errors.New("timed out waiting for positions-filled ack")

// DefaultAckTimeout bounds the wait for the filler's acknowledgment.
const DefaultAckTimeout = 30 * time.Second

// Initializer runs the one-shot copy-trade setup: persist the portfolio,
// append its initial-fill rules, request fills and wait for the single ack.
// Setup is idempotent under retry; portfolio names are unique and rules are
// content-hashed.
type Initializer struct {
	portfolios *portfolio.Service
	rules      *rules.Store
	bus        *bus.Bus
	AckTimeout time.Duration
}

// NewInitializer wires a copy-trade initializer.
func NewInitializer(p *portfolio.Service, r *rules.Store, b *bus.Bus) *Initializer {
	return &Initializer{
		portfolios: p,
		rules:      r,
		bus:        b,
		AckTimeout: DefaultAckTimeout,
	}
}

// SetupRequest describes the portfolio to create and the copied trader's
// positions to mirror.
type SetupRequest struct {
	Portfolio       portfolio.CreateRequest
	CopiedPositions []TargetPosition
}

// Run executes the full setup handshake. Nothing is written when
// validation fails; once the portfolio row exists, a lost ack only delays
// fills, it never loses state.
func (i *Initializer) Run(ctx context.Context, req SetupRequest) error {
	logger := log.With().
		Str("portfolio", req.Portfolio.Name).
		Str("service", "copytrade_initializer").
		Logger()

	state := StateIdle
	logger.Info().Str("state", state).Msg("starting copy-trade setup")

	targets := make([]TargetPosition, 0, len(req.CopiedPositions))
	for _, pos := range req.CopiedPositions {
		sized := SizeForStrategy(req.Portfolio.CopyStrategy, pos.Quantity)
		if sized <= 0 {
			continue
		}
		targets = append(targets, TargetPosition{Gamer: pos.Gamer, Quantity: sized})
	}
	if len(targets) == 0 {
		return types.Invalidf("copy strategy %q yields no target positions", req.Portfolio.CopyStrategy)
	}

	p, err := i.portfolios.Create(req.Portfolio)
	if err != nil {
		return err
	}

	invoker := InitFillInvoker(p.Name)
	for idx, target := range targets {
		_, err := i.rules.Append(
			invoker,
			[]rules.Condition{{Field: "gamer", Op: "eq", Value: target.Gamer}},
			rules.Action{
				Kind:          rules.ActionCopyBuy,
				Quantity:      target.Quantity,
				PortfolioName: p.Name,
				IsInitialFill: true,
			},
			idx,
		)
		if err != nil {
			return fmt.Errorf("failed to append initial-fill rule: %w", err)
		}
	}

	// Subscribe before publishing so the ack cannot slip past us, and drop
	// the subscription on exit so retries never stack up dead channels.
	ack := i.bus.Subscribe(bus.TopicPositionsFilled)
	defer i.bus.Unsubscribe(bus.TopicPositionsFilled, ack)

	payload, err := json.Marshal(FillRequest{
		PortfolioName:    p.Name,
		InitialPositions: targets,
	})
	if err != nil {
		return fmt.Errorf("failed to encode fill request: %w", err)
	}
	i.bus.Publish(ctx, bus.TopicFillPositions, payload)

	state = StateAwaitingAck
	logger.Info().
		Str("state", state).
		Int("positions", len(targets)).
		Msg("fill request published, awaiting ack")

	select {
	case <-ack:
		state = StateDone
		logger.Info().Str("state", state).Msg("initial positions filled")
		return nil
	case <-time.After(i.AckTimeout):
		state = StateFailed
		logger.Error().Str("state", state).Dur("timeout", i.AckTimeout).Msg("ack never arrived")
		return ErrAckTimeout
	case <-ctx.Done():
		state = StateFailed
		logger.Error().Str("state", state).Err(ctx.Err()).Msg("setup cancelled")
		return ctx.Err()
	}
}
