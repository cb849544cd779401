package guard

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/bitfleet/bitfleet/internal/gofer"
	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/types"
	"github.com/bitfleet/bitfleet/internal/valuation"
)

// DefaultMaxGamerExposure caps fleet-wide held plus pending buy quantity
// per gamer.
const DefaultMaxGamerExposure int64 = 50

// Service bounds requested quantities to safe, executable amounts. A zero
// return is a normal guard rejection, never an error.
type Service struct {
	store            *positions.Store
	queue            *gofer.Queue
	MaxGamerExposure int64
}

// NewService creates a guard over the position store and proposal queue.
func NewService(store *positions.Store, queue *gofer.Queue) *Service {
	return &Service{
		store:            store,
		queue:            queue,
		MaxGamerExposure: DefaultMaxGamerExposure,
	}
}

// AdjustBuyTargetAmount clamps a requested buy against the per-gamer
// exposure cap, counting both fleet-wide holdings and PENDING buy
// proposals. Returns zero when no headroom remains.
func (s *Service) AdjustBuyTargetAmount(gamer string, requested int64) (int64, error) {
	held, err := s.store.TotalHeld(gamer)
	if err != nil {
		return 0, err
	}
	pending, err := s.queue.ProposedSum(gamer, types.SideBuy, "")
	if err != nil {
		return 0, err
	}

	headroom := s.MaxGamerExposure - held - pending
	if headroom <= 0 {
		log.Info().
			Str("gamer", gamer).
			Int64("held", held).
			Int64("pending", pending).
			Int64("requested", requested).
			Str("service", "guard").
			Msg("buy rejected, exposure cap reached")
		return 0, nil
	}
	if requested > headroom {
		log.Info().
			Str("gamer", gamer).
			Int64("requested", requested).
			Int64("adjusted", headroom).
			Str("service", "guard").
			Msg("buy clamped to exposure headroom")
		return headroom, nil
	}
	return requested, nil
}

// AdjustSellTargetAmount clamps a requested sell to the holder's stored
// balance so the fleet can never oversell.
func (s *Service) AdjustSellTargetAmount(gamer, holder string, requested int64) (int64, error) {
	balance, err := s.store.GetBitBalance(holder, gamer)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, nil
	}
	if requested > balance {
		log.Info().
			Str("gamer", gamer).
			Str("holder", holder).
			Int64("requested", requested).
			Int64("adjusted", balance).
			Str("service", "guard").
			Msg("sell clamped to stored balance")
		return balance, nil
	}
	return requested, nil
}

// AdjustBuyForStopLoss gates a buy on the portfolio's stop-loss threshold.
// The current percent is the portfolio's absolute profit over its initial
// valuation, zero when no report exists yet. Buying continues only while
// the portfolio is profitable beyond the configured percent; at or below
// it the gate closes. Pass or fail: the quantity is returned unchanged or
// zeroed, never resized.
func (s *Service) AdjustBuyForStopLoss(gamer string, report *valuation.Report, initialValuation decimal.Decimal, stopLossPercent int, requested int64) int64 {
	stop := decimal.NewFromInt(int64(stopLossPercent)).Abs()

	current := decimal.Zero
	if report != nil && initialValuation.IsPositive() {
		current = report.Total.AbsoluteProfit.Div(initialValuation).Mul(decimal.NewFromInt(100))
	}

	if stop.GreaterThanOrEqual(current) {
		log.Info().
			Str("gamer", gamer).
			Str("stop_loss", stop.String()).
			Str("current_percent", current.String()).
			Str("service", "guard").
			Msg("buy rejected, stop-loss gate closed")
		return 0
	}
	return requested
}

// ProposedSum reports the unresolved proposal quantity for a gamer and
// side; actions use it to decide whether a zero adjustment warrants a
// stagnation alert.
func (s *Service) ProposedSum(gamer, side, holder string) (int64, error) {
	return s.queue.ProposedSum(gamer, side, holder)
}
