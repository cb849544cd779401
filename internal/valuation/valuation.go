package valuation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/bitfleet/bitfleet/internal/chain"
	"github.com/bitfleet/bitfleet/internal/positions"
)

// Entry is the P&L of a single holder (or the aggregate) in normalized
// token units.
type Entry struct {
	AbsoluteProfit            decimal.Decimal `json:"absolute_profit"`
	PercentProfit             decimal.Decimal `json:"percent_profit"`
	AdjustedInitialInvestment decimal.Decimal `json:"adjusted_initial_investment"`
}

// Report maps each holder to its P&L plus a fleet-wide total. It is
// derived on demand and never persisted.
type Report struct {
	Holders map[string]Entry `json:"holders"`
	Total   Entry            `json:"total"`
}

// Engine computes profit and loss from the position store's lot history and
// live sell-side quotes.
type Engine struct {
	store   *positions.Store
	gateway chain.Gateway
}

// NewEngine creates a valuation engine over the given store and gateway.
func NewEngine(store *positions.Store, gateway chain.Gateway) *Engine {
	return &Engine{store: store, gateway: gateway}
}

// ComputePandL replays the buy lots of each holder against current
// sell-side prices. Lots bought below startBlock are excluded from both
// profit and invested capital, so the report measures only the current
// strategy epoch. Deterministic for fixed store contents, startBlock and
// quotes.
func (e *Engine) ComputePandL(ctx context.Context, startBlock uint64, holders ...string) (*Report, error) {
	logger := log.With().
		Uint64("start_block", startBlock).
		Str("service", "valuation").
		Logger()

	full, err := e.store.GetFullStore(holders...)
	if err != nil {
		return nil, err
	}

	decimals, err := e.gateway.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token decimals: %w", err)
	}

	report := &Report{Holders: make(map[string]Entry, len(full))}
	totalCost := decimal.Zero
	totalValue := decimal.Zero

	for holder := range full {
		lots, err := e.store.Lots(holder, "")
		if err != nil {
			return nil, err
		}

		qtyByGamer := make(map[string]int64)
		costWei := new(big.Int)
		for _, lot := range lots {
			if lot.Block < startBlock {
				continue
			}
			c, ok := new(big.Int).SetString(lot.CostWei, 10)
			if !ok {
				return nil, fmt.Errorf("corrupt lot cost %q for holder %s", lot.CostWei, holder)
			}
			costWei.Add(costWei, c)
			qtyByGamer[lot.Gamer] += lot.Quantity
		}

		valueWei := new(big.Int)
		for gamer, qty := range qtyByGamer {
			if qty <= 0 {
				continue
			}
			price, err := e.gateway.GetSellPrice(ctx, gamer, qty)
			if err != nil {
				return nil, fmt.Errorf("failed to quote %s: %w", gamer, err)
			}
			valueWei.Add(valueWei, price)
		}

		cost := decimal.NewFromBigInt(costWei, -decimals)
		value := decimal.NewFromBigInt(valueWei, -decimals)
		entry := Entry{
			AbsoluteProfit:            value.Sub(cost),
			AdjustedInitialInvestment: cost,
		}
		if cost.IsPositive() {
			entry.PercentProfit = entry.AbsoluteProfit.Div(cost).Mul(decimal.NewFromInt(100))
		}
		report.Holders[holder] = entry

		totalCost = totalCost.Add(cost)
		totalValue = totalValue.Add(value)

		logger.Debug().
			Str("holder", holder).
			Str("cost", cost.String()).
			Str("value", value.String()).
			Str("profit", entry.AbsoluteProfit.String()).
			Msg("computed holder P&L")
	}

	report.Total = Entry{
		AbsoluteProfit:            totalValue.Sub(totalCost),
		AdjustedInitialInvestment: totalCost,
	}
	if totalCost.IsPositive() {
		report.Total.PercentProfit = report.Total.AbsoluteProfit.Div(totalCost).Mul(decimal.NewFromInt(100))
	}

	logger.Info().
		Int("holders", len(report.Holders)).
		Str("total_profit", report.Total.AbsoluteProfit.String()).
		Str("total_percent", report.Total.PercentProfit.String()).
		Msg("computed P&L report")

	return report, nil
}
