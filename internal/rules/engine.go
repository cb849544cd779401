package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bitfleet/bitfleet/internal/chain"
	"github.com/bitfleet/bitfleet/internal/gofer"
	"github.com/bitfleet/bitfleet/internal/guard"
	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/internal/types"
	"github.com/bitfleet/bitfleet/internal/valuation"
)

// Engine evaluates trigger rules and dispatches matching ones through the
// guard layer into the proposal queue. All dependencies are injected; an
// engine instance carries no state between triggers.
type Engine struct {
	guard      *guard.Service
	queue      *gofer.Queue
	portfolios *portfolio.Service
	valuation  *valuation.Engine
	gateway    chain.Gateway
}

// NewEngine wires a rule engine.
func NewEngine(g *guard.Service, q *gofer.Queue, p *portfolio.Service, v *valuation.Engine, gw chain.Gateway) *Engine {
	return &Engine{guard: g, queue: q, portfolios: p, valuation: v, gateway: gw}
}

// EvaluateAndInvokeBuy runs the buy trigger path over the rule set.
func (e *Engine) EvaluateAndInvokeBuy(ctx context.Context, ictx types.Context, set []Rule) error {
	ictx.IsBuy = true
	return e.evaluate(ctx, ictx, set)
}

// EvaluateAndInvokeSell runs the sell trigger path over the rule set.
func (e *Engine) EvaluateAndInvokeSell(ctx context.Context, ictx types.Context, set []Rule) error {
	ictx.IsBuy = false
	return e.evaluate(ctx, ictx, set)
}

// evaluate fires every matching rule independently, in rule-set order.
// Non-matching rules are skipped silently; a failing action does not stop
// later rules from firing.
func (e *Engine) evaluate(ctx context.Context, ictx types.Context, set []Rule) error {
	logger := log.With().
		Str("invoked_by", ictx.InvokedBy).
		Str("gamer", ictx.Gamer).
		Str("service", "rules").
		Logger()

	var errs []error
	for _, rule := range set {
		if !rule.AllowsInvoker(ictx.InvokedBy) {
			continue
		}

		conds, err := rule.DecodeConditions()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		matched := true
		for _, cond := range conds {
			ok, err := cond.Matches(ictx)
			if err != nil {
				matched = false
				errs = append(errs, err)
				break
			}
			if !ok {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		bound := ictx
		bound.RuleID = rule.RuleID

		action, err := rule.DecodeAction()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		logger.Debug().
			Str("rule_id", rule.RuleID).
			Str("action_kind", action.Kind).
			Msg("rule matched, dispatching")

		if err := e.dispatch(ctx, bound, action); err != nil {
			logger.Error().Err(err).Str("rule_id", rule.RuleID).Msg("action failed")
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.RuleID, err))
		}
	}
	return errors.Join(errs...)
}

// dispatch routes a bound context into exactly one action kind. Quantity
// and portfolio are resolved from the action first, the context second.
func (e *Engine) dispatch(ctx context.Context, ictx types.Context, action *Action) error {
	quantity := action.Quantity
	if quantity == 0 {
		quantity = ictx.Quantity
	}
	portfolioName := action.PortfolioName
	if portfolioName == "" {
		portfolioName = ictx.PortfolioName
	}

	switch action.Kind {
	case ActionBuyUpTo:
		return e.actionBuyUpTo(ctx, ictx, quantity, portfolioName, false)
	case ActionCopyBuy:
		if portfolioName == "" {
			return types.Invalidf("copy-buy action requires a portfolio")
		}
		return e.actionBuyUpTo(ctx, ictx, quantity, portfolioName, action.IsInitialFill)
	case ActionSell:
		return e.actionSell(ctx, ictx, quantity, portfolioName)
	case ActionCopySell:
		if portfolioName == "" {
			return types.Invalidf("copy-sell action requires a portfolio")
		}
		return e.actionSell(ctx, ictx, quantity, portfolioName)
	}
	return types.Invalidf("unknown action kind %q", action.Kind)
}

// actionBuyUpTo guards and proposes a buy. Initial copy-trade fills bypass
// the guard entirely: the portfolio was sized moments ago and has no P&L
// history to gate on.
func (e *Engine) actionBuyUpTo(ctx context.Context, ictx types.Context, quantity int64, portfolioName string, isInitialFill bool) error {
	if quantity <= 0 {
		return types.Invalidf("buy action requires a positive quantity, got %d", quantity)
	}

	adjusted := quantity
	if !isInitialFill {
		if portfolioName != "" {
			gated, err := e.stopLossGate(ctx, ictx.Gamer, portfolioName, quantity)
			if err != nil {
				return err
			}
			adjusted = gated
		}
		if adjusted > 0 {
			clamped, err := e.guard.AdjustBuyTargetAmount(ictx.Gamer, adjusted)
			if err != nil {
				return err
			}
			adjusted = clamped
		}
	}

	return e.proposeOrAlert(ictx, gofer.ProposalRequest{
		Gamer:         ictx.Gamer,
		Side:          types.SideBuy,
		Quantity:      adjusted,
		RuleID:        ictx.RuleID,
		InvokedBy:     ictx.InvokedBy,
		PortfolioName: portfolioName,
	})
}

// actionSell guards and proposes a sell, defaulting the seller to the
// largest fleet holder of the gamer when the trigger names none.
func (e *Engine) actionSell(ctx context.Context, ictx types.Context, quantity int64, portfolioName string) error {
	if quantity <= 0 {
		return types.Invalidf("sell action requires a positive quantity, got %d", quantity)
	}

	holder := ictx.Holder
	adjusted := int64(0)
	if holder == "" {
		largest, err := e.portfolios.LargestHolder(ictx.Gamer, portfolioName)
		switch {
		case errors.Is(err, portfolio.ErrNoHolder):
			// Nothing to sell anywhere in the fleet: a guard rejection,
			// not an error.
		case err != nil:
			return err
		default:
			holder = largest
		}
	}
	if holder != "" {
		clamped, err := e.guard.AdjustSellTargetAmount(ictx.Gamer, holder, quantity)
		if err != nil {
			return err
		}
		adjusted = clamped
	}

	return e.proposeOrAlert(ictx, gofer.ProposalRequest{
		Gamer:         ictx.Gamer,
		Side:          types.SideSell,
		Quantity:      adjusted,
		RuleID:        ictx.RuleID,
		InvokedBy:     ictx.InvokedBy,
		Holder:        holder,
		PortfolioName: portfolioName,
	})
}

// stopLossGate computes the portfolio's P&L and applies the stop-loss
// pass/fail gate to the requested quantity.
func (e *Engine) stopLossGate(ctx context.Context, gamer, portfolioName string, quantity int64) (int64, error) {
	p, err := e.portfolios.GetByName(portfolioName)
	if err != nil {
		return 0, err
	}
	wallets, err := e.portfolios.Wallets(portfolioName)
	if err != nil {
		return 0, err
	}
	report, err := e.valuation.ComputePandL(ctx, 0, wallets...)
	if err != nil {
		return 0, err
	}
	decimals, err := e.gateway.Decimals(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch token decimals: %w", err)
	}
	return e.guard.AdjustBuyForStopLoss(gamer, report, p.InitialValuation(decimals), p.StopLossPercent, quantity), nil
}

// proposeOrAlert is the tail of every action: a positive adjusted quantity
// becomes a proposal; a zero with unresolved proposals outstanding raises
// exactly one stagnation alert; a zero with a clean queue is silence.
func (e *Engine) proposeOrAlert(ictx types.Context, req gofer.ProposalRequest) error {
	if req.Quantity > 0 {
		_, err := e.queue.ProposeOrder(req)
		return err
	}

	pending, err := e.guard.ProposedSum(req.Gamer, req.Side, "")
	if err != nil {
		return err
	}
	if pending > 0 {
		e.queue.RaiseAlert(req.Gamer, req.Side)
	}
	return nil
}
