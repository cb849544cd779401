package chain

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Simulated is an in-memory gateway used by the binaries and tests. It
// prices bits on a quadratic bonding curve and simulates latency and
// failures so consumers exercise their error paths.
type Simulated struct {
	mu         sync.Mutex
	rng        *rand.Rand
	supply     map[string]int64
	events     []TransferEvent
	block      uint64
	MinLatency time.Duration
	MaxLatency time.Duration
	FailRate   float64 // 0-1, probability a submit fails
}

// NewSimulated creates a deterministic simulated gateway for the given seed.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{
		rng:    rand.New(rand.NewSource(seed)),
		supply: make(map[string]int64),
		block:  1,
	}
}

// curveUnit is the wei price of the first bit; subsequent bits follow
// supply^2 scaling, mirroring the venue's bonding curve.
var curveUnit = big.NewInt(62_500_000_000_000) // 1/16000 ether

func curvePrice(supply, amount int64) *big.Int {
	total := new(big.Int)
	for i := int64(0); i < amount; i++ {
		s := supply + i
		total.Add(total, new(big.Int).Mul(curveUnit, big.NewInt(s*s+1)))
	}
	return total
}

func (s *Simulated) sleep(ctx context.Context) error {
	if s.MaxLatency <= s.MinLatency {
		return ctx.Err()
	}
	d := s.MinLatency + time.Duration(s.rng.Int63n(int64(s.MaxLatency-s.MinLatency)))
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUpstream, ctx.Err())
	case <-time.After(d):
		return nil
	}
}

func (s *Simulated) GetBuyPrice(ctx context.Context, gamer string, quantity int64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	return curvePrice(s.supply[gamer], quantity), nil
}

func (s *Simulated) GetSellPrice(ctx context.Context, gamer string, quantity int64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	sup := s.supply[gamer]
	if quantity > sup {
		quantity = sup
	}
	return curvePrice(sup-quantity, quantity), nil
}

func (s *Simulated) BalanceOf(ctx context.Context, wallet string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	// The simulation funds every wallet with 10 ether.
	return new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)), nil
}

func (s *Simulated) Decimals(ctx context.Context) (int32, error) {
	return 18, nil
}

// SubmitOrder executes the order against the curve and records the
// confirmed transfer event for the indexer to pick up.
func (s *Simulated) SubmitOrder(ctx context.Context, order Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	if s.FailRate > 0 && s.rng.Float64() < s.FailRate {
		log.Warn().
			Str("gamer", order.Gamer).
			Str("side", order.Side).
			Msg("simulated order submission reverted")
		return "", fmt.Errorf("%w: transaction reverted", ErrUpstream)
	}

	isBuy := order.Side == "BUY"
	sup := s.supply[order.Gamer]
	var cost *big.Int
	if isBuy {
		cost = curvePrice(sup, order.Quantity)
		s.supply[order.Gamer] = sup + order.Quantity
	} else {
		qty := order.Quantity
		if qty > sup {
			qty = sup
		}
		cost = curvePrice(sup-qty, qty)
		s.supply[order.Gamer] = sup - qty
	}

	s.block++
	s.events = append(s.events, TransferEvent{
		Block:    s.block,
		Gamer:    order.Gamer,
		Holder:   order.Wallet,
		Quantity: order.Quantity,
		CostWei:  cost,
		IsBuy:    isBuy,
	})

	return fmt.Sprintf("0xsim%016x", s.block), nil
}

func (s *Simulated) TransferEvents(ctx context.Context, fromBlock uint64) ([]TransferEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	var out []TransferEvent
	for _, ev := range s.events {
		if ev.Block >= fromBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}
