package chain

import (
	"context"
	"errors"
	"math/big"
)

// ErrUpstream marks a chain gateway failure (RPC timeout, reverted call,
// stale quote). A trigger whose gateway call fails aborts without touching
// the queue or the position store.
var ErrUpstream = errors.New("chain gateway failure")

// Order is a proposal handed to the gateway for on-chain execution.
type Order struct {
	Gamer    string
	Side     string
	Quantity int64
	Wallet   string
}

// TransferEvent is a confirmed on-chain bit transfer. The indexer is the
// only component that consumes these, and the only writer of the position
// store.
type TransferEvent struct {
	Block    uint64
	Gamer    string
	Holder   string
	Quantity int64
	CostWei  *big.Int
	IsBuy    bool
}

// Gateway is the boundary to the chain. Every call is fallible and
// latency-bearing; callers bound them with a context deadline.
type Gateway interface {
	GetBuyPrice(ctx context.Context, gamer string, quantity int64) (*big.Int, error)
	GetSellPrice(ctx context.Context, gamer string, quantity int64) (*big.Int, error)
	BalanceOf(ctx context.Context, wallet string) (*big.Int, error)
	Decimals(ctx context.Context) (int32, error)
	SubmitOrder(ctx context.Context, order Order) (string, error)
	TransferEvents(ctx context.Context, fromBlock uint64) ([]TransferEvent, error)
}
