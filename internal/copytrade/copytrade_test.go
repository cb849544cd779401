package copytrade_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestSizeForStrategy(t *testing.T) {
	cases := []struct {
		strategy string
		quantity int64
		want     int64
	}{
		{portfolio.StrategyMin, 7, 1},
		{portfolio.StrategyMid, 7, 4}, // half rounded up
		{portfolio.StrategyMid, 8, 4},
		{portfolio.StrategyAll, 7, 7},
		{portfolio.StrategyNone, 7, 0},
		{portfolio.StrategyAll, 0, 0},
		{portfolio.StrategyMin, -3, 0},
		{"mirror", 7, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_%d", tc.strategy, tc.quantity), func(t *testing.T) {
			assert.Equal(t, tc.want, copytrade.SizeForStrategy(tc.strategy, tc.quantity))
		})
	}
}

type harness struct {
	queue      *gofer.Queue
	guard      *guard.Service
	portfolios *portfolio.Service
	ruleStore  *rules.Store
	filler     *copytrade.Filler
	init       *copytrade.Initializer
	bus        *bus.Bus
}

func setupHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)

	gateway := chain.NewSimulated(1)
	store := positions.NewStore(db)
	queue := gofer.NewQueue(db)
	portfolios := portfolio.NewService(db, store)
	valuationEngine := valuation.NewEngine(store, gateway)
	guardService := guard.NewService(store, queue)
	engine := rules.NewEngine(guardService, queue, portfolios, valuationEngine, gateway)
	ruleStore := rules.NewStore(db)
	eventBus := bus.New()

	return &harness{
		queue:      queue,
		guard:      guardService,
		portfolios: portfolios,
		ruleStore:  ruleStore,
		filler:     copytrade.NewFiller(engine, ruleStore, eventBus),
		init:       copytrade.NewInitializer(portfolios, ruleStore, eventBus),
		bus:        eventBus,
	}
}

func setupRequest(strategy string, copied ...copytrade.TargetPosition) copytrade.SetupRequest {
	return copytrade.SetupRequest{
		Portfolio: portfolio.CreateRequest{
			Name:                "mirror1",
			CopyStrategy:        strategy,
			InitialValuationWei: "1000000000000000000",
			StopLossPercent:     5,
			WalletAddresses:     []string{walletA},
		},
		CopiedPositions: copied,
	}
}

func TestSetupHandshake(t *testing.T) {
	h := setupHarness(t)

	// A one-bit exposure cap would clamp any ordinary buy to zero; the
	// initial fill must ignore it.
	h.guard.MaxGamerExposure = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.filler.Start(ctx)
	// Give the filler a moment to subscribe; an unheard publish is dropped.
	time.Sleep(20 * time.Millisecond)

	h.init.AckTimeout = 5 * time.Second
	err := h.init.Run(ctx, setupRequest(portfolio.StrategyMid,
		copytrade.TargetPosition{Gamer: "gamer1", Quantity: 9},
	))
	require.NoError(t, err)

	pending, err := h.queue.ListProposals(gofer.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, types.SideBuy, pending[0].Side)
	assert.Equal(t, int64(5), pending[0].Quantity) // mid of 9, guard bypassed
	assert.Equal(t, "mirror1", pending[0].PortfolioName)
	assert.Equal(t, copytrade.InitFillInvoker("mirror1"), pending[0].InvokedBy)

	// The one-shot rules answer only to the setup invoker.
	set, err := h.ruleStore.Load()
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.True(t, set[0].AllowsInvoker(copytrade.InitFillInvoker("mirror1")))
	assert.False(t, set[0].AllowsInvoker("ops"))
}

func TestSetupValidationWritesNothing(t *testing.T) {
	h := setupHarness(t)

	err := h.init.Run(context.Background(), setupRequest(portfolio.StrategyNone,
		copytrade.TargetPosition{Gamer: "gamer1", Quantity: 9},
	))
	require.ErrorIs(t, err, types.ErrValidation)

	_, err = h.portfolios.GetByName("mirror1")
	assert.Error(t, err)

	set, err := h.ruleStore.Load()
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestSetupRetryAfterLostAck(t *testing.T) {
	h := setupHarness(t)

	req := setupRequest(portfolio.StrategyAll,
		copytrade.TargetPosition{Gamer: "gamer1", Quantity: 3},
	)

	// First attempt: nobody fills, the ack never arrives.
	h.init.AckTimeout = 50 * time.Millisecond
	err := h.init.Run(context.Background(), req)
	require.ErrorIs(t, err, copytrade.ErrAckTimeout)

	first, err := h.portfolios.GetByName("mirror1")
	require.NoError(t, err)

	// Retry with the identical request once the filler is up: the existing
	// portfolio and rules are reused and the handshake completes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.filler.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	h.init.AckTimeout = 5 * time.Second
	require.NoError(t, h.init.Run(ctx, req))

	retried, err := h.portfolios.GetByName("mirror1")
	require.NoError(t, err)
	assert.Equal(t, first.PortfolioID, retried.PortfolioID)

	set, err := h.ruleStore.Load()
	require.NoError(t, err)
	assert.Len(t, set, 1)

	pending, err := h.queue.ListProposals(gofer.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].Quantity)
}

func TestSetupAckTimeout(t *testing.T) {
	h := setupHarness(t)

	// No filler is running, so the ack never arrives.
	h.init.AckTimeout = 50 * time.Millisecond
	err := h.init.Run(context.Background(), setupRequest(portfolio.StrategyAll,
		copytrade.TargetPosition{Gamer: "gamer1", Quantity: 3},
	))
	require.ErrorIs(t, err, copytrade.ErrAckTimeout)

	// The durable side of the setup survives the lost handshake.
	p, err := h.portfolios.GetByName("mirror1")
	require.NoError(t, err)
	assert.Equal(t, portfolio.StrategyAll, p.CopyStrategy)
	set, err := h.ruleStore.Load()
	require.NoError(t, err)
	assert.Len(t, set, 1)
}
