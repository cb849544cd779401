package valuation_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfleet/bitfleet/internal/chain"
	"github.com/bitfleet/bitfleet/internal/database"
	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/valuation"
)

// flatGateway quotes a fixed per-bit price and zero token decimals so test
// arithmetic stays in whole numbers.
type flatGateway struct {
	pricePerBit int64
}

func (g *flatGateway) GetBuyPrice(ctx context.Context, gamer string, quantity int64) (*big.Int, error) {
	return big.NewInt(g.pricePerBit * quantity), nil
}

func (g *flatGateway) GetSellPrice(ctx context.Context, gamer string, quantity int64) (*big.Int, error) {
	return big.NewInt(g.pricePerBit * quantity), nil
}

func (g *flatGateway) BalanceOf(ctx context.Context, wallet string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (g *flatGateway) Decimals(ctx context.Context) (int32, error) {
	return 0, nil
}

func (g *flatGateway) SubmitOrder(ctx context.Context, order chain.Order) (string, error) {
	return "0xstub", nil
}

func (g *flatGateway) TransferEvents(ctx context.Context, fromBlock uint64) ([]chain.TransferEvent, error) {
	return nil, nil
}

var _ chain.Gateway = (*flatGateway)(nil)

func setupEngine(t *testing.T) (*valuation.Engine, *positions.Store) {
	t.Helper()
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	store := positions.NewStore(db)
	return valuation.NewEngine(store, &flatGateway{pricePerBit: 20}), store
}

func TestComputePandL(t *testing.T) {
	engine, store := setupEngine(t)

	require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 2, 100, big.NewInt(10)))
	require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 3, 200, big.NewInt(30)))
	require.NoError(t, store.ApplyBuy("0xbbb", "gamer2", 1, 150, big.NewInt(50)))

	t.Run("full history", func(t *testing.T) {
		report, err := engine.ComputePandL(context.Background(), 0)
		require.NoError(t, err)

		// 0xaaa: 5 bits worth 100 against 40 invested.
		a := report.Holders["0xaaa"]
		assert.Equal(t, "60", a.AbsoluteProfit.String())
		assert.Equal(t, "150", a.PercentProfit.String())
		assert.Equal(t, "40", a.AdjustedInitialInvestment.String())

		// 0xbbb: 1 bit worth 20 against 50 invested, a loss.
		b := report.Holders["0xbbb"]
		assert.Equal(t, "-30", b.AbsoluteProfit.String())
		assert.Equal(t, "-60", b.PercentProfit.String())

		assert.Equal(t, "30", report.Total.AbsoluteProfit.String())
		assert.Equal(t, "90", report.Total.AdjustedInitialInvestment.String())
	})

	t.Run("start block rescopes profit and capital", func(t *testing.T) {
		report, err := engine.ComputePandL(context.Background(), 150, "0xaaa")
		require.NoError(t, err)

		// Only the block-200 lot counts: 3 bits worth 60 against 30.
		a := report.Holders["0xaaa"]
		assert.Equal(t, "30", a.AbsoluteProfit.String())
		assert.Equal(t, "100", a.PercentProfit.String())
		assert.Equal(t, "30", a.AdjustedInitialInvestment.String())
	})

	t.Run("start block past every lot yields a flat report", func(t *testing.T) {
		report, err := engine.ComputePandL(context.Background(), 300, "0xaaa")
		require.NoError(t, err)

		a := report.Holders["0xaaa"]
		assert.True(t, a.AbsoluteProfit.IsZero())
		assert.True(t, a.PercentProfit.IsZero())
		assert.True(t, a.AdjustedInitialInvestment.IsZero())
	})

	t.Run("holder filter narrows the report", func(t *testing.T) {
		report, err := engine.ComputePandL(context.Background(), 0, "0xbbb")
		require.NoError(t, err)
		assert.Len(t, report.Holders, 1)
		assert.Equal(t, "-30", report.Total.AbsoluteProfit.String())
	})
}
