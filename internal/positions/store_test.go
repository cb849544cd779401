package positions_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfleet/bitfleet/internal/database"
	"github.com/bitfleet/bitfleet/internal/positions"
)

func setupStore(t *testing.T) *positions.Store {
	t.Helper()
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	return positions.NewStore(db)
}

func TestStore(t *testing.T) {
	t.Run("missing position reads as zero", func(t *testing.T) {
		store := setupStore(t)

		balance, err := store.GetBitBalance("0xaaa", "gamer1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("buys accumulate and record lots", func(t *testing.T) {
		store := setupStore(t)

		require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 3, 100, big.NewInt(3000)))
		require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 2, 110, big.NewInt(2500)))

		balance, err := store.GetBitBalance("0xaaa", "gamer1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance)

		lots, err := store.Lots("0xaaa", "gamer1")
		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, uint64(100), lots[0].Block)
		assert.Equal(t, "3000", lots[0].CostWei)
	})

	t.Run("sells clamp at zero and consume lots oldest first", func(t *testing.T) {
		store := setupStore(t)

		require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 3, 100, big.NewInt(3000)))
		require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 4, 110, big.NewInt(8000)))

		// Consumes the whole first lot and half of the second.
		require.NoError(t, store.ApplySell("0xaaa", "gamer1", 5))

		balance, err := store.GetBitBalance("0xaaa", "gamer1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), balance)

		lots, err := store.Lots("0xaaa", "gamer1")
		require.NoError(t, err)
		require.Len(t, lots, 1)
		assert.Equal(t, int64(2), lots[0].Quantity)
		assert.Equal(t, "4000", lots[0].CostWei) // 8000 scaled to 2 of 4 bits

		// Overselling clamps rather than going negative.
		require.NoError(t, store.ApplySell("0xaaa", "gamer1", 10))
		balance, err = store.GetBitBalance("0xaaa", "gamer1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("full store filters by holder", func(t *testing.T) {
		store := setupStore(t)

		require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 3, 100, big.NewInt(1)))
		require.NoError(t, store.ApplyBuy("0xbbb", "gamer1", 7, 100, big.NewInt(1)))
		require.NoError(t, store.ApplyBuy("0xbbb", "gamer2", 1, 100, big.NewInt(1)))

		full, err := store.GetFullStore()
		require.NoError(t, err)
		assert.Len(t, full, 2)
		assert.Equal(t, int64(7), full["0xbbb"]["gamer1"].Quantity)

		filtered, err := store.GetFullStore("0xaaa")
		require.NoError(t, err)
		assert.Len(t, filtered, 1)
	})

	t.Run("holders rank largest first with address tie-break", func(t *testing.T) {
		store := setupStore(t)

		require.NoError(t, store.ApplyBuy("0xccc", "gamer1", 5, 100, big.NewInt(1)))
		require.NoError(t, store.ApplyBuy("0xaaa", "gamer1", 5, 100, big.NewInt(1)))
		require.NoError(t, store.ApplyBuy("0xbbb", "gamer1", 9, 100, big.NewInt(1)))

		held, err := store.HoldersOf("gamer1", nil)
		require.NoError(t, err)
		require.Len(t, held, 3)
		assert.Equal(t, "0xbbb", held[0].Holder)
		assert.Equal(t, "0xaaa", held[1].Holder) // equal stake, lower address wins
		assert.Equal(t, "0xccc", held[2].Holder)
	})
}
