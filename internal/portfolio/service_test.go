package portfolio_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfleet/bitfleet/internal/database"
	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/types"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func setupService(t *testing.T) (*portfolio.Service, *positions.Store) {
	t.Helper()
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	store := positions.NewStore(db)
	return portfolio.NewService(db, store), store
}

func validRequest(name string, wallets ...string) portfolio.CreateRequest {
	return portfolio.CreateRequest{
		Name:                name,
		CopyStrategy:        portfolio.StrategyMid,
		InitialValuationWei: "1000000000000000000",
		StopLossPercent:     5,
		WalletAddresses:     wallets,
	}
}

func TestCreate(t *testing.T) {
	t.Run("creates portfolio with fleet", func(t *testing.T) {
		svc, _ := setupService(t)

		p, err := svc.Create(validRequest("alpha", walletA, walletB))
		require.NoError(t, err)
		assert.NotEmpty(t, p.PortfolioID)

		wallets, err := svc.Wallets("alpha")
		require.NoError(t, err)
		assert.Equal(t, []string{walletA, walletB}, wallets)
	})

	t.Run("identical request converges on the existing portfolio", func(t *testing.T) {
		svc, _ := setupService(t)

		first, err := svc.Create(validRequest("alpha", walletA, walletB))
		require.NoError(t, err)

		retried, err := svc.Create(validRequest("alpha", walletA, walletB))
		require.NoError(t, err)
		assert.Equal(t, first.PortfolioID, retried.PortfolioID)

		wallets, err := svc.Wallets("alpha")
		require.NoError(t, err)
		assert.Equal(t, []string{walletA, walletB}, wallets)
	})

	t.Run("same name with different configuration is rejected", func(t *testing.T) {
		svc, _ := setupService(t)

		_, err := svc.Create(validRequest("alpha", walletA))
		require.NoError(t, err)

		changed := validRequest("alpha", walletA)
		changed.StopLossPercent = 7
		_, err = svc.Create(changed)
		assert.ErrorIs(t, err, portfolio.ErrPortfolioExists)

		grown := validRequest("alpha", walletA, walletB)
		_, err = svc.Create(grown)
		assert.ErrorIs(t, err, portfolio.ErrPortfolioExists)
	})

	t.Run("rejects wallet already owned by another portfolio", func(t *testing.T) {
		svc, _ := setupService(t)

		_, err := svc.Create(validRequest("alpha", walletA))
		require.NoError(t, err)

		_, err = svc.Create(validRequest("beta", walletA, walletB))
		require.ErrorIs(t, err, portfolio.ErrWalletTaken)

		// The failed create must not leave partial state behind.
		wallets, err := svc.Wallets("")
		require.NoError(t, err)
		assert.Equal(t, []string{walletA}, wallets)
	})

	t.Run("validation failures write nothing", func(t *testing.T) {
		svc, _ := setupService(t)

		cases := []portfolio.CreateRequest{
			validRequest("", walletA),
			validRequest("alpha"), // no wallets
			validRequest("alpha", "not-an-address"),
			validRequest("alpha", walletA, walletA), // duplicate within request
			func() portfolio.CreateRequest {
				r := validRequest("alpha", walletA)
				r.StopLossPercent = 11
				return r
			}(),
			func() portfolio.CreateRequest {
				r := validRequest("alpha", walletA)
				r.CopyStrategy = "mirror"
				return r
			}(),
			func() portfolio.CreateRequest {
				r := validRequest("alpha", walletA)
				r.InitialValuationWei = "1.5e18"
				return r
			}(),
		}
		for _, req := range cases {
			_, err := svc.Create(req)
			assert.ErrorIs(t, err, types.ErrValidation)
		}

		wallets, err := svc.Wallets("")
		require.NoError(t, err)
		assert.Empty(t, wallets)
	})
}

func TestLargestHolder(t *testing.T) {
	svc, store := setupService(t)

	_, err := svc.Create(validRequest("alpha", walletA, walletB))
	require.NoError(t, err)
	_, err = svc.Create(validRequest("beta", walletC))
	require.NoError(t, err)

	require.NoError(t, store.ApplyBuy(walletA, "gamer1", 4, 100, big.NewInt(1)))
	require.NoError(t, store.ApplyBuy(walletB, "gamer1", 4, 100, big.NewInt(1)))
	require.NoError(t, store.ApplyBuy(walletC, "gamer1", 9, 100, big.NewInt(1)))

	t.Run("fleet-wide pick", func(t *testing.T) {
		holder, err := svc.LargestHolder("gamer1", "")
		require.NoError(t, err)
		assert.Equal(t, walletC, holder)
	})

	t.Run("portfolio scope with lexicographic tie-break", func(t *testing.T) {
		holder, err := svc.LargestHolder("gamer1", "alpha")
		require.NoError(t, err)
		assert.Equal(t, walletA, holder)
	})

	t.Run("no holder anywhere", func(t *testing.T) {
		_, err := svc.LargestHolder("gamer2", "alpha")
		assert.ErrorIs(t, err, portfolio.ErrNoHolder)
	})
}
