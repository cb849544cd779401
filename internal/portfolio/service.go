package portfolio

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/types"
)

var (
	// ErrWalletTaken is returned when a wallet address already belongs to
	// another portfolio.
	ErrWalletTaken = errors.New("wallet address already assigned to a portfolio")

	// ErrNoHolder is returned when no wallet in the fleet holds the gamer.
	ErrNoHolder = errors.New("no fleet wallet holds the gamer")

	// ErrPortfolioExists is returned when the name is already taken by a
	// portfolio with a different configuration. An identical configuration
	// is returned as-is so setup retries converge.
	ErrPortfolioExists = errors.New("portfolio name already exists with a different configuration")
)

// Service owns the portfolio config store and the fleet directory.
type Service struct {
	db        *gorm.DB
	positions *positions.Store
}

// NewService creates a portfolio service over the shared database.
func NewService(db *gorm.DB, store *positions.Store) *Service {
	return &Service{db: db, positions: store}
}

// CreateRequest carries everything needed to persist a new portfolio.
type CreateRequest struct {
	Name                string
	CopiedTrader        string
	CopyStrategy        string
	InitialValuationWei string
	StopLossPercent     int
	WalletAddresses     []string
}

// Create validates and persists a portfolio with its fleet in one
// transaction. Nothing is written when validation fails.
func (s *Service) Create(req CreateRequest) (*Portfolio, error) {
	logger := log.With().
		Str("portfolio", req.Name).
		Str("service", "portfolio").
		Logger()

	if req.Name == "" {
		return nil, types.Invalidf("portfolio name is required")
	}
	if req.StopLossPercent < 1 || req.StopLossPercent > 10 {
		return nil, types.Invalidf("stop-loss percent %d outside [1,10]", req.StopLossPercent)
	}
	switch req.CopyStrategy {
	case StrategyMin, StrategyMid, StrategyAll, StrategyNone:
	default:
		return nil, types.Invalidf("unknown copy strategy %q", req.CopyStrategy)
	}
	if len(req.WalletAddresses) == 0 {
		return nil, types.Invalidf("portfolio requires at least one wallet")
	}
	if _, ok := new(big.Int).SetString(req.InitialValuationWei, 10); !ok {
		return nil, types.Invalidf("initial valuation %q is not a wei amount", req.InitialValuationWei)
	}

	seen := make(map[string]bool, len(req.WalletAddresses))
	wallets := make([]string, 0, len(req.WalletAddresses))
	for _, raw := range req.WalletAddresses {
		addr, err := types.NormalizeAddress(raw)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			return nil, types.Invalidf("duplicate wallet %s in request", addr)
		}
		seen[addr] = true
		wallets = append(wallets, addr)
	}

	var trader string
	if req.CopiedTrader != "" {
		addr, err := types.NormalizeAddress(req.CopiedTrader)
		if err != nil {
			return nil, err
		}
		trader = addr
	}

	// A retried setup must converge, not die on the uniqueness checks: an
	// existing portfolio with identical configuration is the requested one.
	var existing Portfolio
	err := s.db.Where("name = ?", req.Name).First(&existing).Error
	switch {
	case err == nil:
		same, err := s.sameConfig(&existing, trader, req, wallets)
		if err != nil {
			return nil, err
		}
		if !same {
			return nil, ErrPortfolioExists
		}
		logger.Info().
			Str("portfolio_id", existing.PortfolioID).
			Msg("portfolio already exists with identical configuration")
		return &existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to check portfolio name: %w", err)
	}

	p := &Portfolio{
		PortfolioID:         "PTF_" + uuid.New().String(),
		Name:                req.Name,
		CopiedTrader:        trader,
		CopyStrategy:        req.CopyStrategy,
		InitialValuationWei: req.InitialValuationWei,
		StopLossPercent:     req.StopLossPercent,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Wallet{}).Where("address IN ?", wallets).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrWalletTaken
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		for _, addr := range wallets {
			if err := tx.Create(&Wallet{Address: addr, PortfolioName: p.Name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("portfolio creation failed")
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	logger.Info().
		Str("portfolio_id", p.PortfolioID).
		Str("copy_strategy", p.CopyStrategy).
		Int("wallets", len(wallets)).
		Msg("portfolio created")

	return p, nil
}

// sameConfig reports whether the stored portfolio matches the request's
// configuration and normalized wallet set.
func (s *Service) sameConfig(p *Portfolio, trader string, req CreateRequest, wallets []string) (bool, error) {
	if p.CopiedTrader != trader ||
		p.CopyStrategy != req.CopyStrategy ||
		p.InitialValuationWei != req.InitialValuationWei ||
		p.StopLossPercent != req.StopLossPercent {
		return false, nil
	}

	stored, err := s.Wallets(p.Name)
	if err != nil {
		return false, err
	}
	if len(stored) != len(wallets) {
		return false, nil
	}
	sorted := append([]string(nil), wallets...)
	sort.Strings(sorted)
	for i := range sorted {
		if sorted[i] != stored[i] {
			return false, nil
		}
	}
	return true, nil
}

// GetByName looks up a portfolio by its unique name.
func (s *Service) GetByName(name string) (*Portfolio, error) {
	var p Portfolio
	if err := s.db.Where("name = ?", name).First(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio %s: %w", name, err)
	}
	return &p, nil
}

// InitialValuation returns the portfolio's starting valuation as a
// normalized decimal for the given token decimals.
func (p *Portfolio) InitialValuation(decimals int32) decimal.Decimal {
	wei, ok := new(big.Int).SetString(p.InitialValuationWei, 10)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -decimals)
}

// Wallets returns the fleet for the named portfolio, or the full fleet
// across every portfolio when the name is empty.
func (s *Service) Wallets(portfolioName string) ([]string, error) {
	var rows []Wallet
	q := s.db.Model(&Wallet{})
	if portfolioName != "" {
		q = q.Where("portfolio_name = ?", portfolioName)
	}
	if err := q.Order("address ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch fleet wallets: %w", err)
	}
	addrs := make([]string, 0, len(rows))
	for _, w := range rows {
		addrs = append(addrs, w.Address)
	}
	return addrs, nil
}

// LargestHolder resolves the fleet wallet with the largest position in the
// gamer, scoped to a portfolio when one is named. Equal stakes break to the
// lexicographically smallest address; that ordering is deliberate, not an
// artifact of enumeration.
func (s *Service) LargestHolder(gamer, portfolioName string) (string, error) {
	wallets, err := s.Wallets(portfolioName)
	if err != nil {
		return "", err
	}
	if len(wallets) == 0 {
		return "", ErrNoHolder
	}
	held, err := s.positions.HoldersOf(gamer, wallets)
	if err != nil {
		return "", err
	}
	if len(held) == 0 {
		return "", ErrNoHolder
	}
	return held[0].Holder, nil
}
