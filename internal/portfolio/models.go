package portfolio

import (
	"time"

	"gorm.io/gorm"
)

// Copy strategies controlling how target positions are sized from the
// copied trader's holdings.
const (
	StrategyMin  = "min"
	StrategyMid  = "mid"
	StrategyAll  = "all"
	StrategyNone = "none"
)

// Portfolio is a named copy-trading configuration bound to a fleet of
// wallets. Rows are append-only; there is no in-place edit flow.
type Portfolio struct {
	gorm.Model          `json:"-"`
	PortfolioID         string    `gorm:"uniqueIndex" json:"portfolio_id"`
	Name                string    `gorm:"uniqueIndex" json:"name"`
	CopiedTrader        string    `json:"copied_trader,omitempty"`
	CopyStrategy        string    `json:"copy_strategy"`
	InitialValuationWei string    `json:"initial_valuation_wei"`
	StopLossPercent     int       `json:"stop_loss_percent"`
	CreatedAt           time.Time `json:"created_at"`
}

// Wallet binds an address to a portfolio fleet. The address is unique
// across every portfolio, not just within one.
type Wallet struct {
	gorm.Model    `json:"-"`
	Address       string `gorm:"uniqueIndex" json:"address"`
	PortfolioName string `gorm:"index" json:"portfolio_name"`
}
