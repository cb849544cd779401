package copytrade

import (
	"github.com/bitfleet/bitfleet/internal/portfolio"
)

// SizeForStrategy converts a copied trader's position size into this
// portfolio's target size. min buys a single bit per position, mid half
// (rounded up), all mirrors one-to-one, none opts out of copying.
func SizeForStrategy(strategy string, originalQuantity int64) int64 {
	if originalQuantity <= 0 {
		return 0
	}
	switch strategy {
	case portfolio.StrategyMin:
		return 1
	case portfolio.StrategyMid:
		return (originalQuantity + 1) / 2
	case portfolio.StrategyAll:
		return originalQuantity
	}
	return 0
}
