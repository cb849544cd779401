package positions

import (
	"time"

	"gorm.io/gorm"
)

// Position is the current bit holding of a wallet in a gamer. Absence of a
// row means a quantity of zero; quantity never goes negative.
type Position struct {
	gorm.Model `json:"-"`
	Holder     string    `gorm:"uniqueIndex:idx_holder_gamer" json:"holder"`
	Gamer      string    `gorm:"uniqueIndex:idx_holder_gamer" json:"gamer"`
	Quantity   int64     `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Lot is a buy batch retained for P&L replay. Sells consume lots oldest
// block first.
type Lot struct {
	gorm.Model `json:"-"`
	Holder     string    `gorm:"index:idx_lot_holder_gamer" json:"holder"`
	Gamer      string    `gorm:"index:idx_lot_holder_gamer" json:"gamer"`
	Quantity   int64     `json:"quantity"`
	Block      uint64    `json:"block"`
	CostWei    string    `json:"cost_wei"`
	CreatedAt  time.Time `json:"created_at"`
}
