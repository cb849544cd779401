package positions

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Store is the durable holder→gamer→position mapping. Only the chain
// indexer writes to it; every other component is a reader. Each read runs
// inside a transaction so a record is observed either pre- or post-update,
// never half-written.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the shared database connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetBitBalance returns the stored bit balance of a holder in a gamer.
// Missing rows read as zero.
func (s *Store) GetBitBalance(holder, gamer string) (int64, error) {
	var pos Position
	err := s.db.Where("holder = ? AND gamer = ?", holder, gamer).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch position: %w", err)
	}
	return pos.Quantity, nil
}

// GetFullStore returns the holder→gamer→position mapping, optionally
// filtered to the given holders.
func (s *Store) GetFullStore(holders ...string) (map[string]map[string]Position, error) {
	var rows []Position
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&Position{})
		if len(holders) > 0 {
			q = q.Where("holder IN ?", holders)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch position store: %w", err)
	}

	full := make(map[string]map[string]Position)
	for _, p := range rows {
		if full[p.Holder] == nil {
			full[p.Holder] = make(map[string]Position)
		}
		full[p.Holder][p.Gamer] = p
	}
	return full, nil
}

// HoldersOf returns every position held in the given gamer, optionally
// restricted to a wallet set, largest first with ties broken by the
// lexicographically smallest holder address.
func (s *Store) HoldersOf(gamer string, wallets []string) ([]Position, error) {
	var rows []Position
	q := s.db.Where("gamer = ? AND quantity > 0", gamer)
	if len(wallets) > 0 {
		q = q.Where("holder IN ?", wallets)
	}
	if err := q.Order("quantity DESC, holder ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch holders of gamer: %w", err)
	}
	return rows, nil
}

// TotalHeld sums the fleet-wide holdings in a gamer.
func (s *Store) TotalHeld(gamer string) (int64, error) {
	var total int64
	err := s.db.Model(&Position{}).
		Where("gamer = ?", gamer).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum holdings: %w", err)
	}
	return total, nil
}

// Lots returns the buy batches for a holder, oldest block first, optionally
// filtered to a gamer.
func (s *Store) Lots(holder string, gamer string) ([]Lot, error) {
	var lots []Lot
	q := s.db.Where("holder = ?", holder)
	if gamer != "" {
		q = q.Where("gamer = ?", gamer)
	}
	if err := q.Order("block ASC").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch lots: %w", err)
	}
	return lots, nil
}

// ApplyBuy records a confirmed buy. Writer API: called only by the chain
// indexer.
func (s *Store) ApplyBuy(holder, gamer string, quantity int64, block uint64, costWei *big.Int) error {
	if quantity <= 0 {
		return fmt.Errorf("buy quantity must be positive, got %d", quantity)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var pos Position
		err := tx.Where("holder = ? AND gamer = ?", holder, gamer).First(&pos).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			pos = Position{Holder: holder, Gamer: gamer, Quantity: quantity}
			if err := tx.Create(&pos).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			pos.Quantity += quantity
			if err := tx.Save(&pos).Error; err != nil {
				return err
			}
		}

		lot := Lot{
			Holder:   holder,
			Gamer:    gamer,
			Quantity: quantity,
			Block:    block,
			CostWei:  costWei.String(),
		}
		return tx.Create(&lot).Error
	})
}

// ApplySell records a confirmed sell, clamping at zero and consuming lots
// oldest block first. Partial lot consumption scales the lot cost pro rata.
func (s *Store) ApplySell(holder, gamer string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("sell quantity must be positive, got %d", quantity)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var pos Position
		err := tx.Where("holder = ? AND gamer = ?", holder, gamer).First(&pos).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().
				Str("holder", holder).
				Str("gamer", gamer).
				Int64("quantity", quantity).
				Msg("sell event for unknown position, ignoring")
			return nil
		}
		if err != nil {
			return err
		}

		if quantity > pos.Quantity {
			quantity = pos.Quantity
		}
		pos.Quantity -= quantity
		if err := tx.Save(&pos).Error; err != nil {
			return err
		}

		var lots []Lot
		if err := tx.Where("holder = ? AND gamer = ?", holder, gamer).
			Order("block ASC").Find(&lots).Error; err != nil {
			return err
		}

		remaining := quantity
		for _, lot := range lots {
			if remaining <= 0 {
				break
			}
			if lot.Quantity <= remaining {
				remaining -= lot.Quantity
				if err := tx.Delete(&lot).Error; err != nil {
					return err
				}
				continue
			}

			cost, ok := new(big.Int).SetString(lot.CostWei, 10)
			if !ok {
				return fmt.Errorf("corrupt lot cost %q", lot.CostWei)
			}
			kept := lot.Quantity - remaining
			cost.Mul(cost, big.NewInt(kept))
			cost.Div(cost, big.NewInt(lot.Quantity))
			lot.Quantity = kept
			lot.CostWei = cost.String()
			if err := tx.Save(&lot).Error; err != nil {
				return err
			}
			remaining = 0
		}
		return nil
	})
}
