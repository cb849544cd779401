package gofer

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrDuplicateProposal is returned when a PENDING proposal already exists
// for the same (gamer, side, holder) triple. Callers must not retry
// blindly; the existing proposal covers the intent.
var ErrDuplicateProposal = errors.New("pending proposal already exists for this gamer, side and holder")

// ErrAlreadyFinal is returned when resolving or failing a proposal that has
// already left PENDING.
var ErrAlreadyFinal = errors.New("proposal already transitioned out of PENDING")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateIfAbsent inserts the proposal unless a PENDING row already exists
// for its (gamer, side, holder) triple. The check and insert share one
// transaction; together with the queue's per-triple lock this upholds the
// de-duplication invariant.
func (d *Database) CreateIfAbsent(order *ProposedOrder) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&ProposedOrder{}).
			Where("gamer = ? AND side = ? AND holder = ? AND status = ?",
				order.Gamer, order.Side, order.Holder, StatusPending).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateProposal
		}
		return tx.Create(order).Error
	})
}

func (d *Database) GetProposal(proposalID string) (*ProposedOrder, error) {
	var order ProposedOrder
	if err := d.db.Where("proposal_id = ?", proposalID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListProposals returns proposals, newest first, optionally filtered by
// status.
func (d *Database) ListProposals(status string) ([]ProposedOrder, error) {
	var orders []ProposedOrder
	q := d.db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return orders, nil
}

// PendingSum sums PENDING quantities for a gamer and side, optionally
// scoped to a holder.
func (d *Database) PendingSum(gamer, side, holder string) (int64, error) {
	var sum int64
	q := d.db.Model(&ProposedOrder{}).
		Where("gamer = ? AND side = ? AND status = ?", gamer, side, StatusPending)
	if holder != "" {
		q = q.Where("holder = ?", holder)
	}
	if err := q.Select("COALESCE(SUM(quantity), 0)").Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("failed to sum pending proposals: %w", err)
	}
	return sum, nil
}

// ClaimNext atomically leases the oldest unleased PENDING proposal to the
// consumer. Returns nil when the queue is drained.
func (d *Database) ClaimNext(consumerID string, now time.Time) (*ProposedOrder, error) {
	var claimed *ProposedOrder
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var order ProposedOrder
		err := tx.Where("status = ? AND claimed_at IS NULL", StatusPending).
			Order("created_at ASC").
			First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		order.ClaimedBy = consumerID
		order.ClaimedAt = &now
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		claimed = &order
		return nil
	})
	return claimed, err
}

// transition moves a PENDING proposal to a final status exactly once.
func (d *Database) transition(proposalID, status, txHash string) error {
	res := d.db.Model(&ProposedOrder{}).
		Where("proposal_id = ? AND status = ?", proposalID, StatusPending).
		Updates(map[string]interface{}{"status": status, "tx_hash": txHash})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyFinal
	}
	return nil
}

func (d *Database) Resolve(proposalID, txHash string) error {
	return d.transition(proposalID, StatusResolved, txHash)
}

func (d *Database) Fail(proposalID string) error {
	return d.transition(proposalID, StatusFailed, "")
}

// ReclaimStale returns claimed-but-unfinished proposals to the claimable
// pool once their lease has expired, so a consumer crash never strands an
// order.
func (d *Database) ReclaimStale(lease time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-lease)
	res := d.db.Model(&ProposedOrder{}).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at < ?", StatusPending, cutoff).
		Updates(map[string]interface{}{"claimed_at": nil, "claimed_by": ""})
	return res.RowsAffected, res.Error
}
