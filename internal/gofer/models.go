package gofer

import (
	"time"

	"gorm.io/gorm"
)

// Proposal lifecycle. A proposal transitions out of PENDING exactly once.
const (
	StatusPending  = "PENDING"
	StatusResolved = "RESOLVED"
	StatusFailed   = "FAILED"
)

// ProposedOrder is a queued, not-yet-executed order awaiting consumer
// execution against the chain. The producer never touches it after
// creation; the consumer transitions its status exactly once.
type ProposedOrder struct {
	gorm.Model    `json:"-"`
	ProposalID    string     `gorm:"uniqueIndex" json:"proposal_id"`
	Gamer         string     `gorm:"index:idx_gamer_side_holder" json:"gamer"`
	Side          string     `gorm:"index:idx_gamer_side_holder" json:"side"`
	Holder        string     `gorm:"index:idx_gamer_side_holder" json:"holder,omitempty"`
	Quantity      int64      `json:"quantity"`
	RuleID        string     `json:"rule_id"`
	InvokedBy     string     `json:"invoked_by"`
	PortfolioName string     `json:"portfolio_name,omitempty"`
	Status        string     `gorm:"index" json:"status"`
	ClaimedBy     string     `json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	TxHash        string     `json:"tx_hash,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProposalRequest is the producer-side input to ProposeOrder.
type ProposalRequest struct {
	Gamer         string `json:"gamer"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	RuleID        string `json:"rule_id"`
	InvokedBy     string `json:"invoked_by"`
	Holder        string `json:"holder,omitempty"`
	PortfolioName string `json:"portfolio_name,omitempty"`
}
