package gofer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bitfleet/bitfleet/internal/types"
)

// Queue is the durable proposal queue ("gofer"). Producers are rule engine
// actions; the consumer is the processor executing against the chain.
type Queue struct {
	db *Database

	// locks serializes propose calls per (gamer, side, holder) triple so
	// the check-and-insert cannot race for the same triple. Cross-triple
	// proposals proceed in parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewQueue creates a proposal queue over the shared database.
func NewQueue(gormDB *gorm.DB) *Queue {
	return &Queue{
		db:    NewDatabase(gormDB),
		locks: make(map[string]*sync.Mutex),
	}
}

func (q *Queue) tripleLock(gamer, side, holder string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := gamer + "|" + side + "|" + holder
	l, ok := q.locks[key]
	if !ok {
		l = &sync.Mutex{}
		q.locks[key] = l
	}
	return l
}

// ProposeOrder appends a PENDING proposal. At most one PENDING proposal may
// exist per (gamer, side, holder) triple; a duplicate is rejected with
// ErrDuplicateProposal rather than silently queued twice.
func (q *Queue) ProposeOrder(req ProposalRequest) (*ProposedOrder, error) {
	logger := log.With().
		Str("gamer", req.Gamer).
		Str("side", req.Side).
		Str("holder", req.Holder).
		Str("service", "gofer").
		Logger()

	if req.Quantity <= 0 {
		return nil, types.Invalidf("proposal quantity must be positive, got %d", req.Quantity)
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return nil, types.Invalidf("unknown side %q", req.Side)
	}
	if req.Gamer == "" {
		return nil, types.Invalidf("proposal requires a gamer")
	}

	order := &ProposedOrder{
		ProposalID:    "PRP_" + uuid.New().String(),
		Gamer:         req.Gamer,
		Side:          req.Side,
		Holder:        req.Holder,
		Quantity:      req.Quantity,
		RuleID:        req.RuleID,
		InvokedBy:     req.InvokedBy,
		PortfolioName: req.PortfolioName,
		Status:        StatusPending,
	}

	l := q.tripleLock(req.Gamer, req.Side, req.Holder)
	l.Lock()
	err := q.db.CreateIfAbsent(order)
	l.Unlock()
	if err != nil {
		if err == ErrDuplicateProposal {
			logger.Warn().Str("rule_id", req.RuleID).Msg("duplicate proposal rejected")
			return nil, ErrDuplicateProposal
		}
		logger.Error().Err(err).Msg("failed to append proposal")
		return nil, fmt.Errorf("failed to append proposal: %w", err)
	}

	logger.Info().
		Str("proposal_id", order.ProposalID).
		Int64("quantity", order.Quantity).
		Str("rule_id", order.RuleID).
		Msg("proposal queued")

	return order, nil
}

// RaiseAlert emits the stagnation signal: the guard produced zero but
// unresolved proposals are still sitting in the queue. Advisory and
// idempotent; it writes no state.
func (q *Queue) RaiseAlert(gamer, side string) {
	log.Warn().
		Str("gamer", gamer).
		Str("side", side).
		Str("service", "gofer").
		Str("alert", "stale_proposals").
		Msg("guard yielded zero while proposals remain unresolved")
}

// ProposedSum returns the total PENDING quantity for a gamer and side,
// optionally scoped to a holder.
func (q *Queue) ProposedSum(gamer, side, holder string) (int64, error) {
	return q.db.PendingSum(gamer, side, holder)
}

// GetProposal fetches a proposal by ID; nil when unknown.
func (q *Queue) GetProposal(proposalID string) (*ProposedOrder, error) {
	return q.db.GetProposal(proposalID)
}

// ListProposals lists proposals, optionally filtered by status.
func (q *Queue) ListProposals(status string) ([]ProposedOrder, error) {
	return q.db.ListProposals(status)
}

// ClaimNext leases the oldest claimable PENDING proposal to consumerID.
func (q *Queue) ClaimNext(consumerID string) (*ProposedOrder, error) {
	return q.db.ClaimNext(consumerID, time.Now().UTC())
}

// Resolve finishes a claimed proposal after successful chain execution.
func (q *Queue) Resolve(proposalID, txHash string) error {
	return q.db.Resolve(proposalID, txHash)
}

// Fail finishes a claimed proposal after a terminal execution failure.
func (q *Queue) Fail(proposalID string) error {
	return q.db.Fail(proposalID)
}

// ReclaimStale releases expired claims back to the pool.
func (q *Queue) ReclaimStale(lease time.Duration) (int64, error) {
	return q.db.ReclaimStale(lease, time.Now().UTC())
}
