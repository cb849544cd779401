package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Store loads and appends the durable rule set.
type Store struct {
	db *gorm.DB
}

// NewStore creates a rule store over the shared database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ContentHash fingerprints a rule by what it does, not by its identity, so
// re-running a setup flow never duplicates an equivalent rule.
func ContentHash(invokeBy string, conditions []Condition, action Action) (string, error) {
	payload, err := json.Marshal(struct {
		InvokeBy   string      `json:"invoke_by"`
		Conditions []Condition `json:"conditions"`
		Action     Action      `json:"action"`
	}{invokeBy, conditions, action})
	if err != nil {
		return "", fmt.Errorf("failed to hash rule content: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Load returns the full rule set in evaluation order. A malformed rule set
// is a fatal configuration error for the caller.
func (s *Store) Load() ([]Rule, error) {
	var set []Rule
	if err := s.db.Order("position ASC, id ASC").Find(&set).Error; err != nil {
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}
	for i := range set {
		if _, err := set[i].DecodeConditions(); err != nil {
			return nil, err
		}
		if _, err := set[i].DecodeAction(); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Append persists a new rule unless an equivalent rule (by content hash)
// already exists. Returns the stored rule either way.
func (s *Store) Append(invokeBy string, conditions []Condition, action Action, position int) (*Rule, error) {
	hash, err := ContentHash(invokeBy, conditions, action)
	if err != nil {
		return nil, err
	}

	var existing Rule
	err = s.db.Where("hash = ?", hash).First(&existing).Error
	if err == nil {
		log.Debug().
			Str("rule_id", existing.RuleID).
			Str("hash", hash).
			Msg("equivalent rule already present, skipping append")
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check rule hash: %w", err)
	}

	condJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conditions: %w", err)
	}
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action: %w", err)
	}

	rule := &Rule{
		RuleID:     "RUL_" + uuid.New().String(),
		Hash:       hash,
		InvokeBy:   invokeBy,
		Conditions: string(condJSON),
		Action:     string(actionJSON),
		Position:   position,
	}
	if err := s.db.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to append rule: %w", err)
	}

	log.Info().
		Str("rule_id", rule.RuleID).
		Str("action_kind", action.Kind).
		Msg("rule appended")

	return rule, nil
}
