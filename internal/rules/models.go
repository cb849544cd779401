package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bitfleet/bitfleet/internal/types"
)

// Action kinds a rule can dispatch to.
const (
	ActionBuyUpTo  = "buy_up_to"
	ActionSell     = "sell"
	ActionCopyBuy  = "copy_buy"
	ActionCopySell = "copy_sell"
)

// Rule is a declarative trigger rule. Conditions and the action are typed
// and stored as JSON; nothing is ever textually substituted into a rule at
// runtime.
type Rule struct {
	gorm.Model `json:"-"`
	RuleID     string    `gorm:"uniqueIndex" json:"rule_id"`
	Hash       string    `gorm:"uniqueIndex" json:"hash"`
	InvokeBy   string    `json:"invoke_by"` // comma-separated invoker identities
	Conditions string    `json:"conditions"`
	Action     string    `json:"action"`
	Position   int       `gorm:"index" json:"position"` // evaluation order
	CreatedAt  time.Time `json:"created_at"`
}

// Condition is one boolean expression over the invocation context. A rule
// matches only when every condition holds.
type Condition struct {
	Field string `json:"field"` // invoked_by, gamer, holder, quantity, portfolio, is_buy
	Op    string `json:"op"`    // eq, ne, gt, gte, lt, lte, set
	Value string `json:"value,omitempty"`
}

// Action is the tagged variant a matching rule dispatches to. A zero
// Quantity or empty PortfolioName means the value is resolved from the
// invocation context at dispatch time.
type Action struct {
	Kind          string `json:"kind"`
	Quantity      int64  `json:"quantity,omitempty"`
	PortfolioName string `json:"portfolio_name,omitempty"`
	IsInitialFill bool   `json:"is_initial_fill,omitempty"`
}

// AllowsInvoker reports whether the rule may fire for the given invoker
// identity.
func (r *Rule) AllowsInvoker(invokedBy string) bool {
	for _, id := range strings.Split(r.InvokeBy, ",") {
		if strings.TrimSpace(id) == invokedBy {
			return true
		}
	}
	return false
}

// DecodeConditions parses the rule's stored condition list.
func (r *Rule) DecodeConditions() ([]Condition, error) {
	if r.Conditions == "" {
		return nil, nil
	}
	var conds []Condition
	if err := json.Unmarshal([]byte(r.Conditions), &conds); err != nil {
		return nil, fmt.Errorf("rule %s has malformed conditions: %w", r.RuleID, err)
	}
	return conds, nil
}

// DecodeAction parses the rule's stored action variant.
func (r *Rule) DecodeAction() (*Action, error) {
	var action Action
	if err := json.Unmarshal([]byte(r.Action), &action); err != nil {
		return nil, fmt.Errorf("rule %s has malformed action: %w", r.RuleID, err)
	}
	switch action.Kind {
	case ActionBuyUpTo, ActionSell, ActionCopyBuy, ActionCopySell:
	default:
		return nil, fmt.Errorf("rule %s has unknown action kind %q", r.RuleID, action.Kind)
	}
	return &action, nil
}

// Matches evaluates every condition against the invocation context.
func (c Condition) Matches(ictx types.Context) (bool, error) {
	switch c.Field {
	case "quantity":
		want, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return false, fmt.Errorf("condition value %q is not an integer: %w", c.Value, err)
		}
		return compareInt(ictx.Quantity, c.Op, want)
	case "is_buy":
		want := c.Value == "true"
		switch c.Op {
		case "eq":
			return ictx.IsBuy == want, nil
		case "ne":
			return ictx.IsBuy != want, nil
		}
		return false, fmt.Errorf("operator %q not valid for is_buy", c.Op)
	}

	var got string
	switch c.Field {
	case "invoked_by":
		got = ictx.InvokedBy
	case "gamer":
		got = ictx.Gamer
	case "holder":
		got = ictx.Holder
	case "portfolio":
		got = ictx.PortfolioName
	default:
		return false, fmt.Errorf("unknown condition field %q", c.Field)
	}

	switch c.Op {
	case "eq":
		return got == c.Value, nil
	case "ne":
		return got != c.Value, nil
	case "set":
		return got != "", nil
	}
	return false, fmt.Errorf("operator %q not valid for %s", c.Op, c.Field)
}

func compareInt(got int64, op string, want int64) (bool, error) {
	switch op {
	case "eq":
		return got == want, nil
	case "ne":
		return got != want, nil
	case "gt":
		return got > want, nil
	case "gte":
		return got >= want, nil
	case "lt":
		return got < want, nil
	case "lte":
		return got <= want, nil
	}
	return false, fmt.Errorf("unknown integer operator %q", op)
}
